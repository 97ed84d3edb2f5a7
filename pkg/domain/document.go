package domain

// Document represents a JSON document stored through the HTTP API
type Document map[string]interface{}

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
