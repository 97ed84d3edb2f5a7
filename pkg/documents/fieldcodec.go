package documents

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
)

// Encoded field values start with a type tag so values of different JSON
// types never collide, and sort null < false < true < numbers < strings <
// everything else.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagOther
)

var numberCodec = indexing.NewOrderedCodec[float64]()

// FieldValueCodec encodes JSON field values as ordered index keys. Numbers
// and strings sort naturally within their type; objects and arrays are
// msgpack encoded and only support equality lookups.
type FieldValueCodec struct{}

func (FieldValueCodec) Ordered() bool { return true }

func (FieldValueCodec) Encode(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte{tagNull}, nil
	case bool:
		if x {
			return []byte{tagTrue}, nil
		}
		return []byte{tagFalse}, nil
	case string:
		return append([]byte{tagString}, x...), nil
	}
	if f, ok := toFloat(v); ok {
		raw, err := numberCodec.Encode(f)
		if err != nil {
			return nil, err
		}
		return append([]byte{tagNumber}, raw...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(tagOther)
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode field value %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func (FieldValueCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty field value")
	}
	switch data[0] {
	case tagNull:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagNumber:
		return numberCodec.Decode(data[1:])
	case tagString:
		return string(data[1:]), nil
	case tagOther:
		var out any
		if err := msgpack.Unmarshal(data[1:], &out); err != nil {
			return nil, fmt.Errorf("failed to decode field value: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown field value tag %d", data[0])
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// ParseValue interprets a query string value: true, false and null map to
// their JSON values, numbers to float64 and everything else stays a string.
func ParseValue(raw string) any {
	switch raw {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if num, err := strconv.ParseFloat(raw, 64); err == nil {
		return num
	}
	return raw
}

// FieldValue returns the value at a dotted path such as "address.city", or
// nil when any segment is missing.
func FieldValue(doc map[string]interface{}, path string) any {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func asMap(v any) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case domain.Document:
		return m, true
	}
	return nil, false
}
