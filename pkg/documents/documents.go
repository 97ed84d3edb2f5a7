package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
)

// MaxBatchSize is the largest number of documents one batch may insert.
const MaxBatchSize = 1000

// documentID returns the id of doc, generating one when absent.
func documentID(doc domain.Document) (string, error) {
	raw, ok := doc[IDField]
	if !ok || raw == nil {
		return uuid.NewString(), nil
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidDocument, IDField)
	}
	return id, nil
}

// Insert stores a new document and returns its id.
func (s *Service) Insert(ctx context.Context, store string, doc domain.Document) (string, error) {
	ids, err := s.BatchInsert(ctx, store, []domain.Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// BatchInsert stores every document in one transaction. Either all are
// inserted or none is.
func (s *Service) BatchInsert(ctx context.Context, store string, docs []domain.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents provided", ErrInvalidDocument)
	}
	if len(docs) > MaxBatchSize {
		return nil, fmt.Errorf("%w: maximum %d documents allowed per batch", ErrInvalidDocument, MaxBatchSize)
	}

	prepared := make([]domain.Document, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id, err := documentID(doc)
		if err != nil {
			return nil, err
		}
		d := doc.Clone()
		d[IDField] = id
		prepared[i] = d
		ids[i] = id
	}

	err := s.update(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		for i, doc := range prepared {
			if err := dict.Add(ctx, tx, ids[i], doc); err != nil {
				if errors.Is(err, indexing.ErrKeyExists) {
					return fmt.Errorf("%w: %s", ErrDocumentExists, ids[i])
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, store, id string) (domain.Document, error) {
	var doc domain.Document
	err := s.view(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		d, found, err := dict.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		doc = d
		return nil
	})
	return doc, err
}

// Replace stores doc under id, replacing any existing document. It reports
// whether the document was created.
func (s *Service) Replace(ctx context.Context, store, id string, doc domain.Document) (bool, error) {
	d := doc.Clone()
	d[IDField] = id

	var created bool
	err := s.update(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		existed, err := dict.ContainsKey(ctx, tx, id)
		if err != nil {
			return err
		}
		created = !existed
		return dict.Set(ctx, tx, id, d)
	})
	return created, err
}

// Update merges patch into an existing document and returns the result.
// Fields set to null in patch are removed.
func (s *Service) Update(ctx context.Context, store, id string, patch domain.Document) (domain.Document, error) {
	var merged domain.Document
	err := s.update(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		current, found, err := dict.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		merged = mergeDocument(current, patch)
		merged[IDField] = id
		_, err = dict.TryUpdate(ctx, tx, id, merged)
		return err
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func mergeDocument(current, patch domain.Document) domain.Document {
	out := current.Clone()
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Delete removes one document.
func (s *Service) Delete(ctx context.Context, store, id string) error {
	return s.update(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		_, found, err := dict.TryRemove(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		return nil
	})
}

// Clear removes every document of a store and keeps its declaration.
func (s *Service) Clear(ctx context.Context, store string) error {
	return s.update(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		return dict.Clear(ctx, tx)
	})
}

// Count returns the number of documents in a store.
func (s *Service) Count(ctx context.Context, store string) (int64, error) {
	var n int64
	err := s.view(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		n, err = dict.Count(ctx, tx)
		return err
	})
	return n, err
}

// Patch is one document update of a batch.
type Patch struct {
	ID      string          `json:"id" validate:"required"`
	Updates domain.Document `json:"updates" validate:"required"`
}

// BatchUpdate merges every patch in one transaction and returns the updated
// documents in patch order. A missing document fails the whole batch.
func (s *Service) BatchUpdate(ctx context.Context, store string, patches []Patch) ([]domain.Document, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("%w: no operations provided", ErrInvalidDocument)
	}
	if len(patches) > MaxBatchSize {
		return nil, fmt.Errorf("%w: maximum %d operations allowed per batch", ErrInvalidDocument, MaxBatchSize)
	}
	for i, p := range patches {
		if err := s.validate.Struct(p); err != nil {
			return nil, fmt.Errorf("%w: operation %d: %v", ErrInvalidDocument, i, err)
		}
	}

	var updated []domain.Document
	err := s.update(ctx, func(tx domain.Transaction) error {
		updated = make([]domain.Document, 0, len(patches))
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		for _, p := range patches {
			current, found, err := dict.Get(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", ErrDocumentNotFound, p.ID)
			}
			merged := mergeDocument(current, p.Updates)
			merged[IDField] = p.ID
			if err := dict.Set(ctx, tx, p.ID, merged); err != nil {
				return err
			}
			updated = append(updated, merged)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
