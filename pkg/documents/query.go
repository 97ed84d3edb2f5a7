package documents

import (
	"context"
	"fmt"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
)

// List returns one page of a store's documents in id order.
func (s *Service) List(ctx context.Context, store string, opts *domain.PaginationOptions) (*domain.PaginationResult, error) {
	if opts == nil {
		opts = domain.DefaultPaginationOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit == 0 {
		limit = domain.DefaultPaginationOptions().Limit
	}

	var after string
	if opts.After != "" {
		cursor, err := domain.DecodeCursor(opts.After)
		if err != nil {
			return nil, err
		}
		after = cursor.ID
	}

	result := &domain.PaginationResult{Documents: []domain.Document{}}
	err := s.view(ctx, func(tx domain.Transaction) error {
		_, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}

		var lo []byte
		if after != "" {
			lo = []byte(after)
		}
		skipped := 0
		for kv, err := range dict.EnumerateRange(ctx, tx, lo, nil) {
			if err != nil {
				return err
			}
			if after != "" && kv.Key == after {
				continue
			}
			if skipped < opts.Offset {
				skipped++
				continue
			}
			if len(result.Documents) == limit {
				result.HasNext = true
				break
			}
			result.Documents = append(result.Documents, kv.Value)
		}

		if opts.After == "" {
			if result.Total, err = dict.Count(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.HasPrev = opts.After != "" || opts.Offset > 0
	if result.HasNext {
		last := result.Documents[len(result.Documents)-1]
		id, _ := last[IDField].(string)
		next, err := domain.EncodeCursor(&domain.Cursor{ID: id})
		if err != nil {
			return nil, err
		}
		result.NextCursor = next
	}
	return result, nil
}

// Lookup returns the documents whose indexed field equals the query value.
// For search indexes value is a single word.
func (s *Service) Lookup(ctx context.Context, store, index, value string) ([]domain.Document, error) {
	docs := []domain.Document{}
	err := s.view(ctx, func(tx domain.Transaction) error {
		b, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		fi, err := b.index(index)
		if err != nil {
			return err
		}
		entries, err := dict.Filter(ctx, tx, fi.key(value))
		if err != nil {
			return err
		}
		for _, kv := range entries {
			docs = append(docs, kv.Value)
		}
		return nil
	})
	return docs, err
}

// Range calls fn for every document whose indexed field lies in [from, to],
// in index order. A nil bound is open. Iteration stops at the first error fn
// returns.
func (s *Service) Range(ctx context.Context, store, index string, from, to *string, fn func(domain.Document) error) error {
	return s.view(ctx, func(tx domain.Transaction) error {
		b, dict, err := s.resolve(ctx, tx, store)
		if err != nil {
			return err
		}
		fi, err := b.index(index)
		if err != nil {
			return err
		}
		bound := func(raw *string) indexing.IndexKey {
			if raw == nil {
				return indexing.OpenBound(index)
			}
			return fi.key(*raw)
		}
		for kv, err := range dict.RangeFilter(ctx, tx, bound(from), bound(to)) {
			if err != nil {
				return err
			}
			if err := fn(kv.Value); err != nil {
				return fmt.Errorf("range over %s/%s: %w", store, index, err)
			}
		}
		return nil
	})
}
