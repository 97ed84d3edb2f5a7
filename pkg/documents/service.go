// Package documents serves JSON documents from indexed stores. Every store
// is a bundle of the indexing package: a primary collection of documents by
// id plus one collection per declared field index. Store declarations live
// in the reserved _catalog store so they survive restarts.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
)

// CatalogStore is the reserved store holding store declarations.
const CatalogStore = "_catalog"

// IDField is the document field carrying its id.
const IDField = "_id"

// Service implements document and store operations over a StateManager.
type Service struct {
	sm          domain.StateManager
	docs        *indexing.Registry[string, domain.Document]
	catalog     *indexing.Registry[string, domain.StoreSpec]
	cache       *bundleCache
	validate    *validator.Validate
	maxAttempts int
	metrics     *indexing.Metrics
	cacheSize   int
}

type Option func(*Service)

// WithMetrics records index maintenance on m.
func WithMetrics(m *indexing.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCacheSize bounds the number of resolved stores kept in memory.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		s.cacheSize = n
	}
}

// WithMaxAttempts sets how often a write is retried after a transaction
// conflict.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		s.maxAttempts = n
	}
}

func NewService(sm domain.StateManager, options ...Option) *Service {
	s := &Service{
		sm:          sm,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		maxAttempts: 5,
		cacheSize:   128,
	}
	for _, option := range options {
		option(s)
	}

	var docOpts []indexing.Option[string, domain.Document]
	var catOpts []indexing.Option[string, domain.StoreSpec]
	if s.metrics != nil {
		docOpts = append(docOpts, indexing.WithMetrics[string, domain.Document](s.metrics))
		catOpts = append(catOpts, indexing.WithMetrics[string, domain.StoreSpec](s.metrics))
	}
	s.docs = indexing.NewRegistry(sm, docOpts...)
	s.catalog = indexing.NewRegistry(sm, catOpts...)
	s.cache = newBundleCache(s.cacheSize)
	return s
}

// StateManager returns the underlying state store.
func (s *Service) StateManager() domain.StateManager {
	return s.sm
}

// update runs fn in a writable transaction, retrying on conflicts.
func (s *Service) update(ctx context.Context, fn func(tx domain.Transaction) error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = domain.RunInTransaction(ctx, s.sm, fn)
		if !errors.Is(err, domain.ErrTransactionConflict) {
			return err
		}
		log.Printf("DEBUG: Transaction conflict, retrying (attempt %d/%d)", attempt, s.maxAttempts)
	}
	return fmt.Errorf("giving up after %d attempts: %w", s.maxAttempts, err)
}

func (s *Service) view(ctx context.Context, fn func(tx domain.Transaction) error) error {
	return domain.RunReadOnly(ctx, s.sm, fn)
}

// catalogDict resolves the catalog. In read-only transactions a missing
// catalog reports false.
func (s *Service) catalogDict(ctx context.Context, tx domain.Transaction) (*indexing.IndexedDictionary[string, domain.StoreSpec], bool, error) {
	if tx.Writable() {
		dict, err := s.catalog.GetOrAdd(ctx, tx, CatalogStore)
		return dict, err == nil, err
	}
	return s.catalog.TryGet(ctx, tx, CatalogStore)
}

// resolve returns the bundle and dictionary of a declared store.
func (s *Service) resolve(ctx context.Context, tx domain.Transaction, store string) (*bundle, *indexing.IndexedDictionary[string, domain.Document], error) {
	b, ok := s.cache.Get(store)
	if !ok {
		cat, found, err := s.catalogDict(ctx, tx)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			return nil, nil, fmt.Errorf("%w: %s", ErrStoreNotFound, store)
		}
		spec, found, err := cat.Get(ctx, tx, store)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		if !found {
			return nil, nil, fmt.Errorf("%w: %s", ErrStoreNotFound, store)
		}
		if b, err = newBundle(spec); err != nil {
			return nil, nil, err
		}
		s.cache.Put(store, b)
	}

	dict, found, err := s.docs.TryGet(ctx, tx, store, b.defs...)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		s.cache.Remove(store)
		return nil, nil, fmt.Errorf("%w: %s", ErrStoreNotFound, store)
	}
	return b, dict, nil
}
