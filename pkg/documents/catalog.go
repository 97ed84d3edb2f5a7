package documents

import (
	"context"
	"fmt"
	"log"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/adfharrison1/go-indexdb/pkg/indexing"
)

func (s *Service) validateSpec(spec domain.StoreSpec) (*bundle, error) {
	if err := s.validate.Struct(spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	b, err := newBundle(spec)
	if err != nil {
		return nil, err
	}
	// surfaces duplicate index names before anything is written
	if _, err := s.docs.CollectionNames(spec.Name, b.defs...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return b, nil
}

// sameIndexes compares two declarations ignoring index order.
func sameIndexes(a, b domain.StoreSpec) bool {
	if len(a.Indexes) != len(b.Indexes) {
		return false
	}
	byName := make(map[string]domain.IndexSpec, len(a.Indexes))
	for _, is := range a.Indexes {
		byName[is.Name] = normalizeIndex(is)
	}
	for _, is := range b.Indexes {
		if prev, ok := byName[is.Name]; !ok || prev != normalizeIndex(is) {
			return false
		}
	}
	return true
}

func normalizeIndex(is domain.IndexSpec) domain.IndexSpec {
	if is.Kind == "" {
		is.Kind = domain.IndexKindFilter
	}
	return is
}

// DeclareStore records spec in the catalog and creates its bundle. It
// reports whether the store was created; declaring an existing store again
// with the same indexes is a no-op, with different indexes ErrStoreExists.
func (s *Service) DeclareStore(ctx context.Context, spec domain.StoreSpec) (bool, error) {
	b, err := s.validateSpec(spec)
	if err != nil {
		return false, err
	}

	var created bool
	err = s.update(ctx, func(tx domain.Transaction) error {
		created = false
		cat, _, err := s.catalogDict(ctx, tx)
		if err != nil {
			return err
		}
		existing, found, err := cat.Get(ctx, tx, spec.Name)
		if err != nil {
			return err
		}
		if found && !sameIndexes(existing, spec) {
			return fmt.Errorf("%w: %s", ErrStoreExists, spec.Name)
		}
		if !found {
			if err := cat.Add(ctx, tx, spec.Name, spec); err != nil {
				return err
			}
			created = true
		}
		_, err = s.docs.GetOrAdd(ctx, tx, spec.Name, b.defs...)
		return err
	})
	if err != nil {
		return false, err
	}

	s.cache.Put(spec.Name, b)
	if created {
		log.Printf("INFO: Declared store '%s' with %d indexes", spec.Name, len(spec.Indexes))
	}
	return created, nil
}

// DropStore removes a store, its documents and its indexes.
func (s *Service) DropStore(ctx context.Context, name string) error {
	err := s.update(ctx, func(tx domain.Transaction) error {
		cat, _, err := s.catalogDict(ctx, tx)
		if err != nil {
			return err
		}
		spec, found, err := cat.TryRemove(ctx, tx, name)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrStoreNotFound, name)
		}
		b, err := newBundle(spec)
		if err != nil {
			return err
		}
		return s.docs.RemoveTx(ctx, tx, name, b.defs...)
	})
	s.cache.Remove(name)
	if err != nil {
		return err
	}
	log.Printf("INFO: Dropped store '%s'", name)
	return nil
}

// Stores lists every declared store in name order.
func (s *Service) Stores(ctx context.Context) ([]domain.StoreSpec, error) {
	specs := []domain.StoreSpec{}
	err := s.view(ctx, func(tx domain.Transaction) error {
		cat, found, err := s.catalogDict(ctx, tx)
		if err != nil || !found {
			return err
		}
		for kv, err := range cat.Enumerate(ctx, tx) {
			if err != nil {
				return err
			}
			specs = append(specs, kv.Value)
		}
		return nil
	})
	return specs, err
}

// Store returns the declaration of one store.
func (s *Service) Store(ctx context.Context, name string) (domain.StoreSpec, error) {
	var spec domain.StoreSpec
	err := s.view(ctx, func(tx domain.Transaction) error {
		b, _, err := s.resolve(ctx, tx, name)
		if err != nil {
			return err
		}
		spec = b.spec
		return nil
	})
	return spec, err
}

// CollectionInfo describes one physical collection.
type CollectionInfo struct {
	Name  string `json:"name"`
	Store string `json:"store"`
	Index string `json:"index,omitempty"`
}

// Collections lists the physical collections of the state store.
func (s *Service) Collections(ctx context.Context) ([]CollectionInfo, error) {
	colls, err := s.sm.EnumerateCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	out := make([]CollectionInfo, 0, len(colls))
	for _, c := range colls {
		store, index, err := indexing.ParseCollectionName(c.Name())
		if err != nil {
			log.Printf("WARN: Skipping unrecognised collection %q: %v", c.Name(), err)
			continue
		}
		out = append(out, CollectionInfo{Name: c.Name(), Store: store, Index: index})
	}
	return out, nil
}

// StoreCollections lists the physical collections of one store, primary
// first.
func (s *Service) StoreCollections(ctx context.Context, name string) ([]string, error) {
	spec, err := s.Store(ctx, name)
	if err != nil {
		return nil, err
	}
	b, err := newBundle(spec)
	if err != nil {
		return nil, err
	}
	names, err := s.docs.CollectionNames(name, b.defs...)
	if err != nil {
		return nil, err
	}
	return names, nil
}
