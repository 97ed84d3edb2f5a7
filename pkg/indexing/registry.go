package indexing

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

const tracerName = "github.com/adfharrison1/go-indexdb/pkg/indexing"

// Registry resolves, creates and removes bundles: a primary collection of
// K -> V plus one collection per declared index, addressed by a store name.
//
// A Registry holds no per-bundle state; any number of registries over the
// same StateManager resolve the same physical collections.
type Registry[K, V any] struct {
	sm      domain.StateManager
	keys    Codec[K]
	values  Codec[V]
	metrics *Metrics
	tracer  trace.Tracer
}

// NewRegistry creates a registry over sm.
func NewRegistry[K, V any](sm domain.StateManager, opts ...Option[K, V]) *Registry[K, V] {
	r := &Registry[K, V]{
		sm:     sm,
		keys:   DefaultCodec[K](),
		values: MsgpackCodec[V]{},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return r
}

// StateManager returns the store the registry resolves collections in.
func (r *Registry[K, V]) StateManager() domain.StateManager {
	return r.sm
}

type plannedIndex[K, V any] struct {
	def        Index[K, V]
	collection string
}

type bundlePlan[K, V any] struct {
	store   string
	primary string
	indexes []plannedIndex[K, V]
}

// names lists every physical collection of the bundle, primary first.
func (p *bundlePlan[K, V]) names() []string {
	names := make([]string, 0, len(p.indexes)+1)
	names = append(names, p.primary)
	for _, pi := range p.indexes {
		names = append(names, pi.collection)
	}
	return names
}

// plan validates the declared indexes and derives the physical names. It
// touches no collection, so configuration errors leave the store untouched.
func (r *Registry[K, V]) plan(store string, indexes []Index[K, V]) (*bundlePlan[K, V], error) {
	if store == "" {
		return nil, fmt.Errorf("%w: store name cannot be empty", ErrInvalidStoreName)
	}

	byName := make(map[string]Index[K, V], len(indexes))
	for i, def := range indexes {
		if def == nil {
			return nil, fmt.Errorf("%w: index %d is nil", ErrInvalidIndex, i)
		}
		if v, ok := def.(selfValidating); ok {
			if err := v.validate(); err != nil {
				return nil, err
			}
		}
		name := def.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: index %d has no name", ErrInvalidIndex, i)
		}
		if prev, ok := byName[name]; ok {
			if sameDefinition(prev, def) {
				continue
			}
			return nil, fmt.Errorf("%w: index %q declared twice on store %q", ErrConfigurationConflict, name, store)
		}
		byName[name] = def
	}

	p := &bundlePlan[K, V]{
		store:   store,
		primary: PrimaryCollectionName(store),
		indexes: make([]plannedIndex[K, V], 0, len(byName)),
	}
	for name, def := range byName {
		p.indexes = append(p.indexes, plannedIndex[K, V]{def: def, collection: IndexCollectionName(store, name)})
	}
	slices.SortFunc(p.indexes, func(a, b plannedIndex[K, V]) int {
		return strings.Compare(a.def.Name(), b.def.Name())
	})
	return p, nil
}

// GetOrAdd resolves the bundle for store and indexes inside tx, creating
// whichever member collections do not exist yet. Calling it again with the
// same store and index set, in any order, resolves the same collections.
func (r *Registry[K, V]) GetOrAdd(ctx context.Context, tx domain.Transaction, store string, indexes ...Index[K, V]) (_ *IndexedDictionary[K, V], err error) {
	ctx, span := r.startSpan(ctx, "indexdb.GetOrAdd", store, len(indexes))
	result := "ok"
	defer func() { r.finish(span, "get_or_add", result, err) }()

	p, err := r.plan(store, indexes)
	if err != nil {
		return nil, err
	}

	primary, err := r.sm.GetOrCreateCollection(ctx, tx, p.primary)
	if err != nil {
		return nil, &IndexError{Op: "get_or_add", Phase: PhasePrimary, Err: err}
	}
	bound := make([]boundIndex[K, V], 0, len(p.indexes))
	for _, pi := range p.indexes {
		coll, err := r.sm.GetOrCreateCollection(ctx, tx, pi.collection)
		if err != nil {
			return nil, &IndexError{Op: "get_or_add", Phase: PhaseIndex, Index: pi.def.Name(), Err: err}
		}
		bound = append(bound, boundIndex[K, V]{def: pi.def, coll: coll})
	}

	return r.newDictionary(p.store, primary, bound), nil
}

// TryGet resolves the bundle without creating anything. It reports false
// when the primary collection or any declared index collection is missing.
func (r *Registry[K, V]) TryGet(ctx context.Context, tx domain.Transaction, store string, indexes ...Index[K, V]) (_ *IndexedDictionary[K, V], _ bool, err error) {
	ctx, span := r.startSpan(ctx, "indexdb.TryGet", store, len(indexes))
	result := "ok"
	defer func() { r.finish(span, "try_get", result, err) }()

	p, err := r.plan(store, indexes)
	if err != nil {
		return nil, false, err
	}

	primary, ok, err := r.sm.TryGetCollection(ctx, tx, p.primary)
	if err != nil {
		return nil, false, &IndexError{Op: "try_get", Phase: PhasePrimary, Err: err}
	}
	if !ok {
		result = "absent"
		return nil, false, nil
	}
	bound := make([]boundIndex[K, V], 0, len(p.indexes))
	for _, pi := range p.indexes {
		coll, ok, err := r.sm.TryGetCollection(ctx, tx, pi.collection)
		if err != nil {
			return nil, false, &IndexError{Op: "try_get", Phase: PhaseIndex, Index: pi.def.Name(), Err: err}
		}
		if !ok {
			result = "absent"
			return nil, false, nil
		}
		bound = append(bound, boundIndex[K, V]{def: pi.def, coll: coll})
	}

	return r.newDictionary(p.store, primary, bound), true, nil
}

// Remove deletes the primary collection and every declared index collection
// in a single transaction of its own. Members that are already gone are
// skipped; either every member is removed or none is.
func (r *Registry[K, V]) Remove(ctx context.Context, store string, indexes ...Index[K, V]) (err error) {
	ctx, span := r.startSpan(ctx, "indexdb.Remove", store, len(indexes))
	defer func() { r.finish(span, "remove", "ok", err) }()

	p, err := r.plan(store, indexes)
	if err != nil {
		return err
	}

	tx, err := r.sm.BeginTransaction(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Abort()

	if err := r.removePlanned(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit removal of store %s: %w", store, err)
	}

	log.Printf("DEBUG: Removed store '%s' (%d collections)", store, len(p.indexes)+1)
	return nil
}

// RemoveTx is Remove inside the caller's transaction.
func (r *Registry[K, V]) RemoveTx(ctx context.Context, tx domain.Transaction, store string, indexes ...Index[K, V]) (err error) {
	ctx, span := r.startSpan(ctx, "indexdb.RemoveTx", store, len(indexes))
	defer func() { r.finish(span, "remove", "ok", err) }()

	p, err := r.plan(store, indexes)
	if err != nil {
		return err
	}
	return r.removePlanned(ctx, tx, p)
}

func (r *Registry[K, V]) removePlanned(ctx context.Context, tx domain.Transaction, p *bundlePlan[K, V]) error {
	if err := r.sm.RemoveCollection(ctx, tx, p.primary); err != nil {
		return &IndexError{Op: "remove", Phase: PhasePrimary, Err: err}
	}
	for _, pi := range p.indexes {
		if err := r.sm.RemoveCollection(ctx, tx, pi.collection); err != nil {
			return &IndexError{Op: "remove", Phase: PhaseIndex, Index: pi.def.Name(), Err: err}
		}
	}
	return nil
}

// CollectionNames returns the physical collections a bundle consists of,
// primary first.
func (r *Registry[K, V]) CollectionNames(store string, indexes ...Index[K, V]) ([]string, error) {
	p, err := r.plan(store, indexes)
	if err != nil {
		return nil, err
	}
	return p.names(), nil
}

func (r *Registry[K, V]) newDictionary(store string, primary domain.Collection, indexes []boundIndex[K, V]) *IndexedDictionary[K, V] {
	return &IndexedDictionary[K, V]{
		store:   store,
		primary: primary,
		indexes: indexes,
		keys:    r.keys,
		values:  r.values,
		maintainer: &maintainer[K, V]{
			indexes: indexes,
			metrics: r.metrics,
			tracer:  r.tracer,
		},
	}
}

func (r *Registry[K, V]) startSpan(ctx context.Context, name, store string, indexCount int) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("indexdb.store", store),
		attribute.Int("indexdb.index_count", indexCount),
	))
}

func (r *Registry[K, V]) finish(span trace.Span, op, result string, err error) {
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.metrics.bundleOps.WithLabelValues(op, result).Inc()
	span.End()
}
