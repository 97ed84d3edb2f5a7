package indexing

import (
	"bytes"
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
)

type boundIndex[K, V any] struct {
	def  Index[K, V]
	coll domain.Collection
}

// maintainer propagates primary mutations into the index collections of one
// bundle, inside the caller's transaction.
type maintainer[K, V any] struct {
	indexes []boundIndex[K, V]
	metrics *Metrics
	tracer  trace.Tracer
}

// entryState is a primary entry as seen by the maintainer. A nil state means
// the entry does not exist.
type entryState[K, V any] struct {
	key   K
	value V
}

// apply moves member from the index keys of before to those of after. Keys
// present in both are left untouched, so an update that does not change an
// index key writes nothing to that index.
func (m *maintainer[K, V]) apply(ctx context.Context, tx domain.Transaction, op string, member []byte, before, after *entryState[K, V]) (err error) {
	if len(m.indexes) == 0 {
		return nil
	}
	ctx, span := m.tracer.Start(ctx, "indexdb.maintain", trace.WithAttributes(
		attribute.String("indexdb.op", op),
		attribute.Int("indexdb.index_count", len(m.indexes)),
	))
	start := time.Now()
	defer func() {
		m.metrics.maintenanceDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for _, bi := range m.indexes {
		oldKeys, err := m.keysOf(bi.def, before)
		if err != nil {
			return &IndexError{Op: op, Phase: PhaseExtract, Index: bi.def.Name(), Err: err}
		}
		newKeys, err := m.keysOf(bi.def, after)
		if err != nil {
			return &IndexError{Op: op, Phase: PhaseExtract, Index: bi.def.Name(), Err: err}
		}

		for _, k := range oldKeys {
			if containsKey(newKeys, k) {
				continue
			}
			w, err := removeMember(ctx, tx, bi.coll, k, member)
			if err != nil {
				return &IndexError{Op: op, Phase: PhaseIndex, Index: bi.def.Name(), Err: err}
			}
			m.metrics.recordWrite(bi.coll.Name(), w)
		}
		for _, k := range newKeys {
			if containsKey(oldKeys, k) {
				continue
			}
			w, err := addMember(ctx, tx, bi.coll, k, member)
			if err != nil {
				return &IndexError{Op: op, Phase: PhaseIndex, Index: bi.def.Name(), Err: err}
			}
			m.metrics.recordWrite(bi.coll.Name(), w)
		}
	}
	return nil
}

// keysOf returns the sorted distinct index keys of state under def.
func (m *maintainer[K, V]) keysOf(def Index[K, V], state *entryState[K, V]) ([][]byte, error) {
	if state == nil {
		return nil, nil
	}
	keys, err := def.IndexKeys(state.key, state.value)
	if err != nil {
		return nil, err
	}
	keys = slices.Clone(keys)
	slices.SortFunc(keys, bytes.Compare)
	return slices.CompactFunc(keys, bytes.Equal), nil
}

func containsKey(sorted [][]byte, k []byte) bool {
	_, found := slices.BinarySearchFunc(sorted, k, bytes.Compare)
	return found
}
