package indexing

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts keys and values to and from their stored byte form.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
	// Ordered reports whether byte order of encoded values matches the
	// natural order of T.
	Ordered() bool
}

// DefaultCodec returns an order-preserving codec for strings and numeric
// types and a msgpack codec for everything else.
func DefaultCodec[T any]() Codec[T] {
	var zero T
	switch any(zero).(type) {
	case string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return orderedCodec[T]{}
	}
	return MsgpackCodec[T]{}
}

// NewOrderedCodec returns the order-preserving codec for T. Only the
// predeclared string and numeric types are supported; named types built on
// them should use MsgpackCodec or a custom Codec.
func NewOrderedCodec[T cmp.Ordered]() Codec[T] {
	return orderedCodec[T]{}
}

// MsgpackCodec encodes values with msgpack, sorting map keys so equal values
// always produce equal bytes. Encoded values only support equality lookups.
type MsgpackCodec[T any] struct{}

func (MsgpackCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec[T]) Decode(data []byte) (T, error) {
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %T: %w", out, err)
	}
	return out, nil
}

func (MsgpackCodec[T]) Ordered() bool { return false }

type orderedCodec[T any] struct{}

const signBit = uint64(1) << 63

func (orderedCodec[T]) Ordered() bool { return true }

func (orderedCodec[T]) Encode(v T) ([]byte, error) {
	switch x := any(v).(type) {
	case string:
		return []byte(x), nil
	case int:
		return encodeInt(int64(x)), nil
	case int8:
		return encodeInt(int64(x)), nil
	case int16:
		return encodeInt(int64(x)), nil
	case int32:
		return encodeInt(int64(x)), nil
	case int64:
		return encodeInt(x), nil
	case uint:
		return encodeUint(uint64(x)), nil
	case uint8:
		return encodeUint(uint64(x)), nil
	case uint16:
		return encodeUint(uint64(x)), nil
	case uint32:
		return encodeUint(uint64(x)), nil
	case uint64:
		return encodeUint(x), nil
	case float32:
		return encodeFloat(float64(x)), nil
	case float64:
		return encodeFloat(x), nil
	}
	return nil, fmt.Errorf("unsupported ordered key type %T", v)
}

func (orderedCodec[T]) Decode(data []byte) (T, error) {
	var out T
	if _, ok := any(out).(string); ok {
		s, _ := any(string(data)).(T)
		return s, nil
	}
	if len(data) != 8 {
		return out, fmt.Errorf("invalid ordered key length %d", len(data))
	}
	u := binary.BigEndian.Uint64(data)
	i := int64(u ^ signBit)

	switch p := any(&out).(type) {
	case *int:
		*p = int(i)
	case *int8:
		*p = int8(i)
	case *int16:
		*p = int16(i)
	case *int32:
		*p = int32(i)
	case *int64:
		*p = i
	case *uint:
		*p = uint(u)
	case *uint8:
		*p = uint8(u)
	case *uint16:
		*p = uint16(u)
	case *uint32:
		*p = uint32(u)
	case *uint64:
		*p = u
	case *float32:
		*p = float32(decodeFloat(u))
	case *float64:
		*p = decodeFloat(u)
	default:
		return out, fmt.Errorf("unsupported ordered key type %T", out)
	}
	return out, nil
}

func encodeInt(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v)^signBit)
}

func encodeUint(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// Positive floats get the sign bit set, negative floats are inverted, so
// the big-endian bytes sort in numeric order.
func encodeFloat(v float64) []byte {
	if v == 0 {
		v = 0 // -0 and +0 compare equal, so they share a key
	}
	bits := math.Float64bits(v)
	if bits&signBit == 0 {
		bits |= signBit
	} else {
		bits = ^bits
	}
	return binary.BigEndian.AppendUint64(nil, bits)
}

func decodeFloat(bits uint64) float64 {
	if bits&signBit != 0 {
		bits &^= signBit
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
