package indexing

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/adfharrison1/go-indexdb/pkg/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// MemberSet is the sorted, duplicate-free set of encoded primary keys stored
// under one index key.
type MemberSet struct {
	members [][]byte
}

// DecodeMemberSet parses a stored member set.
func DecodeMemberSet(data []byte) (*MemberSet, error) {
	var members [][]byte
	if err := msgpack.Unmarshal(data, &members); err != nil {
		return nil, fmt.Errorf("failed to decode member set: %w", err)
	}
	slices.SortFunc(members, bytes.Compare)
	members = slices.CompactFunc(members, bytes.Equal)
	return &MemberSet{members: members}, nil
}

// Encode serializes the set for storage.
func (s *MemberSet) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(s.members)
	if err != nil {
		return nil, fmt.Errorf("failed to encode member set: %w", err)
	}
	return data, nil
}

// Add inserts member and reports whether the set changed.
func (s *MemberSet) Add(member []byte) bool {
	i, found := slices.BinarySearchFunc(s.members, member, bytes.Compare)
	if found {
		return false
	}
	s.members = slices.Insert(s.members, i, bytes.Clone(member))
	return true
}

// Remove deletes member and reports whether the set changed.
func (s *MemberSet) Remove(member []byte) bool {
	i, found := slices.BinarySearchFunc(s.members, member, bytes.Compare)
	if !found {
		return false
	}
	s.members = slices.Delete(s.members, i, i+1)
	return true
}

func (s *MemberSet) Contains(member []byte) bool {
	_, found := slices.BinarySearchFunc(s.members, member, bytes.Compare)
	return found
}

func (s *MemberSet) Len() int {
	return len(s.members)
}

// Members returns the encoded members in ascending byte order.
func (s *MemberSet) Members() [][]byte {
	return s.members
}

// indexWrite names the physical write an index mutation performed.
type indexWrite string

const (
	writeNone   indexWrite = ""
	writeAdd    indexWrite = "add"
	writeRemove indexWrite = "remove"
	writeDelete indexWrite = "delete"
)

// loadMembers reads the member set stored under ik. A missing entry is an
// empty set.
func loadMembers(ctx context.Context, tx domain.Transaction, coll domain.Collection, ik []byte) (*MemberSet, error) {
	data, ok, err := coll.Get(ctx, tx, ik)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &MemberSet{}, nil
	}
	return DecodeMemberSet(data)
}

// addMember adds member under ik, creating the entry when absent. Adding a
// member that is already present writes nothing.
func addMember(ctx context.Context, tx domain.Transaction, coll domain.Collection, ik, member []byte) (indexWrite, error) {
	set, err := loadMembers(ctx, tx, coll, ik)
	if err != nil {
		return writeNone, err
	}
	if !set.Add(member) {
		return writeNone, nil
	}
	data, err := set.Encode()
	if err != nil {
		return writeNone, err
	}
	if err := coll.Set(ctx, tx, ik, data); err != nil {
		return writeNone, err
	}
	return writeAdd, nil
}

// removeMember removes member from ik and deletes the entry once it is empty.
func removeMember(ctx context.Context, tx domain.Transaction, coll domain.Collection, ik, member []byte) (indexWrite, error) {
	set, err := loadMembers(ctx, tx, coll, ik)
	if err != nil {
		return writeNone, err
	}
	if !set.Remove(member) {
		return writeNone, nil
	}
	if set.Len() == 0 {
		if _, err := coll.Delete(ctx, tx, ik); err != nil {
			return writeNone, err
		}
		return writeDelete, nil
	}
	data, err := set.Encode()
	if err != nil {
		return writeNone, err
	}
	if err := coll.Set(ctx, tx, ik, data); err != nil {
		return writeNone, err
	}
	return writeRemove, nil
}
