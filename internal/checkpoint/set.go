package checkpoint

import (
	"encoding/json"
	"fmt"
)

// Set is the in-memory form of a checkpoint: the primary-key values already
// inserted, in append order, with O(1) membership. Not safe for concurrent use.
type Set struct {
	keys map[string]struct{}
	ids  []any
}

// NewSet builds a set from ids. Duplicates are kept in IDs but counted once.
func NewSet(ids ...any) *Set {
	s := &Set{keys: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add records id and reports whether it was new.
func (s *Set) Add(id any) bool {
	k := Key(id)
	s.ids = append(s.ids, id)
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

// Contains reports whether id was recorded.
func (s *Set) Contains(id any) bool {
	_, ok := s.keys[Key(id)]
	return ok
}

// Len returns the number of distinct ids.
func (s *Set) Len() int {
	return len(s.keys)
}

// IDs returns the recorded ids in append order.
func (s *Set) IDs() []any {
	out := make([]any, len(s.ids))
	copy(out, s.ids)
	return out
}

// Key returns the canonical membership key for id: its JSON encoding, with
// numbers normalized so 7, int64(7), 7.0 and json.Number("7.0") compare equal.
// Strings stay distinct from numbers ("7" != 7).
func Key(id any) string {
	if n, ok := id.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			id = i
		} else if f, err := n.Float64(); err == nil {
			id = f
		}
	}
	b, err := json.Marshal(id)
	if err != nil {
		return fmt.Sprintf("%T:%v", id, id)
	}
	return string(b)
}
