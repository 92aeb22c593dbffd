package utils

import (
	"fmt"
	"sort"
	"strings"
)

type SetKey interface {
	Key() string
}

// Set is a collection of unique items identified by Key().
// ToList returns items in insertion order, so a set built from a token
// stream keeps the order in which items were first seen.
type Set[T SetKey] interface {
	Add(item T) bool
	AddList(items ...T)
	AddSet(set Set[T])
	Contains(item T) bool
	ContainsKey(k string) bool
	Find(k SetKey) (T, bool)
	Remove(item T)
	ToList() []T
	ToSortedList() []T
	ToKeyList() []string
	Size() int
	Clone() Set[T]
	String() string
}

type setImpl[T SetKey] struct {
	s     map[string]T
	order []string
}

func NewSet[T SetKey]() Set[T] {
	return new(setImpl[T])
}

// Add inserts the item and reports whether it was not present before.
// Re-adding an existing key keeps its original position.
func (s *setImpl[T]) Add(item T) bool {
	if s.s == nil {
		s.s = make(map[string]T)
	}
	k := item.Key()
	if _, ok := s.s[k]; ok {
		return false
	}
	s.s[k] = item
	s.order = append(s.order, k)
	return true
}

func (s *setImpl[T]) Contains(item T) bool {
	return s.ContainsKey(item.Key())
}

func (s *setImpl[T]) ContainsKey(k string) bool {
	if s.s == nil {
		return false
	}
	_, ok := s.s[k]
	return ok
}

func (s *setImpl[T]) Find(k SetKey) (a T, ok bool) {
	if s.s == nil {
		return a, false
	}
	v, ok := s.s[k.Key()]
	return v, ok
}

func (s *setImpl[T]) ToList() []T {
	if s == nil {
		return nil
	}
	list := make([]T, 0, len(s.order))
	for _, k := range s.order {
		list = append(list, s.s[k])
	}
	return list
}

func (s *setImpl[T]) ToSortedList() []T {
	list := s.ToList()
	sort.Slice(list, func(i, j int) bool {
		return list[i].Key() < list[j].Key()
	})
	return list
}

func (s *setImpl[T]) ToKeyList() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys
}

func (s *setImpl[T]) AddList(items ...T) {
	for _, item := range items {
		s.Add(item)
	}
}

func (s *setImpl[T]) AddSet(set Set[T]) {
	s.AddList(set.ToList()...)
}

func (s *setImpl[T]) Remove(item T) {
	k := item.Key()
	if _, ok := s.s[k]; !ok {
		return
	}
	delete(s.s, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *setImpl[T]) Size() int {
	if s == nil {
		return 0
	}
	return len(s.s)
}

func (s *setImpl[T]) Clone() Set[T] {
	clone := NewSet[T]()
	clone.AddSet(s)
	return clone
}

func (s *setImpl[T]) String() string {
	return fmt.Sprintf("{%v}", strings.Join(s.ToKeyList(), ", "))
}

func ListToSet[T SetKey](items ...T) Set[T] {
	s := NewSet[T]()
	s.AddList(items...)
	return s
}

func UnionSet[T SetKey](ss ...Set[T]) Set[T] {
	s := NewSet[T]()
	for _, set := range ss {
		s.AddSet(set)
	}
	return s
}

// DiffSet returns a set of items that are in s1 but not in s2.
// DiffSet({1, 2, 3, 4}, {2, 3}) = {1, 4}
func DiffSet[T SetKey](s1, s2 Set[T]) Set[T] {
	s := NewSet[T]()
	for _, item := range s1.ToList() {
		if !s2.Contains(item) {
			s.Add(item)
		}
	}
	return s
}

// StringKey adapts a plain string to SetKey.
type StringKey string

// Key returns the string itself.
func (k StringKey) Key() string {
	return string(k)
}

// DedupStrings removes duplicates and keeps the first occurrence of each string.
func DedupStrings(items []string) []string {
	s := NewSet[StringKey]()
	for _, item := range items {
		s.Add(StringKey(item))
	}
	return s.ToKeyList()
}
