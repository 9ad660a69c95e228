// Package proctbl is a sorted table keyed by an ordered id. The kernel
// keys it by pid: it is where weak parent references are resolved, and
// its sorted iteration makes reparenting and dumps deterministic.
package proctbl

import (
	"fmt"
	"sort"

	"golang.org/x/exp/constraints"

	"github.com/sasha-s/go-deadlock"
)

type Tbl[K constraints.Ordered, V any] struct {
	mu     deadlock.Mutex
	dents  map[K]V
	sorted []K
}

func NewTbl[K constraints.Ordered, V any]() *Tbl[K, V] {
	tbl := &Tbl[K, V]{}
	tbl.dents = make(map[K]V)
	tbl.sorted = make([]K, 0)
	return tbl
}

func (tbl *Tbl[K, V]) String() string {
	s := "["
	tbl.Iter(func(k K, v V) bool {
		s += fmt.Sprintf("%v , ", k)
		return true
	})
	return s + "]"
}

func (tbl *Tbl[K, V]) Len() int {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	return len(tbl.dents)
}

func (tbl *Tbl[K, V]) Lookup(k K) (V, bool) {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	v, ok := tbl.dents[k]
	return v, ok
}

// Iter visits entries in key order until f returns false.
func (tbl *Tbl[K, V]) Iter(f func(k K, v V) bool) {
	tbl.mu.Lock()
	keys := make([]K, len(tbl.sorted))
	copy(keys, tbl.sorted)
	tbl.mu.Unlock()

	for _, k := range keys {
		v, ok := tbl.Lookup(k)
		if !ok {
			continue
		}
		if !f(k, v) {
			return
		}
	}
}

func (tbl *Tbl[K, V]) Keys() []K {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	keys := make([]K, len(tbl.sorted))
	copy(keys, tbl.sorted)
	return keys
}

func (tbl *Tbl[K, V]) insertSortL(k K) {
	i := sort.Search(len(tbl.sorted), func(i int) bool { return tbl.sorted[i] >= k })
	tbl.sorted = append(tbl.sorted, k)
	copy(tbl.sorted[i+1:], tbl.sorted[i:])
	tbl.sorted[i] = k
}

func (tbl *Tbl[K, V]) delSortL(k K) {
	i := sort.Search(len(tbl.sorted), func(i int) bool { return tbl.sorted[i] >= k })
	tbl.sorted = append(tbl.sorted[:i], tbl.sorted[i+1:]...)
}

// Insert returns false if k was already present.
func (tbl *Tbl[K, V]) Insert(k K, v V) bool {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	if _, ok := tbl.dents[k]; ok {
		return false
	}
	tbl.dents[k] = v
	tbl.insertSortL(k)
	return true
}

func (tbl *Tbl[K, V]) Delete(k K) bool {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()

	if _, ok := tbl.dents[k]; !ok {
		return false
	}
	delete(tbl.dents, k)
	tbl.delSortL(k)
	return true
}
