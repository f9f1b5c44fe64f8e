// Copyright (c) 2023 BVK Chaitanya

// Package syncmap is a typed wrapper over sync.Map.
package syncmap

import (
	"cmp"
	"slices"
	"sync"
)

type Map[K comparable, V any] struct {
	m sync.Map
}

func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	if v, ok := m.m.Load(key); ok {
		return v.(V), true
	}
	return value, false
}

func (m *Map[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	v, loaded := m.m.LoadOrStore(key, value)
	return v.(V), loaded
}

func (m *Map[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// Range calls f for each entry till f returns false. It can also be used
// with range-over-func loops.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Keys returns all keys in the map in sorted order.
func Keys[K cmp.Ordered, V any](m *Map[K, V]) []K {
	var keys []K
	m.Range(func(k K, _ V) bool {
		keys = append(keys, k)
		return true
	})
	slices.Sort(keys)
	return keys
}
