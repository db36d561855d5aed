package snapshot

import "iter"

// Ordered is a string-keyed map that remembers insertion order.
// The zero value is an empty map ready for use. It is not safe for concurrent
// mutation; snapshots are built once and then only read.
type Ordered[V any] struct {
	keys  []string
	vals  []V
	index map[string]int
}

// Set stores value under key. A key that is already present keeps its
// original position and takes the new value.
func (o *Ordered[V]) Set(key string, value V) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[key]; ok {
		o.vals[i] = value
		return
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, value)
}

// Get returns the value stored under key.
func (o *Ordered[V]) Get(key string) (V, bool) {
	if o == nil {
		var zero V
		return zero, false
	}
	i, ok := o.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return o.vals[i], true
}

func (o *Ordered[V]) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the keys in insertion order.
func (o *Ordered[V]) Keys() []string {
	if o == nil || len(o.keys) == 0 {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// All iterates key/value pairs in insertion order.
func (o *Ordered[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		if o == nil {
			return
		}
		for i, key := range o.keys {
			if !yield(key, o.vals[i]) {
				return
			}
		}
	}
}
