package ordered

// Map is an insertion-ordered key/value store. Re-setting an existing key
// keeps its original position. It is not safe for concurrent use; callers
// guard it with their own lock.
type Map[K comparable, V any] struct {
	keys   []K
	index  map[K]int
	values map[K]V
}

// New returns an empty Map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		index:  map[K]int{},
		values: map[K]V{},
	}
}

// Len reports the number of stored entries.
func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns the value stored for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	var zero V
	if m == nil {
		return zero, false
	}
	v, ok := m.values[key]
	if !ok {
		return zero, false
	}
	return v, true
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key, appending new keys at the end.
func (m *Map[K, V]) Set(key K, value V) {
	if _, ok := m.values[key]; !ok {
		m.index[key] = len(m.keys)
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	pos, ok := m.index[key]
	if !ok {
		return false
	}
	delete(m.values, key)
	delete(m.index, key)
	m.keys = append(m.keys[:pos], m.keys[pos+1:]...)
	for i := pos; i < len(m.keys); i++ {
		m.index[m.keys[i]] = i
	}
	return true
}

// Keys returns a copy of the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	if m == nil {
		return nil
	}
	return append([]K(nil), m.keys...)
}

// Values returns the values in insertion order. The slice is freshly
// allocated; the values themselves are not cloned.
func (m *Map[K, V]) Values() []V {
	if m == nil {
		return nil
	}
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[k])
	}
	return out
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	m.keys = nil
	m.index = map[K]int{}
	m.values = map[K]V{}
}
