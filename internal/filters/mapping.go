package filters

import "maps"

// Field declares one filter key of a screen together with its seed value.
type Field[K ~string] struct {
	Key     K
	Default string
}

// Schema is the closed set of filter keys owned by one screen, in declaration order.
type Schema[K ~string] struct {
	keys     []K
	defaults map[K]string
}

// NewSchema declares a screen's filter keys. Repeated keys keep their first declaration.
func NewSchema[K ~string](fields ...Field[K]) Schema[K] {
	s := Schema[K]{defaults: make(map[K]string, len(fields))}
	for _, f := range fields {
		if _, seen := s.defaults[f.Key]; seen {
			continue
		}
		s.keys = append(s.keys, f.Key)
		s.defaults[f.Key] = f.Default
	}
	return s
}

// Keys returns the declared keys in order.
func (s Schema[K]) Keys() []K {
	return append([]K(nil), s.keys...)
}

// Declares reports whether key belongs to the schema.
func (s Schema[K]) Declares(key K) bool {
	_, ok := s.defaults[key]
	return ok
}

// Defaults returns a fresh mapping holding the seed values.
func (s Schema[K]) Defaults() *Mapping[K] {
	return s.mapping(maps.Clone(s.defaults))
}

func (s Schema[K]) mapping(values map[K]string) *Mapping[K] {
	if values == nil {
		values = make(map[K]string)
	}
	return &Mapping[K]{order: s.keys, values: values}
}

// Values is a partial assignment of filter values.
type Values[K ~string] map[K]string

// Mapping is an immutable snapshot of a screen's filters. Stores never modify a Mapping
// after handing it out; a change always produces a new *Mapping.
type Mapping[K ~string] struct {
	order  []K
	values map[K]string
}

// Get returns the value for key, or "" when absent.
func (m *Mapping[K]) Get(key K) string {
	if m == nil {
		return ""
	}
	return m.values[key]
}

// Lookup returns the value for key and whether the key is present.
func (m *Mapping[K]) Lookup(key K) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of present keys.
func (m *Mapping[K]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

// Keys returns the present keys in declaration order.
func (m *Mapping[K]) Keys() []K {
	if m == nil {
		return nil
	}
	keys := make([]K, 0, len(m.values))
	for _, k := range m.order {
		if _, ok := m.values[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Values returns a copy of the underlying assignment.
func (m *Mapping[K]) Values() Values[K] {
	if m == nil {
		return Values[K]{}
	}
	return Values[K](maps.Clone(m.values))
}

// Active counts entries holding a non-blank value.
func (m *Mapping[K]) Active() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, v := range m.values {
		if !blank(v) {
			n++
		}
	}
	return n
}

// Encode renders the mapping as a query string, dropping blank values.
func (m *Mapping[K]) Encode() string {
	if m == nil {
		return ""
	}
	keys := make([]string, len(m.order))
	values := make(map[string]string, len(m.values))
	for i, k := range m.order {
		keys[i] = string(k)
	}
	for k, v := range m.values {
		values[string(k)] = v
	}
	return Encode(keys, values)
}

// Equal reports whether both mappings hold the same keys and values.
func (m *Mapping[K]) Equal(other *Mapping[K]) bool {
	if m == nil || other == nil {
		return m.Len() == other.Len()
	}
	return maps.Equal(m.values, other.values)
}

// Strings returns every declared key with its value ("" when absent), keyed by plain
// strings for templates.
func (m *Mapping[K]) Strings() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m.order))
	for _, k := range m.order {
		out[string(k)] = m.values[k]
	}
	return out
}
