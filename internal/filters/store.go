package filters

import "sync"

// Location is the address-bar surface a Store mirrors its filters into.
type Location interface {
	// Read returns the current raw query string, without the leading '?'.
	Read() string
	// Replace swaps the current query string in place; it never adds a history entry.
	Replace(query string)
}

type options struct {
	externalSync bool
}

// Option tunes a Store.
type Option func(*options)

// WithExternalSync lets Resync follow location changes made outside the store, such as
// back/forward navigation. Disabled by default: the location is read once, at mount.
func WithExternalSync(enabled bool) Option {
	return func(o *options) {
		o.externalSync = enabled
	}
}

// Store owns the live filter mapping of one screen and keeps it mirrored into a Location.
type Store[K ~string] struct {
	mu       sync.Mutex
	loc      Location
	schema   Schema[K]
	defaults *Mapping[K]
	live     *Mapping[K]
	opts     options
}

// New mounts a store: the location is read once and any declared key found there wins
// over its default. Keys outside the schema are left alone.
func New[K ~string](loc Location, schema Schema[K], opts ...Option) *Store[K] {
	s := &Store[K]{
		loc:      loc,
		schema:   schema,
		defaults: schema.Defaults(),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.live = s.mount()
	return s
}

func (s *Store[K]) mount() *Mapping[K] {
	merged := s.defaults.Values()
	if s.loc != nil {
		for key, value := range Decode(s.loc.Read()) {
			if k := K(key); s.schema.Declares(k) {
				merged[k] = value
			}
		}
	}
	return s.schema.mapping(merged)
}

// Filters returns the current mapping. Callers must treat it as read-only.
func (s *Store[K]) Filters() *Mapping[K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Schema returns the screen's declared keys.
func (s *Store[K]) Schema() Schema[K] {
	return s.schema
}

// Update merges patch over the live mapping, drops every blank value, adopts the result
// and replaces the location's query string with it.
func (s *Store[K]) Update(patch Values[K]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.live.Values()
	for k, v := range patch {
		if s.schema.Declares(k) {
			merged[k] = v
		}
	}
	for k, v := range merged {
		if blank(v) {
			delete(merged, k)
		}
	}
	s.live = s.schema.mapping(merged)
	if s.loc != nil {
		s.loc.Replace(s.live.Encode())
	}
}

// Clear restores the defaults given at construction and empties the query string.
func (s *Store[K]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live = s.defaults.clone()
	if s.loc != nil {
		s.loc.Replace("")
	}
}

// HasActive reports whether any filter holds a non-blank value.
func (s *Store[K]) HasActive() bool {
	return s.ActiveCount() > 0
}

// ActiveCount returns the number of filters holding a non-blank value.
func (s *Store[K]) ActiveCount() int {
	return s.Filters().Active()
}

// Query returns the live mapping encoded as a query string.
func (s *Store[K]) Query() string {
	return s.Filters().Encode()
}

// Resync re-reads the location when external sync is enabled and reports whether the
// live mapping changed.
func (s *Store[K]) Resync() bool {
	if !s.opts.externalSync {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.mount()
	if next.Equal(s.live) {
		return false
	}
	s.live = next
	return true
}

func (m *Mapping[K]) clone() *Mapping[K] {
	return &Mapping[K]{order: m.order, values: m.Values()}
}
