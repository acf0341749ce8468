package filters

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/alertas/alertas-admin/internal/platform/httpx"
)

// MemoryLocation is an in-process Location.
type MemoryLocation struct {
	mu       sync.Mutex
	query    string
	replaces int
}

// NewMemoryLocation starts at the given query string.
func NewMemoryLocation(query string) *MemoryLocation {
	return &MemoryLocation{query: strings.TrimPrefix(query, "?")}
}

func (l *MemoryLocation) Read() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

func (l *MemoryLocation) Replace(query string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = query
	l.replaces++
}

// Navigate changes the query the way back/forward navigation would, without counting
// as a Replace.
func (l *MemoryLocation) Navigate(query string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.query = strings.TrimPrefix(query, "?")
}

// Replaces returns how many times Replace was called.
func (l *MemoryLocation) Replaces() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaces
}

const (
	// CurrentQueryField is the form field carrying the page's query string on filter posts.
	CurrentQueryField = "_q"
	// CurrentQueryHeader carries the page's query string for fetch clients.
	CurrentQueryHeader = "X-Current-Query"
)

// RequestLocation adapts one HTTP request to a Location. The browser's query string
// arrives with the request; a replacement is sent back by Commit.
type RequestLocation struct {
	path     string
	current  string
	live     string
	hasLive  bool
	replaced bool
	next     string
}

// NewRequestLocation reads the current query from the request. path is the screen's
// route the replaced query is attached to.
func NewRequestLocation(r *http.Request, path string) *RequestLocation {
	loc := &RequestLocation{path: path, current: r.URL.RawQuery}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		header, hasHeader := r.Header[http.CanonicalHeaderKey(CurrentQueryHeader)]
		if hasHeader && len(header) > 0 {
			loc.live = strings.TrimPrefix(header[0], "?")
			loc.hasLive = true
		}
		// PostFormValue parses the body; an empty _q still means the page had no filters.
		_ = r.PostFormValue(CurrentQueryField)
		if v, ok := r.PostForm[CurrentQueryField]; ok && len(v) > 0 {
			loc.current = v[0]
		} else if loc.hasLive {
			loc.current = loc.live
		}
	}
	loc.current = strings.TrimPrefix(loc.current, "?")
	return loc
}

// Live returns the address bar query reported by the fetch client, which can differ from
// the query the page was rendered with.
func (l *RequestLocation) Live() (string, bool) {
	return l.live, l.hasLive
}

// Navigate moves the location to query without counting as a replacement.
func (l *RequestLocation) Navigate(query string) {
	l.current = strings.TrimPrefix(query, "?")
}

func (l *RequestLocation) Read() string {
	return l.current
}

func (l *RequestLocation) Replace(query string) {
	l.replaced = true
	l.next = query
}

// Replaced reports whether a replacement is pending.
func (l *RequestLocation) Replaced() bool {
	return l.replaced
}

// URL returns the screen path with the effective query string.
func (l *RequestLocation) URL() string {
	query := l.current
	if l.replaced {
		query = l.next
	}
	if query == "" {
		return l.path
	}
	return l.path + "?" + query
}

type locationResponse struct {
	Location string `json:"location"`
}

// Commit sends the location back to the browser: JSON for fetch clients, which then call
// window.location.replace, or a 303 redirect for plain form posts.
func (l *RequestLocation) Commit(w http.ResponseWriter, r *http.Request) {
	target := l.URL()
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		httpx.JSON(w, http.StatusOK, locationResponse{Location: target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Mount builds a store for one filter request. The store mounts from the query the page
// was rendered with; with external sync enabled it then follows the live address bar.
func Mount[K ~string](loc *RequestLocation, schema Schema[K], opts ...Option) *Store[K] {
	s := New(loc, schema, opts...)
	if !s.opts.externalSync {
		return s
	}
	if live, ok := loc.Live(); ok && live != loc.Read() {
		loc.Navigate(live)
		s.Resync()
	}
	return s
}

// PatchFromForm collects the submitted values of declared keys. Keys absent from the
// form are left out of the patch, so untouched filters keep their value.
func PatchFromForm[K ~string](schema Schema[K], form url.Values) Values[K] {
	patch := make(Values[K])
	for _, k := range schema.keys {
		if vs, ok := form[string(k)]; ok {
			value := ""
			if len(vs) > 0 {
				value = vs[len(vs)-1]
			}
			patch[k] = value
		}
	}
	return patch
}
