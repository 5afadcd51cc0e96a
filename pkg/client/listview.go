package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/medicore/medicore-api/internal/models"
)

// DefaultSearchDebounce is the trailing-edge delay between the last keystroke
// and the search actually being applied.
const DefaultSearchDebounce = 500 * time.Millisecond

// ListState is a snapshot of what a list screen should render.
type ListState struct {
	Items   interface{}
	Meta    *models.ListMeta
	Loading bool
	Err     error
}

// Empty reports whether a settled, error-free state has no rows.
func (s ListState) Empty() bool {
	return !s.Loading && s.Err == nil && s.Meta != nil && s.Meta.Total == 0
}

// Fetcher loads one page of a resource.
type Fetcher func(ctx context.Context, opts ListOptions) (interface{}, *models.ListMeta, error)

// ListView drives a paginated, filterable, searchable list. Search input is
// debounced on the trailing edge; filter and search changes reset to page 1;
// every applied state change bumps a sequence number so a slow response for
// an older state can never overwrite a newer one.
type ListView struct {
	mu        sync.Mutex
	resource  string
	fetch     Fetcher
	cache     *QueryCache
	opts      ListOptions
	rawSearch string
	debounce  time.Duration
	timer     *time.Timer
	afterFunc func(time.Duration, func()) *time.Timer
	onSettle  func()
	seq       uint64
	state     ListState
	closed    bool
}

// ListViewOption customises a ListView.
type ListViewOption func(*ListView)

// WithDebounce overrides the search debounce interval.
func WithDebounce(d time.Duration) ListViewOption {
	return func(v *ListView) { v.debounce = d }
}

// WithTimerFunc overrides the timer constructor. Tests use this to fire the
// debounce deterministically.
func WithTimerFunc(f func(time.Duration, func()) *time.Timer) ListViewOption {
	return func(v *ListView) { v.afterFunc = f }
}

// WithOnSettle registers a callback invoked when a debounced search settles.
// The callback should trigger a Load.
func WithOnSettle(f func()) ListViewOption {
	return func(v *ListView) { v.onSettle = f }
}

// NewListView constructs a view over one resource.
func NewListView(resource string, fetch Fetcher, cache *QueryCache, opts ListOptions, viewOpts ...ListViewOption) *ListView {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = models.DefaultPageSize
	}
	v := &ListView{
		resource:  resource,
		fetch:     fetch,
		cache:     cache,
		opts:      opts,
		rawSearch: opts.Search,
		debounce:  DefaultSearchDebounce,
		afterFunc: time.AfterFunc,
	}
	for _, opt := range viewOpts {
		opt(v)
	}
	return v
}

// SetSearch records a keystroke. The settled search only changes after the
// debounce interval passes with no further input.
func (v *ListView) SetSearch(query string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.rawSearch = query
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = v.afterFunc(v.debounce, v.settleSearch)
}

func (v *ListView) settleSearch() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	settled := strings.TrimSpace(v.rawSearch)
	changed := settled != v.opts.Search
	if changed {
		v.opts.Search = settled
		v.opts.Page = 1
		v.seq++
	}
	callback := v.onSettle
	v.mu.Unlock()

	if changed && callback != nil {
		callback()
	}
}

// SetFilter applies a filter immediately and resets to the first page. An
// empty or "all" value removes the filter.
func (v *ListView) SetFilter(key, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.opts.Filters == nil {
		v.opts.Filters = make(map[string]string)
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		delete(v.opts.Filters, key)
	} else {
		v.opts.Filters[key] = trimmed
	}
	v.opts.Page = 1
	v.seq++
}

// SetSort applies a sort column and order, keeping the current page.
func (v *ListView) SetSort(sortBy, sortOrder string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.opts.SortBy = sortBy
	v.opts.SortOrder = sortOrder
	v.seq++
}

// SetPage jumps to a specific page, clamped to at least 1.
func (v *ListView) SetPage(page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if page < 1 {
		page = 1
	}
	v.opts.Page = page
	v.seq++
}

// NextPage advances one page unless the current metadata says this is the
// last one.
func (v *ListView) NextPage() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	if v.state.Meta != nil && v.opts.Page >= v.state.Meta.LastPage {
		return false
	}
	v.opts.Page++
	v.seq++
	return true
}

// PrevPage steps back one page, stopping at the first.
func (v *ListView) PrevPage() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	if v.opts.Page <= 1 {
		return false
	}
	v.opts.Page--
	v.seq++
	return true
}

// Options returns a copy of the currently applied options.
func (v *ListView) Options() ListOptions {
	v.mu.Lock()
	defer v.mu.Unlock()
	opts := v.opts
	if v.opts.Filters != nil {
		opts.Filters = make(map[string]string, len(v.opts.Filters))
		for k, val := range v.opts.Filters {
			opts.Filters[k] = val
		}
	}
	return opts
}

// State returns the current render snapshot.
func (v *ListView) State() ListState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Load fetches the page for the applied options, going through the query
// cache when one is configured. A response for an options snapshot that was
// superseded mid-flight is dropped.
func (v *ListView) Load(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	startSeq := v.seq
	opts := v.opts
	v.state.Loading = true
	v.state.Err = nil
	v.mu.Unlock()

	type page struct {
		items interface{}
		meta  *models.ListMeta
	}

	var result page
	var err error
	if v.cache != nil {
		key := Key(v.resource, opts.QueryString())
		var loaded interface{}
		loaded, err = v.cache.Load(ctx, key, func(ctx context.Context) (interface{}, error) {
			items, meta, fetchErr := v.fetch(ctx, opts)
			if fetchErr != nil {
				return nil, fetchErr
			}
			return page{items: items, meta: meta}, nil
		})
		if err == nil {
			result = loaded.(page)
		}
	} else {
		result.items, result.meta, err = v.fetch(ctx, opts)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seq != startSeq {
		// The user moved on while this request was in flight.
		return nil
	}
	v.state.Loading = false
	if err != nil {
		v.state.Err = err
		return err
	}
	v.state.Items = result.items
	v.state.Meta = result.meta
	return nil
}

// Invalidate clears the cached pages for this view's resource, typically
// after a mutation.
func (v *ListView) Invalidate() {
	if v.cache != nil {
		v.cache.Invalidate(v.resource)
	}
}

// Close stops the debounce timer. Further input is ignored.
func (v *ListView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}
