package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicore/medicore-api/internal/models"
)

// manualTimer captures debounce callbacks so tests fire them explicitly
// instead of sleeping.
type manualTimer struct {
	mu       sync.Mutex
	pending  func()
	delays   []time.Duration
	restarts int
}

func (m *manualTimer) afterFunc(d time.Duration, fn func()) *time.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = fn
	m.delays = append(m.delays, d)
	m.restarts++
	// A long real timer backs the handle; tests fire the callback manually.
	return time.AfterFunc(time.Hour, func() {})
}

func (m *manualTimer) fire() {
	m.mu.Lock()
	fn := m.pending
	m.pending = nil
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type recordedFetch struct {
	mu    sync.Mutex
	opts  []ListOptions
	items interface{}
	meta  *models.ListMeta
	err   error
	block chan struct{}
}

func (r *recordedFetch) fetch(ctx context.Context, opts ListOptions) (interface{}, *models.ListMeta, error) {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	if r.err != nil {
		return nil, nil, r.err
	}
	return r.items, r.meta, nil
}

func (r *recordedFetch) calls() []ListOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ListOptions, len(r.opts))
	copy(out, r.opts)
	return out
}

func TestListViewDebouncesSearch(t *testing.T) {
	timer := &manualTimer{}
	fetch := &recordedFetch{items: []string{"p1"}, meta: models.NewListMeta(1, 20, 1, 1)}
	settled := 0
	view := NewListView("patients", fetch.fetch, nil, ListOptions{Page: 3},
		WithTimerFunc(timer.afterFunc),
		WithOnSettle(func() { settled++ }))
	defer view.Close()

	// Three keystrokes arrive inside the debounce window; only the last one
	// survives.
	view.SetSearch("r")
	view.SetSearch("ri")
	view.SetSearch("rina")
	assert.Equal(t, 3, timer.restarts)
	assert.Empty(t, view.Options().Search)

	timer.fire()
	opts := view.Options()
	assert.Equal(t, "rina", opts.Search)
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, 1, settled)
	assert.Equal(t, []time.Duration{DefaultSearchDebounce, DefaultSearchDebounce, DefaultSearchDebounce}, timer.delays)
}

func TestListViewSearchSettleIsIdempotent(t *testing.T) {
	timer := &manualTimer{}
	fetch := &recordedFetch{meta: models.NewListMeta(1, 20, 0, 0)}
	settled := 0
	view := NewListView("patients", fetch.fetch, nil, ListOptions{},
		WithTimerFunc(timer.afterFunc),
		WithOnSettle(func() { settled++ }))
	defer view.Close()

	view.SetSearch("rina")
	timer.fire()
	require.Equal(t, 1, settled)

	// Retyping the same settled text does not fire another reload.
	view.SetSearch("rina ")
	timer.fire()
	assert.Equal(t, 1, settled)
}

func TestListViewFilterResetsPage(t *testing.T) {
	fetch := &recordedFetch{meta: models.NewListMeta(1, 20, 0, 0)}
	view := NewListView("patients", fetch.fetch, nil, ListOptions{Page: 4})
	defer view.Close()

	view.SetFilter("city", "Jakarta")
	opts := view.Options()
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, "Jakarta", opts.Filters["city"])

	// The "all" sentinel removes the filter entirely.
	view.SetFilter("city", "all")
	_, ok := view.Options().Filters["city"]
	assert.False(t, ok)
}

func TestListViewPageBounds(t *testing.T) {
	fetch := &recordedFetch{items: []string{"x"}, meta: models.NewListMeta(2, 20, 45, 20)}
	view := NewListView("patients", fetch.fetch, nil, ListOptions{Page: 2})
	defer view.Close()

	require.NoError(t, view.Load(context.Background()))
	require.NotNil(t, view.State().Meta)
	assert.Equal(t, 3, view.State().Meta.LastPage)

	assert.True(t, view.NextPage())
	assert.Equal(t, 3, view.Options().Page)
	assert.False(t, view.NextPage())

	assert.True(t, view.PrevPage())
	assert.True(t, view.PrevPage())
	assert.False(t, view.PrevPage())
	assert.Equal(t, 1, view.Options().Page)
}

func TestListViewLoadPopulatesState(t *testing.T) {
	fetch := &recordedFetch{items: []string{"p1", "p2"}, meta: models.NewListMeta(1, 20, 2, 2)}
	view := NewListView("patients", fetch.fetch, NewQueryCache(), ListOptions{})
	defer view.Close()

	require.NoError(t, view.Load(context.Background()))
	state := view.State()
	assert.False(t, state.Loading)
	assert.NoError(t, state.Err)
	assert.Equal(t, []string{"p1", "p2"}, state.Items)
	assert.Equal(t, 2, state.Meta.Total)
	assert.False(t, state.Empty())

	// Second load for the same options is served by the query cache.
	require.NoError(t, view.Load(context.Background()))
	assert.Len(t, fetch.calls(), 1)
}

func TestListViewLoadErrorState(t *testing.T) {
	fetch := &recordedFetch{err: errors.New("upstream down")}
	view := NewListView("patients", fetch.fetch, nil, ListOptions{})
	defer view.Close()

	require.Error(t, view.Load(context.Background()))
	state := view.State()
	assert.Error(t, state.Err)
	assert.False(t, state.Empty())
}

func TestListViewDropsStaleLoad(t *testing.T) {
	block := make(chan struct{})
	fetch := &recordedFetch{items: []string{"old"}, meta: models.NewListMeta(1, 20, 1, 1), block: block}
	view := NewListView("patients", fetch.fetch, nil, ListOptions{})
	defer view.Close()

	done := make(chan error, 1)
	go func() { done <- view.Load(context.Background()) }()

	// The user changes a filter while the first page is still loading.
	require.Eventually(t, func() bool { return len(fetch.calls()) == 1 }, time.Second, 5*time.Millisecond)
	view.SetFilter("city", "Jakarta")
	close(block)
	require.NoError(t, <-done)

	// The superseded response never reached the rendered state.
	state := view.State()
	assert.Nil(t, state.Items)
	assert.Nil(t, state.Meta)
}

func TestListViewEmptyState(t *testing.T) {
	fetch := &recordedFetch{items: []string{}, meta: models.NewListMeta(1, 20, 0, 0)}
	view := NewListView("patients", fetch.fetch, nil, ListOptions{})
	defer view.Close()

	require.NoError(t, view.Load(context.Background()))
	assert.True(t, view.State().Empty())
}

func TestListViewCloseIgnoresInput(t *testing.T) {
	timer := &manualTimer{}
	fetch := &recordedFetch{meta: models.NewListMeta(1, 20, 0, 0)}
	view := NewListView("patients", fetch.fetch, nil, ListOptions{}, WithTimerFunc(timer.afterFunc))

	view.Close()
	view.SetSearch("rina")
	assert.Equal(t, 0, timer.restarts)

	view.SetFilter("city", "Jakarta")
	view.SetSort("name", "asc")
	view.SetPage(4)
	assert.False(t, view.NextPage())
	assert.False(t, view.PrevPage())
	opts := view.Options()
	assert.Empty(t, opts.Filters)
	assert.Empty(t, opts.SortBy)
	assert.Equal(t, 1, opts.Page)

	require.NoError(t, view.Load(context.Background()))
	assert.Empty(t, fetch.calls())
}
