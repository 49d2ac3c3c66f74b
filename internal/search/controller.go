// Package search holds the video search state: query, paging, ordering and
// a selection set that survives paging.
package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
	"github.com/kurihiro0119/bili-comment/internal/poll"
)

// DefaultDebounce is the quiet period before a debounced search runs.
const DefaultDebounce = 300 * time.Millisecond

// Controller runs searches through the gateway. At most one search is in
// flight; calls made meanwhile are skipped.
type Controller struct {
	gw        gateway.Gateway
	logger    *slog.Logger
	debouncer *poll.Debouncer

	mu       sync.Mutex
	keyword  string
	page     int
	pageSize int
	order    domain.SearchOrder
	total    int
	items    []domain.Video
	loading  bool
	selected map[string]domain.Video
	picked   []string // selection order
	onChange func()
}

// NewController creates a controller with default paging and ordering.
func NewController(gw gateway.Gateway, sched poll.Scheduler, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		gw:        gw,
		logger:    logger,
		debouncer: poll.NewDebouncer(sched),
		page:      1,
		pageSize:  domain.DefaultPageSize,
		order:     domain.DefaultSearchOrder,
		selected:  make(map[string]domain.Video),
	}
}

// OnChange registers fn to be called after each completed search.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Search starts a new search for keyword from page 1 and clears the selection.
func (c *Controller) Search(ctx context.Context, keyword string) error {
	return c.SearchAt(ctx, keyword, 1)
}

// SearchAt is Search starting from page.
func (c *Controller) SearchAt(ctx context.Context, keyword string, page int) error {
	c.mu.Lock()
	c.keyword = keyword
	c.page = max(page, 1)
	c.clearSelectionLocked()
	c.mu.Unlock()

	return c.run(ctx)
}

// Refresh repeats the search with the current keyword, page and order.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.run(ctx)
}

// SearchDebounced runs Search(keyword) once no other call arrived for delay.
func (c *Controller) SearchDebounced(ctx context.Context, keyword string, delay time.Duration) {
	c.debouncer.Trigger(delay, func() {
		if err := c.Search(ctx, keyword); err != nil {
			c.logger.Warn("debounced search failed", "keyword", keyword, "error", err)
		}
	})
}

// CancelPending drops a debounced search that has not fired yet.
func (c *Controller) CancelPending() {
	c.debouncer.Cancel()
}

// SetPage moves to page and searches again.
func (c *Controller) SetPage(ctx context.Context, page int) error {
	c.mu.Lock()
	c.page = max(page, 1)
	c.mu.Unlock()
	return c.run(ctx)
}

// SetOrder changes the ordering, resets to page 1 and searches again.
func (c *Controller) SetOrder(ctx context.Context, order domain.SearchOrder) error {
	c.mu.Lock()
	c.order = order
	c.page = 1
	c.mu.Unlock()
	return c.run(ctx)
}

// UseOrder changes the ordering used by the next search without searching.
func (c *Controller) UseOrder(order domain.SearchOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if order != "" {
		c.order = order
	}
}

// SetPageSize changes the page size used by the next search.
func (c *Controller) SetPageSize(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size > 0 {
		c.pageSize = size
	}
}

func (c *Controller) run(ctx context.Context) error {
	c.mu.Lock()
	keyword := strings.TrimSpace(c.keyword)
	if keyword == "" {
		c.items = nil
		c.total = 0
		fn := c.onChange
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
		return nil
	}
	if c.loading {
		c.mu.Unlock()
		c.logger.Debug("search already in flight, skipping")
		return nil
	}
	c.loading = true
	query := domain.SearchQuery{Keyword: keyword, Page: c.page, PageSize: c.pageSize, Order: c.order}
	c.mu.Unlock()

	result, err := c.gw.SearchVideos(ctx, query)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if strings.TrimSpace(c.keyword) == "" {
		// cleared while the request was in flight
		c.mu.Unlock()
		return nil
	}
	c.items = result.Items
	c.total = result.Total
	if result.Page > 0 {
		c.page = result.Page
	}
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// ToggleSelect adds video to the selection, or removes it if present.
func (c *Controller) ToggleSelect(video domain.Video) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selected[video.BVID]; ok {
		delete(c.selected, video.BVID)
		for i, id := range c.picked {
			if id == video.BVID {
				c.picked = append(c.picked[:i], c.picked[i+1:]...)
				break
			}
		}
		return
	}
	c.selected[video.BVID] = video
	c.picked = append(c.picked, video.BVID)
}

// SelectAll selects every video on the current page.
func (c *Controller) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.items {
		if _, ok := c.selected[v.BVID]; !ok {
			c.selected[v.BVID] = v
			c.picked = append(c.picked, v.BVID)
		}
	}
}

// ClearSelection empties the selection.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearSelectionLocked()
}

func (c *Controller) clearSelectionLocked() {
	c.selected = make(map[string]domain.Video)
	c.picked = nil
}

// IsSelected reports whether the video with bvid is selected.
func (c *Controller) IsSelected(bvid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[bvid]
	return ok
}

// SelectedCount counts selected videos across all pages.
func (c *Controller) SelectedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selected)
}

// SelectedVideos returns the selected videos on the current page, in page order.
func (c *Controller) SelectedVideos() []domain.Video {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Video
	for _, v := range c.items {
		if _, ok := c.selected[v.BVID]; ok {
			out = append(out, v)
		}
	}
	return out
}

// AllSelected returns every selected video, including ones on other pages,
// in the order they were selected.
func (c *Controller) AllSelected() []domain.Video {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Video, 0, len(c.picked))
	for _, id := range c.picked {
		out = append(out, c.selected[id])
	}
	return out
}

// TotalPages is ceil(total/pageSize).
func (c *Controller) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pageSize <= 0 {
		return 0
	}
	return (c.total + c.pageSize - 1) / c.pageSize
}

// Items returns a copy of the current page.
func (c *Controller) Items() []domain.Video {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Video(nil), c.items...)
}

func (c *Controller) Keyword() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyword
}

func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Controller) Order() domain.SearchOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order
}

func (c *Controller) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Loading reports whether a search is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}
