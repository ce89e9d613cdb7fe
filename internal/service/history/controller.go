package history

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"callfeed-backend/internal/domain"
	"callfeed-backend/pkg/logger"
	"callfeed-backend/pkg/metrics"
)

// LoadState is the controller's position in the load cycle
type LoadState string

const (
	StateEmpty   LoadState = "empty"
	StateLoading LoadState = "loading"
	StateLoaded  LoadState = "loaded"
)

// Renderer is the presentation boundary. The controller signals that the
// whole window was replaced or that specific rows changed; it knows
// nothing about scroll position, cell reuse, or animation.
type Renderer interface {
	WindowReplaced()
	RowsUpdated(keys []domain.CallRecordKey)
}

// Controller orchestrates the loader, the window and the deriver to serve
// "load older", "load newer" and targeted refresh requests.
//
// Not safe for concurrent use: all transitions run to completion on one
// control goroutine (see Feed). Other goroutines only enqueue events.
type Controller struct {
	loader   *Loader
	deriver  *Deriver
	window   *Window
	renderer Renderer
	metrics  *metrics.Metrics

	filter     Filter
	generation uint64

	state       LoadState
	loadingDir  PageDirection
	atTopEdge   bool
	activeCall  *uint64
	pageSize    int
	initialized bool
}

// ControllerConfig tunes a controller instance
type ControllerConfig struct {
	PageSize       int
	WindowCapacity int
}

// NewController creates a controller with an empty window. The viewport is
// assumed to start at the top edge.
func NewController(loader *Loader, deriver *Deriver, renderer Renderer, m *metrics.Metrics, cfg ControllerConfig) *Controller {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		loader:    loader,
		deriver:   deriver,
		window:    NewWindow(cfg.WindowCapacity),
		renderer:  renderer,
		metrics:   m,
		state:     StateEmpty,
		atTopEdge: true,
		pageSize:  pageSize,
	}
}

// Window exposes the current window for read access on the control thread
func (c *Controller) Window() *Window {
	return c.window
}

// State returns the controller's load state
func (c *Controller) State() LoadState {
	return c.state
}

// Filter returns the active filter configuration
func (c *Controller) Filter() Filter {
	return c.filter
}

// SetFilter applies a new filter configuration. An unchanged configuration
// is a no-op. A change clears the window, invalidates any stale in-flight
// results via the generation token, and issues the initial load.
func (c *Controller) SetFilter(ctx context.Context, filter Filter) error {
	filter = filter.Normalize()
	if c.initialized && c.filter.Equal(filter) {
		return nil
	}
	c.filter = filter
	c.initialized = true
	c.generation++
	c.window.Clear()
	c.state = StateEmpty
	c.renderer.WindowReplaced()

	return c.load(ctx, DirectionOlder, nil, true)
}

// LoadMore grows the window one page in the given direction. The watermark
// comes from the window edge opposite to growth; a newer-direction load on
// an empty window falls back to the initial older load. Re-entering a load
// for the direction already in flight is a no-op.
func (c *Controller) LoadMore(ctx context.Context, direction PageDirection) error {
	if !c.initialized {
		return fmt.Errorf("controller has no filter yet")
	}
	if c.state == StateLoading && c.loadingDir == direction {
		return nil
	}

	switch direction {
	case DirectionOlder:
		oldest, ok := c.window.Oldest()
		if !ok {
			return c.load(ctx, DirectionOlder, nil, true)
		}
		watermark := oldest.StartedAtMS
		return c.load(ctx, DirectionOlder, &watermark, false)

	case DirectionNewer:
		newest, ok := c.window.Newest()
		if !ok {
			return c.load(ctx, DirectionOlder, nil, true)
		}
		watermark := newest.StartedAtMS
		return c.load(ctx, DirectionNewer, &watermark, false)

	default:
		return fmt.Errorf("unknown page direction %q", direction)
	}
}

// OnViewportChanged records whether the presentation is showing the top
// edge of the list. New-record events only trigger loads while it is.
func (c *Controller) OnViewportChanged(atTop bool) {
	c.atTopEdge = atTop
}

// OnRecordInserted reacts to a record landing in the store. A newer load
// is issued only while the viewport includes the top edge; otherwise the
// record is picked up on the next top-ward scroll or full reload.
func (c *Controller) OnRecordInserted(ctx context.Context) error {
	if !c.initialized || !c.atTopEdge {
		return nil
	}
	return c.LoadMore(ctx, DirectionNewer)
}

// OnRecordChanged re-derives the rows for the affected keys. Keys not in
// the window are silently ignored.
func (c *Controller) OnRecordChanged(ctx context.Context, keys []domain.CallRecordKey) error {
	return c.refresh(ctx, keys)
}

// OnCallStateChanged updates the ambient active-call identifier and
// re-derives the rows for both the previously and the newly active call.
func (c *Controller) OnCallStateChanged(ctx context.Context, oldCallID, newCallID *uint64) error {
	c.activeCall = newCallID

	var keys []domain.CallRecordKey
	for _, id := range []*uint64{oldCallID, newCallID} {
		if id == nil {
			continue
		}
		for _, row := range c.window.Rows() {
			if row.Key.CallID == *id {
				keys = append(keys, row.Key)
			}
		}
	}
	return c.refresh(ctx, keys)
}

// load runs one synchronous page load and merges the result. A filter
// change bumping the generation while the read is in flight discards the
// stale results instead of cancelling the read.
func (c *Controller) load(ctx context.Context, direction PageDirection, watermark *int64, replace bool) error {
	generation := c.generation
	filter := c.filter
	c.state = StateLoading
	c.loadingDir = direction

	records, err := c.loader.LoadPage(ctx, filter, PageRequest{
		Direction: direction,
		Watermark: watermark,
		PageSize:  c.pageSize,
	})
	if err != nil {
		c.state = StateEmpty
		if c.window.Len() > 0 {
			c.state = StateLoaded
		}
		return err
	}

	if generation != c.generation {
		logger.Debug("discarding stale page load",
			zap.Uint64("generation", generation),
			zap.Uint64("current", c.generation),
		)
		return nil
	}

	rows, err := c.deriveAll(ctx, records)
	if err != nil {
		c.state = StateEmpty
		if c.window.Len() > 0 {
			c.state = StateLoaded
		}
		return err
	}

	before := c.window.Len()
	switch {
	case replace:
		c.window.ReplaceAll(rows)
	case direction == DirectionOlder:
		c.window.MergeOlder(rows)
	default:
		c.window.MergeNewer(rows)
	}
	c.state = StateLoaded
	if c.metrics != nil {
		c.metrics.RecordHistoryLoad(string(direction), len(rows))
		if evicted := before + len(rows) - c.window.Len(); evicted > 0 {
			c.metrics.RecordHistoryEviction(string(direction), evicted)
		}
	}

	c.renderer.WindowReplaced()
	return nil
}

// refresh applies targeted row replacement for the given keys and signals
// the presentation with the set actually replaced.
func (c *Controller) refresh(ctx context.Context, keys []domain.CallRecordKey) error {
	if len(keys) == 0 {
		return nil
	}
	ambient := Ambient{ActiveCallID: c.activeCall}
	replaced, err := c.window.ReplaceMany(keys, func(key domain.CallRecordKey) (*ViewRow, error) {
		rec, err := c.loader.GetRecord(ctx, key)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if rec.IsDeleted() {
			return nil, nil
		}
		return c.deriver.Derive(ctx, rec, ambient)
	})
	if err != nil {
		return err
	}
	if len(replaced) > 0 {
		c.renderer.RowsUpdated(replaced)
	}
	return nil
}

func (c *Controller) deriveAll(ctx context.Context, records []domain.CallRecord) ([]ViewRow, error) {
	ambient := Ambient{ActiveCallID: c.activeCall}
	rows := make([]ViewRow, 0, len(records))
	for i := range records {
		row, err := c.deriver.Derive(ctx, &records[i], ambient)
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}
