package rides

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"campus-rides/internal/metrics"
	"campus-rides/internal/notify"
	"campus-rides/pkg/sequence"
)

// FetchFailedMessage is shown when a listing request fails.
const FetchFailedMessage = "Failed to fetch rides"

// ErrInvalidPage is returned for page numbers below 1.
var ErrInvalidPage = errors.New("page must be a positive integer")

// API is the part of the backend client the controller needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

type listPayload struct {
	Rides      []Ride `json:"rides"`
	Pagination struct {
		CurrentPage int `json:"currentPage"`
		TotalPages  int `json:"totalPages"`
		TotalRides  int `json:"totalRides"`
	} `json:"pagination"`
}

// Controller owns the committed filters, the page cursor and the last
// fetched page of rides. Every change to filters or page re-fetches.
//
// Requests are numbered; a response is applied only if no later-numbered
// response has been applied already. Subscribers see snapshots in the order
// the changes were applied.
type Controller struct {
	api      API
	notifier notify.Notifier

	mu         sync.Mutex
	filters    Filters
	page       int
	rides      []Ride
	totalPages int
	totalRides int
	loading    bool
	err        string
	issued     uint64
	applied    uint64
	listeners  map[int]func(Snapshot)
	nextID     int

	delivery sequence.Sequencer
}

// NewController returns a controller on page 1 with no filters. Nothing is
// fetched until the first operation.
func NewController(api API, n notify.Notifier) *Controller {
	if n == nil {
		n = notify.Discard
	}
	return &Controller{
		api:       api,
		notifier:  n,
		page:      1,
		rides:     []Ride{},
		listeners: make(map[int]func(Snapshot)),
	}
}

// SubmitFilters replaces the committed filters with normalized form input
// and fetches page 1. Invalid input commits nothing.
func (c *Controller) SubmitFilters(ctx context.Context, in FormValues) error {
	f, err := Normalize(in)
	if err != nil {
		return err
	}
	return c.commit(ctx, func() {
		c.filters = f
		c.page = 1
	})
}

// QuickSetFilter merges one location field into the committed filters and
// fetches page 1.
func (c *Controller) QuickSetFilter(ctx context.Context, field Field, value string) error {
	if _, err := (Filters{}).With(field, value); err != nil {
		return err
	}
	return c.commit(ctx, func() {
		c.filters, _ = c.filters.With(field, value)
		c.page = 1
	})
}

// ClearFilters drops every filter and fetches page 1.
func (c *Controller) ClearFilters(ctx context.Context) error {
	return c.commit(ctx, func() {
		c.filters = Filters{}
		c.page = 1
	})
}

// SetPage moves the cursor and fetches with the current filters. Setting
// the page already shown is a no-op.
func (c *Controller) SetPage(ctx context.Context, n int) error {
	if n < 1 {
		return ErrInvalidPage
	}
	c.mu.Lock()
	same := c.page == n && c.issued > 0
	c.mu.Unlock()
	if same {
		return nil
	}
	return c.commit(ctx, func() { c.page = n })
}

// Refresh re-issues the current query.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.commit(ctx, func() {})
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for every later state change and returns a
// function that removes it. fn must not call the controller's fetching
// operations.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) commit(ctx context.Context, mutate func()) error {
	c.mu.Lock()
	mutate()
	c.issued++
	seq := c.issued
	query := c.filters.Values()
	query.Set("page", strconv.Itoa(c.page))
	query.Set("limit", strconv.Itoa(PageSize))
	c.loading = true
	c.err = ""
	c.publishLocked()

	var resp listPayload
	err := c.api.Get(ctx, "/rides", query, &resp)

	c.mu.Lock()
	if seq < c.applied {
		c.mu.Unlock()
		metrics.RideFetches.WithLabelValues("stale").Inc()
		log.Debug().Uint64("seq", seq).Msg("[rides] dropped stale response")
		return nil
	}
	c.applied = seq
	if seq == c.issued {
		c.loading = false
	}
	if err != nil {
		c.rides = []Ride{}
		c.err = FetchFailedMessage
	} else {
		c.rides = resp.Rides
		if c.rides == nil {
			c.rides = []Ride{}
		}
		c.totalPages = resp.Pagination.TotalPages
		c.totalRides = resp.Pagination.TotalRides
	}
	c.publishLocked()

	if err != nil {
		metrics.RideFetches.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("[rides] fetch failed")
		c.notifier.Notify(ctx, notify.New(notify.LevelError, "rides", FetchFailedMessage))
		return fmt.Errorf("fetch rides: %w", err)
	}
	metrics.RideFetches.WithLabelValues("ok").Inc()
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Filters:    c.filters,
		Page:       c.page,
		Rides:      append([]Ride{}, c.rides...),
		TotalPages: c.totalPages,
		TotalRides: c.totalRides,
		Loading:    c.loading,
		Err:        c.err,
	}
}

// publishLocked releases c.mu and hands the current snapshot to every
// listener. Deliveries run one at a time in the order of their changes.
func (c *Controller) publishLocked() {
	ticket := c.delivery.Ticket()
	var snap Snapshot
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	if len(fns) > 0 {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	c.delivery.Run(ticket, func() {
		for _, fn := range fns {
			fn(snap)
		}
	})
}
