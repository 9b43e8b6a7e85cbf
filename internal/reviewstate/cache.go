// Package reviewstate implements the review-state cache (spec.md §4.4,
// C4): batch-refreshed status lookups for a tracked set of review IDs.
package reviewstate

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/arcyd/arcyd/internal/domain"
)

// ErrNoStatusLister is returned when Get or RefreshActive is called before
// a StatusLister has been installed. Per spec.md §9's resolved open
// question, the cache takes its status-list callable by dependency
// injection rather than constructing its own client, so a missing
// callable is a programmer error the cache surfaces rather than hides.
var ErrNoStatusLister = errors.New("reviewstate: no status lister installed")

// StatusLister batch-queries review statuses; backed in production by
// domain.ReviewClient.QueryStatuses.
type StatusLister func(ctx context.Context, ids []int) (map[int]domain.ReviewStatus, error)

// Cache holds the last-known status of every review_id it has been asked
// about, plus the set observed "active" this cycle (spec.md §3).
type Cache struct {
	lister StatusLister

	mu     sync.Mutex
	status map[int]domain.ReviewStatus
	active map[int]struct{}
}

// New constructs a Cache. lister may be nil and installed later with
// SetLister, but Get/RefreshActive return ErrNoStatusLister until one is
// set.
func New(lister StatusLister) *Cache {
	return &Cache{
		lister: lister,
		status: make(map[int]domain.ReviewStatus),
		active: make(map[int]struct{}),
	}
}

// SetLister installs or replaces the status-list callable.
func (c *Cache) SetLister(lister StatusLister) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lister = lister
}

// Get returns the status for id, fetching it on a cache miss, and records
// id's membership in the active set regardless of hit or miss.
func (c *Cache) Get(ctx context.Context, id int) (domain.ReviewStatus, error) {
	c.mu.Lock()
	c.active[id] = struct{}{}
	status, ok := c.status[id]
	lister := c.lister
	c.mu.Unlock()

	if ok {
		return status, nil
	}
	if lister == nil {
		return "", ErrNoStatusLister
	}

	result, err := lister(ctx, []int{id})
	if err != nil {
		return "", err
	}
	status, ok = result[id]
	if !ok {
		return "", &domain.UnknownPhidError{PHID: strconv.Itoa(id)}
	}

	c.mu.Lock()
	c.status[id] = status
	c.mu.Unlock()
	return status, nil
}

// RefreshActive issues one batched query for the union of the active set
// and replaces the stored map with the response (spec.md §4.4). It is a
// no-op on an empty active set and makes no call in that case. The active
// set is cleared whether or not there was anything to refresh.
func (c *Cache) RefreshActive(ctx context.Context) error {
	c.mu.Lock()
	if len(c.active) == 0 {
		c.mu.Unlock()
		return nil
	}
	ids := make([]int, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	lister := c.lister
	c.mu.Unlock()

	if lister == nil {
		return ErrNoStatusLister
	}

	fresh, err := lister(ctx, ids)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.status = fresh
	c.active = make(map[int]struct{})
	c.mu.Unlock()
	return nil
}

// Peek returns the currently cached status without triggering a fetch or
// marking id active; ok is false on a cache miss.
func (c *Cache) Peek(id int) (status domain.ReviewStatus, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok = c.status[id]
	return status, ok
}

// ActiveCount reports how many review IDs are currently marked active.
func (c *Cache) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
