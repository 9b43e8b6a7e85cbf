// Package identity implements the bidirectional username <-> service
// identifier cache (spec.md §4.5, C5), with batched, hint-driven
// resolution and graceful handling of unknown names.
package identity

import (
	"context"
	"sync"

	"github.com/arcyd/arcyd/internal/domain"
)

// BatchResolver resolves a set of usernames to identifiers in one round
// trip. resolved holds every name that was found; unknown lists every name
// in the request that was not. err is reserved for failures unrelated to
// unknown names (network errors, auth failures) and is never used to
// signal "some names were unknown" — that is always unknown, with a nil
// err.
type BatchResolver func(ctx context.Context, usernames []string) (resolved map[string]int, unknown []string, err error)

// EmailResolver resolves a single email address to a (username, id) pair.
type EmailResolver func(ctx context.Context, email string) (username string, id int, err error)

// Cache is the bidirectional identity cache of spec.md §3/§4.5.
type Cache struct {
	batch BatchResolver
	email EmailResolver

	mu           sync.Mutex
	usernameToID map[string]int
	idToUsername map[int]string
	hints        map[string]struct{}
	touched      map[string]struct{}
}

// New constructs a Cache. batch may be nil and supplied later via
// SetBatchResolver, but Phid then returns an error.
func New(batch BatchResolver, email EmailResolver) *Cache {
	return &Cache{
		batch:        batch,
		email:        email,
		usernameToID: make(map[string]int),
		idToUsername: make(map[int]string),
		hints:        make(map[string]struct{}),
		touched:      make(map[string]struct{}),
	}
}

// BeginCycle clears the touched set a subsequent PruneUntouched will
// consult, so only usernames resolved since this call count as live
// (spec.md §4.9's "prune dead entries from other caches").
func (c *Cache) BeginCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = make(map[string]struct{})
}

// PruneUntouched drops every cached (username, id) pair that has not been
// resolved (via Phid cache hit, fresh Phid resolution, or Email) since the
// last BeginCycle. Call once per scheduler cycle, after BeginCycle was
// called at the cycle's start.
func (c *Cache) PruneUntouched() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, id := range c.usernameToID {
		if _, ok := c.touched[name]; ok {
			continue
		}
		delete(c.usernameToID, name)
		delete(c.idToUsername, id)
	}
}

// SetBatchResolver installs or replaces the batch resolver.
func (c *Cache) SetBatchResolver(batch BatchResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batch = batch
}

// Hint queues username for the next batched resolution without resolving
// it immediately.
func (c *Cache) Hint(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.usernameToID[username]; ok {
		return
	}
	c.hints[username] = struct{}{}
}

// Phid resolves username to its service identifier, batch-resolving every
// currently hinted name on the first call after any Hint (spec.md §4.5).
//
// On a partial batch failure (some names unknown), the unknown names that
// were actually requested for their own sake are isolated: if username is
// among them, a single-name lookup is re-issued for it alone
// (UnknownUsernameError if that too fails), and the rest of the hint set
// is dropped rather than retried one by one — trading a slower subsequent
// cycle for forward progress now.
func (c *Cache) Phid(ctx context.Context, username string) (int, error) {
	c.mu.Lock()
	if id, ok := c.usernameToID[username]; ok {
		c.touched[username] = struct{}{}
		c.mu.Unlock()
		return id, nil
	}
	c.hints[username] = struct{}{}
	batch := make([]string, 0, len(c.hints))
	for name := range c.hints {
		batch = append(batch, name)
	}
	resolver := c.batch
	c.mu.Unlock()

	if resolver == nil {
		return 0, ErrNoBatchResolver
	}

	resolved, unknown, err := resolver(ctx, batch)
	if err != nil {
		return 0, err
	}

	c.applyResolved(resolved, batch)

	if id, ok := resolved[username]; ok {
		c.mu.Lock()
		c.touched[username] = struct{}{}
		c.mu.Unlock()
		return id, nil
	}
	if len(unknown) == 0 {
		// Resolver claims everything resolved but omitted the one name
		// we actually need: treat as unknown rather than panic on a
		// missing map entry.
		c.dropHints(batch)
		return 0, &domain.UnknownUsernameError{Username: username}
	}

	// username is among the unknowns: retry it alone.
	single, singleUnknown, err := resolver(ctx, []string{username})
	c.dropHints(batch)
	if err != nil {
		return 0, err
	}
	if id, ok := single[username]; ok {
		c.applyResolved(single, nil)
		c.mu.Lock()
		c.touched[username] = struct{}{}
		c.mu.Unlock()
		return id, nil
	}
	_ = singleUnknown
	return 0, &domain.UnknownUsernameError{Username: username}
}

// Username resolves a known identifier back to its username. It never
// triggers a network call: the pair must already have been populated by a
// successful Phid resolution.
func (c *Cache) Username(id int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.idToUsername[id]
	if !ok {
		return "", &domain.UnknownPhidError{PHID: name}
	}
	return name, nil
}

// Email resolves an email address to its (username, id) pair, populating
// both cache directions on success.
func (c *Cache) Email(ctx context.Context, address string) (username string, id int, err error) {
	if c.email == nil {
		return "", 0, ErrNoEmailResolver
	}
	username, id, err = c.email(ctx, address)
	if err != nil {
		return "", 0, err
	}
	if username == "" {
		return "", 0, &domain.UnknownEmailError{Email: address}
	}
	c.applyResolved(map[string]int{username: id}, nil)
	c.mu.Lock()
	c.touched[username] = struct{}{}
	c.mu.Unlock()
	return username, id, nil
}

func (c *Cache) applyResolved(resolved map[string]int, drainedHints []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, id := range resolved {
		c.usernameToID[name] = id
		c.idToUsername[id] = name
		delete(c.hints, name)
	}
	for _, name := range drainedHints {
		if _, ok := resolved[name]; !ok {
			continue
		}
		delete(c.hints, name)
	}
}

func (c *Cache) dropHints(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.hints, name)
	}
}

// HintCount reports how many usernames are currently queued for batch
// resolution.
func (c *Cache) HintCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hints)
}
