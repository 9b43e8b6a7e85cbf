// Package leader implements optional leader election (spec.md §4.12,
// C12) against Consul: a session bound to the service name, a
// compare-and-swap acquisition of `kv/<service>/leader`, and polling
// with back-off while the lock is held elsewhere.
package leader

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"
)

// Config configures an Elector.
type Config struct {
	// Service names both the Consul session and the KV key
	// (kv/<service>/leader).
	Service string
	// Address is the Consul HTTP API address (e.g. "127.0.0.1:8500").
	// Empty uses the client library's own default resolution.
	Address string
	// SessionTTL bounds how long the session survives without a renewal;
	// the daemon does not renew explicitly, so this should exceed the
	// process's expected lifetime or the caller should renew out of band.
	SessionTTL time.Duration
	// PollInterval is the back-off between acquisition attempts while the
	// lock is held elsewhere (spec.md §4.12: "a 5-second back-off").
	PollInterval time.Duration
}

// Elector holds (or waits to hold) the leader lock for one service.
type Elector struct {
	client    *api.Client
	cfg       Config
	key       string
	sessionID string
}

// New builds an Elector. It does not contact Consul until Acquire is
// called.
func New(cfg Config) (*Elector, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Second
	}

	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("leader: new consul client: %w", err)
	}

	return &Elector{
		client: client,
		cfg:    cfg,
		key:    fmt.Sprintf("%s/leader", cfg.Service),
	}, nil
}

// Acquire creates a session keyed by the service name and blocks,
// retrying on cfg.PollInterval, until this process holds the leader
// lock or ctx is cancelled. On success it returns the session ID, which
// Release needs to give up the lock cleanly.
func (e *Elector) Acquire(ctx context.Context) (string, error) {
	sessionID, _, err := e.client.Session().Create(&api.SessionEntry{
		Name: e.cfg.Service,
		TTL:  e.cfg.SessionTTL.String(),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("leader: create session: %w", err)
	}
	e.sessionID = sessionID

	kv := e.client.KV()
	pair := &api.KVPair{Key: e.key, Value: []byte(e.cfg.Service), Session: sessionID}

	for {
		acquired, _, err := kv.Acquire(pair, nil)
		if err != nil {
			return "", fmt.Errorf("leader: acquire %s: %w", e.key, err)
		}
		if acquired {
			return sessionID, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// IsLeader reports whether this process currently holds the lock,
// re-reading the key's session owner from Consul.
func (e *Elector) IsLeader(ctx context.Context) (bool, error) {
	if e.sessionID == "" {
		return false, nil
	}
	kv := e.client.KV()
	pair, _, err := kv.Get(e.key, nil)
	if err != nil {
		return false, fmt.Errorf("leader: get %s: %w", e.key, err)
	}
	if pair == nil || pair.Session == "" {
		return false, nil
	}
	return pair.Session == e.sessionID, nil
}

// Release gives up the lock (if held) and destroys the session.
func (e *Elector) Release() error {
	if e.sessionID == "" {
		return nil
	}
	kv := e.client.KV()
	pair := &api.KVPair{Key: e.key, Session: e.sessionID}
	if _, _, err := kv.Release(pair, nil); err != nil {
		return fmt.Errorf("leader: release %s: %w", e.key, err)
	}
	if _, err := e.client.Session().Destroy(e.sessionID, nil); err != nil {
		return fmt.Errorf("leader: destroy session: %w", err)
	}
	e.sessionID = ""
	return nil
}
