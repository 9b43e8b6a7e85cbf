// Package urlwatch implements the URL watcher (spec.md §4.3, C3): a cheap
// pre-filter that lets the repo processor skip a git fetch when a
// repository's snoop URL shows no sign of having changed.
package urlwatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sync"
)

// entry is the persisted state for one URL (spec.md §3 "URL-watcher
// entry").
type entry struct {
	ETagOrHash string `json:"etagOrHash"`
	Status     int    `json:"status"`
}

// Watcher caches the last-observed content signature and HTTP status per
// URL. It is single-writer: the coordinator owns it between cycles
// (spec.md §5).
type Watcher struct {
	client *http.Client

	mu      sync.Mutex
	entries map[string]entry
}

// New constructs a Watcher. client may be nil, in which case
// http.DefaultClient is used.
func New(client *http.Client) *Watcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Watcher{client: client, entries: make(map[string]entry)}
}

// Peek probes url, reports whether it appears to have changed since the
// last Peek or MarkVisited, and records the new observation. Rule
// (spec.md §4.3): changed if there is no prior entry, the last observed
// status was >= 400, the signature differs from the current fetch, or the
// probe itself fails (fail-open to "changed"). Two consecutive Peek calls
// against an unchanging URL return (true, false) (spec.md §8 property 5).
func (w *Watcher) Peek(url string) bool {
	sig, status, err := w.probe(url)
	if err != nil {
		w.mu.Lock()
		w.entries[url] = entry{Status: 599}
		w.mu.Unlock()
		return true
	}

	w.mu.Lock()
	prev, ok := w.entries[url]
	w.entries[url] = entry{ETagOrHash: sig, Status: status}
	w.mu.Unlock()

	if !ok {
		return true
	}
	if prev.Status >= 400 {
		return true
	}
	return prev.ETagOrHash != sig || status != prev.Status
}

// MarkVisited records that url has been consumed this cycle without a
// fresh probe, using the signature already implied by a successful Peek.
// It is a no-op if Peek was never called for url.
func (w *Watcher) MarkVisited(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[url]; ok {
		w.entries[url] = e
	}
}

// probe fetches url and returns a signature (the ETag header if present,
// else a hash of the body) plus the HTTP status code.
func (w *Watcher) probe(url string) (signature string, status int, err error) {
	resp, err := w.client.Get(url)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if etag := resp.Header.Get("ETag"); etag != "" {
		_, _ = io.Copy(io.Discard, resp.Body)
		return etag, resp.StatusCode, nil
	}

	h := sha256.New()
	if _, err := io.Copy(h, resp.Body); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), resp.StatusCode, nil
}

// persisted is the on-disk/in-memory-stream shape for Load/Dump.
type persisted struct {
	Entries map[string]entry `json:"entries"`
}

// Load replaces the cache with state decoded from stream (spec.md §3:
// "Persisted between cycles to a single file").
func (w *Watcher) Load(stream io.Reader) error {
	var p persisted
	if err := json.NewDecoder(stream).Decode(&p); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if p.Entries == nil {
		p.Entries = make(map[string]entry)
	}
	w.entries = p.Entries
	return nil
}

// Dump serializes the current cache to stream.
func (w *Watcher) Dump(stream io.Writer) error {
	w.mu.Lock()
	p := persisted{Entries: make(map[string]entry, len(w.entries))}
	for k, v := range w.entries {
		p.Entries[k] = v
	}
	w.mu.Unlock()
	return json.NewEncoder(stream).Encode(p)
}
