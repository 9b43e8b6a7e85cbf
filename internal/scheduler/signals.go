package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Signal is the distinguished condition a signals-operation check may
// raise (spec.md §4.9, re-architected per spec.md §9 as an explicit
// return value rather than an exception crossing call levels).
type Signal int

const (
	// SignalNone means neither a shutdown nor a reset was requested; the
	// caller proceeds with its normal cycle.
	SignalNone Signal = iota
	// SignalShutdown means the kill-file was observed: graceful shutdown
	// is requested.
	SignalShutdown
	// SignalReset means the reset-file was observed: the current
	// iteration is torn down and the scheduler loop restarts fresh.
	SignalReset
)

// Notifier delivers an admin-facing message. Satisfied by
// internal/notify.AdminNotifier; narrowed locally so this package doesn't
// depend on it.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// SignalWatcher checks the kill-file, reset-file and pause-file under one
// directory (spec.md §4.9, §6 "special files").
type SignalWatcher struct {
	dir        string
	killFile   string
	resetFile  string
	pauseFile  string
	notifier   Notifier
	notifyEvery time.Duration
}

// NewSignalWatcher builds a SignalWatcher rooted at dir (typically
// var/command under the data root). notifier may be nil.
func NewSignalWatcher(dir string, notifier Notifier) *SignalWatcher {
	return &SignalWatcher{
		dir:         dir,
		killFile:    filepath.Join(dir, "killfile"),
		resetFile:   filepath.Join(dir, "resetfile"),
		pauseFile:   filepath.Join(dir, "pausefile"),
		notifier:    notifier,
		notifyEvery: 5 * time.Minute,
	}
}

// Check runs the signals operation: observes kill-file/reset-file/
// pause-file at the top of an iteration. A kill-file or reset-file is
// consumed (removed) once observed, acknowledging it to whoever wrote it
// (spec.md §4.11's restart protocol waits on exactly this removal). A
// pause-file blocks until it is removed, notifying periodically while
// waiting.
func (w *SignalWatcher) Check(ctx context.Context) (Signal, error) {
	if exists(w.killFile) {
		if err := removeIfExists(w.killFile); err != nil {
			return SignalNone, err
		}
		return SignalShutdown, nil
	}
	if exists(w.resetFile) {
		if err := removeIfExists(w.resetFile); err != nil {
			return SignalNone, err
		}
		return SignalReset, nil
	}
	if exists(w.pauseFile) {
		if err := w.waitForPauseRemoval(ctx); err != nil {
			return SignalNone, err
		}
	}
	return SignalNone, nil
}

func (w *SignalWatcher) waitForPauseRemoval(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch pause-file: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if !exists(w.pauseFile) {
		// Removed between the existence check in Check and here.
		return nil
	}

	if w.notifier != nil {
		_ = w.notifier.Notify(ctx, "arcyd is paused: remove "+w.pauseFile+" to resume")
	}

	ticker := time.NewTicker(w.notifyEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name == w.pauseFile && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				return nil
			}
			if !exists(w.pauseFile) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		case <-ticker.C:
			if !exists(w.pauseFile) {
				return nil
			}
			if w.notifier != nil {
				_ = w.notifier.Notify(ctx, "arcyd is still paused: remove "+w.pauseFile+" to resume")
			}
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
