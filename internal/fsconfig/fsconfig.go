// Package fsconfig implements the repo-configuration directory (spec.md
// §4.13, C13): a single lock file guards the directory, and every
// multi-file mutation (add-repo, remove-repo) happens under that lock,
// writing its files atomically so a crash mid-mutation never leaves a
// half-written repo descriptor on disk.
package fsconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a named repo descriptor does not exist.
var ErrNotFound = errors.New("fsconfig: repo not found")

// ErrExists is returned by AddRepo when a repo descriptor already exists.
var ErrExists = errors.New("fsconfig: repo already exists")

const reposSubdir = "repos"

// Dir is the on-disk repo-configuration directory: one YAML file per
// repo descriptor under <root>/repos/, plus a lock file at <root>/lock
// (spec.md §6's var/run/lock) that WithLock acquires around any
// mutation.
type Dir struct {
	root     string
	lockPath string
	lock     *flock.Flock
	// retryDelay is how often TryLockContext retries acquisition while
	// the lock is held elsewhere.
	retryDelay time.Duration
}

// New builds a Dir rooted at root. It does not touch the filesystem.
func New(root string) *Dir {
	lockPath := filepath.Join(root, "lock")
	return &Dir{
		root:       root,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		retryDelay: 50 * time.Millisecond,
	}
}

// Init creates the repo-configuration directory layout if it doesn't
// already exist.
func (d *Dir) Init() error {
	if err := os.MkdirAll(filepath.Join(d.root, reposSubdir), 0o755); err != nil {
		return fmt.Errorf("fsconfig: init %s: %w", d.root, err)
	}
	return nil
}

// WithLock acquires the directory's advisory lock, runs fn, and always
// releases the lock afterward. This is the Go shape of spec.md's `with
// lockfile_context()`: every multi-file mutation goes through here.
func (d *Dir) WithLock(ctx context.Context, fn func() error) error {
	locked, err := d.lock.TryLockContext(ctx, d.retryDelay)
	if err != nil {
		return fmt.Errorf("fsconfig: acquire lock %s: %w", d.lockPath, err)
	}
	if !locked {
		return fmt.Errorf("fsconfig: could not acquire lock %s", d.lockPath)
	}
	defer d.lock.Unlock()

	return fn()
}

// RepoDescriptor mirrors spec.md §3's RD fields: identity, local
// working-copy path, remote name, human description, admin contact
// list, and an optional snoop URL.
type RepoDescriptor struct {
	Name        string   `yaml:"name"`
	HumanName   string   `yaml:"humanName"`
	WorkingCopy string   `yaml:"workingCopy"`
	Remote      string   `yaml:"remote"`
	RepoHost    string   `yaml:"repoHost"`
	ReviewHost  string   `yaml:"reviewHost"`
	AdminEmails []string `yaml:"adminEmails"`
	SnoopURL    string   `yaml:"snoopURL,omitempty"`
}

func (d *Dir) repoPath(name string) string {
	return filepath.Join(d.root, reposSubdir, name+".yaml")
}

// AddRepo writes a new repo descriptor under the directory's lock. It
// fails if a descriptor by that name already exists.
func (d *Dir) AddRepo(ctx context.Context, rd RepoDescriptor) error {
	return d.WithLock(ctx, func() error {
		path := d.repoPath(rd.Name)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, rd.Name)
		}
		return writeYAML(path, rd)
	})
}

// RemoveRepo deletes a repo descriptor under the directory's lock.
func (d *Dir) RemoveRepo(ctx context.Context, name string) error {
	return d.WithLock(ctx, func() error {
		err := os.Remove(d.repoPath(name))
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	})
}

// UpdateRepo overwrites an existing repo descriptor under the
// directory's lock.
func (d *Dir) UpdateRepo(ctx context.Context, rd RepoDescriptor) error {
	return d.WithLock(ctx, func() error {
		path := d.repoPath(rd.Name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, rd.Name)
		}
		return writeYAML(path, rd)
	})
}

// LoadRepo reads a single repo descriptor. Reads never take the lock:
// spec.md only requires mutations to be serialized, and a concurrent
// reader during an atomic rename-based write sees either the old or the
// new file, never a partial one.
func (d *Dir) LoadRepo(name string) (RepoDescriptor, error) {
	data, err := os.ReadFile(d.repoPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return RepoDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return RepoDescriptor{}, fmt.Errorf("fsconfig: read %s: %w", name, err)
	}

	var rd RepoDescriptor
	if err := yaml.Unmarshal(data, &rd); err != nil {
		return RepoDescriptor{}, fmt.Errorf("fsconfig: parse %s: %w", name, err)
	}
	return rd, nil
}

// ListRepos returns every repo descriptor, sorted by name.
func (d *Dir) ListRepos() ([]RepoDescriptor, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, reposSubdir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fsconfig: list %s: %w", d.root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)

	rds := make([]RepoDescriptor, 0, len(names))
	for _, name := range names {
		rd, err := d.LoadRepo(name)
		if err != nil {
			return nil, err
		}
		rds = append(rds, rd)
	}
	return rds, nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("fsconfig: marshal %s: %w", path, err)
	}
	return atomic.WriteFile(path, strings.NewReader(string(data)))
}
