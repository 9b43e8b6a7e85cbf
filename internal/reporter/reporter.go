// Package reporter implements the Reporter (spec.md §4.10, C10): the
// single place that holds the daemon's current status tag and per-repo
// status, times any operation tagged against it, and writes a
// self-consistent JSON snapshot after every status transition.
package reporter

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/arcyd/arcyd/internal/scheduler"
	"github.com/arcyd/arcyd/internal/store"
)

// RepoStatus is the repo-status enum (spec.md §6).
type RepoStatus string

const (
	RepoUpdating RepoStatus = "updating"
	RepoFailed   RepoStatus = "failed"
	RepoOK       RepoStatus = "ok"
)

// Snapshot is the exact JSON shape written to the configured snapshot
// path (spec.md §6); field names are the bit-exact wire names, not Go
// convention.
type Snapshot struct {
	Status            string         `json:"status"`
	StatusDescription *string        `json:"status-description"`
	CurrentRepo       *RepoSnapshot  `json:"current-repo"`
	Repos             []RepoSnapshot `json:"repos"`
	Statistics        Statistics     `json:"statistics"`
}

// RepoSnapshot is one repo's entry in the snapshot, used both for
// "current-repo" and for each element of "repos".
type RepoSnapshot struct {
	Name       string `json:"name"`
	HumanName  string `json:"human-name"`
	RepoStatus string `json:"repo-status"`
}

// Statistics is the snapshot's "statistics" object.
type Statistics struct {
	CurrentCycleTime *float64           `json:"current-cycle-time"`
	LastCycleTime    *float64           `json:"last-cycle-time"`
	TagTimes         map[string]float64 `json:"tag-times"`
}

type repoEntry struct {
	name      string
	humanName string
	status    RepoStatus
	lastErr   string
}

// Config holds a Reporter's dependencies. Logger, Registerer and History
// may be left zero-valued; reasonable defaults are substituted.
type Config struct {
	// SnapshotPath is where the JSON snapshot is written atomically after
	// every status transition. Empty disables snapshot writing (useful in
	// tests).
	SnapshotPath string
	Logger       *zap.Logger
	Registerer   prometheus.Registerer
	// History, if set, receives one CycleRecord per completed cycle
	// (see ObserveCycle).
	History store.Store
}

// Reporter implements scheduler.StatusReporter and repoprocessor.PhaseRecorder.
type Reporter struct {
	mu sync.Mutex

	snapshotPath string
	logger       *zap.Logger
	history      store.Store

	status            string
	statusDescription *string
	currentRepo       string

	repoOrder []string
	repos     map[string]*repoEntry

	cycleStart   time.Time
	cycleActive  bool
	lastCycleSec *float64
	tagTimes     map[string]time.Duration

	statusGauge     *prometheus.GaugeVec
	repoStatusGauge *prometheus.GaugeVec
	phaseSeconds    *prometheus.CounterVec
	cycleSeconds    prometheus.Histogram
}

// New builds a Reporter. cfg.Registerer defaults to
// prometheus.DefaultRegisterer; cfg.Logger defaults to a no-op logger.
func New(cfg Config) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Reporter{
		snapshotPath: cfg.SnapshotPath,
		logger:       logger,
		history:      cfg.History,
		status:       scheduler.StatusStarting,
		repos:        make(map[string]*repoEntry),
		tagTimes:     make(map[string]time.Duration),
		statusGauge: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcyd_status",
			Help: "1 for the currently held status tag, 0 for all others.",
		}, []string{"status"}),
		repoStatusGauge: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "arcyd_repo_status",
			Help: "1 for a repo's currently held repo-status tag, 0 for all others.",
		}, []string{"repo", "status"}),
		phaseSeconds: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "arcyd_phase_seconds_total",
			Help: "Cumulative seconds spent in each tagged operation.",
		}, []string{"phase"}),
		cycleSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "arcyd_cycle_seconds",
			Help:    "Duration of each completed scheduler cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	return r
}

// RegisterRepo declares a configured repo's human-readable name before
// the first cycle runs, seeding its status as "updating". Repos not
// registered before a cycle touches them are added lazily with their
// machine name as the human name.
func (r *Reporter) RegisterRepo(name, humanName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name).humanName = humanName
}

// entry returns (creating if necessary) the bookkeeping entry for name.
// Must be called with r.mu held.
func (r *Reporter) entry(name string) *repoEntry {
	e, ok := r.repos[name]
	if !ok {
		e = &repoEntry{name: name, humanName: name, status: RepoUpdating}
		r.repos[name] = e
		r.repoOrder = append(r.repoOrder, name)
	}
	return e
}

// SetStatus implements scheduler.StatusReporter. Entering "updating"
// begins timing a new cycle, closing out the previous one (if any) into
// last-cycle-time.
func (r *Reporter) SetStatus(status string) {
	r.mu.Lock()
	now := time.Now()
	if status == scheduler.StatusUpdating {
		if r.cycleActive {
			elapsed := now.Sub(r.cycleStart).Seconds()
			r.lastCycleSec = &elapsed
			r.cycleSeconds.Observe(elapsed)
		}
		r.cycleStart = now
		r.cycleActive = true
		r.tagTimes = make(map[string]time.Duration)
		for _, e := range r.repos {
			e.status = RepoUpdating
			e.lastErr = ""
		}
	}
	if status == scheduler.StatusStopped || status == scheduler.StatusRetryException {
		r.cycleActive = false
	}
	r.status = status
	r.statusDescription = nil
	r.statusGauge.Reset()
	r.statusGauge.WithLabelValues(status).Set(1)
	r.mu.Unlock()

	r.logger.Info("status transition", zap.String("status", status))
	r.writeSnapshot()
}

// SetStatusDescription attaches free-form detail to the current status
// (e.g. the error a tryloop-exception exited on).
func (r *Reporter) SetStatusDescription(description string) {
	r.mu.Lock()
	r.statusDescription = &description
	r.mu.Unlock()
	r.writeSnapshot()
}

// SetCurrentRepo implements scheduler.StatusReporter.
func (r *Reporter) SetCurrentRepo(name string) {
	r.mu.Lock()
	r.currentRepo = name
	r.entry(name)
	r.mu.Unlock()
	r.writeSnapshot()
}

// RecordPhase implements repoprocessor.PhaseRecorder: accumulates
// cumulative duration under a tag name, regardless of which repo it came
// from, as "tag-times" in the snapshot (spec.md §4.10's "callable-scope
// timer so that the engine can tag any operation").
func (r *Reporter) RecordPhase(repo, phase string, d time.Duration) {
	r.mu.Lock()
	r.tagTimes[phase] += d
	r.mu.Unlock()
	r.phaseSeconds.WithLabelValues(phase).Add(d.Seconds())
}

// SetRepoOutcome converts a repo's final error (or lack of one) for this
// cycle into the repo-status tag (spec.md §7: "the per-repo wrapper
// converts a final failure into a failed repo-status tag, non-fatal for
// the process").
func (r *Reporter) SetRepoOutcome(name string, err error) {
	r.mu.Lock()
	e := r.entry(name)
	if err != nil {
		e.status = RepoFailed
		e.lastErr = err.Error()
	} else {
		e.status = RepoOK
		e.lastErr = ""
	}
	r.mu.Unlock()

	r.repoStatusGauge.Reset()
	r.mu.Lock()
	for _, re := range r.repos {
		r.repoStatusGauge.WithLabelValues(re.name, string(re.status)).Set(1)
	}
	r.mu.Unlock()

	r.writeSnapshot()
}

// ObserveCycle records a completed cycle's per-repo outcomes and appends
// a durable history record, when a history store is configured. Intended
// to be called once per scheduler.CycleReport, after RunCycle returns.
func (r *Reporter) ObserveCycle(ctx context.Context, report scheduler.CycleReport) {
	for _, outcome := range report.Repos {
		r.SetRepoOutcome(outcome.Name, outcome.Err)
	}

	if r.history == nil {
		return
	}

	r.mu.Lock()
	cycleSeconds := 0.0
	if r.lastCycleSec != nil {
		cycleSeconds = *r.lastCycleSec
	}
	record := store.CycleRecord{
		Timestamp:    time.Now(),
		Status:       r.status,
		CycleSeconds: cycleSeconds,
	}
	for _, name := range r.repoOrder {
		e := r.repos[name]
		record.RepoStatuses = append(record.RepoStatuses, store.RepoStatusRecord{
			Name:       e.name,
			RepoStatus: string(e.status),
			Err:        e.lastErr,
		})
	}
	r.mu.Unlock()

	if err := r.history.RecordCycle(ctx, record); err != nil {
		r.logger.Warn("failed to record cycle history", zap.Error(err))
	}
}

// Snapshot returns the current snapshot value.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reporter) snapshotLocked() Snapshot {
	repos := make([]RepoSnapshot, 0, len(r.repoOrder))
	for _, name := range r.repoOrder {
		e := r.repos[name]
		repos = append(repos, RepoSnapshot{Name: e.name, HumanName: e.humanName, RepoStatus: string(e.status)})
	}

	var current *RepoSnapshot
	if e, ok := r.repos[r.currentRepo]; ok {
		current = &RepoSnapshot{Name: e.name, HumanName: e.humanName, RepoStatus: string(e.status)}
	}

	var currentCycleTime *float64
	if r.cycleActive {
		elapsed := time.Since(r.cycleStart).Seconds()
		currentCycleTime = &elapsed
	}

	tagTimes := make(map[string]float64, len(r.tagTimes))
	for k, v := range r.tagTimes {
		tagTimes[k] = v.Seconds()
	}

	return Snapshot{
		Status:            r.status,
		StatusDescription: r.statusDescription,
		CurrentRepo:       current,
		Repos:             repos,
		Statistics: Statistics{
			CurrentCycleTime: currentCycleTime,
			LastCycleTime:    r.lastCycleSec,
			TagTimes:         tagTimes,
		},
	}
}

// writeSnapshot atomically writes the current snapshot to snapshotPath,
// if configured. Write failures are logged, not returned: a stuck
// snapshot write must never abort the cycle it's reporting on.
func (r *Reporter) writeSnapshot() {
	if r.snapshotPath == "" {
		return
	}

	snap := r.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		r.logger.Error("failed to marshal snapshot", zap.Error(err))
		return
	}

	if err := atomic.WriteFile(r.snapshotPath, strings.NewReader(string(data))); err != nil {
		r.logger.Error("failed to write snapshot", zap.String("path", r.snapshotPath), zap.Error(err))
	}
}

// RepoNames returns a deterministic, sorted listing of every repo the
// Reporter has observed (registered or touched by a cycle).
func (r *Reporter) RepoNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := append([]string(nil), r.repoOrder...)
	sort.Strings(names)
	return names
}
