package reporter_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcyd/arcyd/internal/reporter"
	"github.com/arcyd/arcyd/internal/scheduler"
	"github.com/arcyd/arcyd/internal/store"
)

func newTestReporter(t *testing.T, cfg reporter.Config) *reporter.Reporter {
	t.Helper()
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	return reporter.New(cfg)
}

func TestSetStatusWritesAtomicSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	r := newTestReporter(t, reporter.Config{SnapshotPath: path})

	r.SetStatus(scheduler.StatusUpdating)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap reporter.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, scheduler.StatusUpdating, snap.Status)
	assert.Nil(t, snap.CurrentRepo)
	assert.NotNil(t, snap.Statistics.CurrentCycleTime)
	assert.Nil(t, snap.Statistics.LastCycleTime, "no prior cycle has completed yet")
}

func TestSetStatusUpdatingTwiceClosesOutLastCycleTime(t *testing.T) {
	r := newTestReporter(t, reporter.Config{})

	r.SetStatus(scheduler.StatusUpdating)
	time.Sleep(2 * time.Millisecond)
	r.SetStatus(scheduler.StatusUpdating)

	snap := r.Snapshot()
	require.NotNil(t, snap.Statistics.LastCycleTime)
	assert.Greater(t, *snap.Statistics.LastCycleTime, 0.0)
}

func TestSetStatusDescriptionAttachesDetail(t *testing.T) {
	r := newTestReporter(t, reporter.Config{})
	r.SetStatus(scheduler.StatusRetryException)
	r.SetStatusDescription("widget: network unreachable")

	snap := r.Snapshot()
	require.NotNil(t, snap.StatusDescription)
	assert.Equal(t, "widget: network unreachable", *snap.StatusDescription)
}

func TestSetCurrentRepoAppearsInSnapshot(t *testing.T) {
	r := newTestReporter(t, reporter.Config{})
	r.RegisterRepo("widget", "Widget Service")
	r.SetCurrentRepo("widget")

	snap := r.Snapshot()
	require.NotNil(t, snap.CurrentRepo)
	assert.Equal(t, "widget", snap.CurrentRepo.Name)
	assert.Equal(t, "Widget Service", snap.CurrentRepo.HumanName)
	assert.Equal(t, string(reporter.RepoUpdating), snap.CurrentRepo.RepoStatus)

	require.Len(t, snap.Repos, 1)
	assert.Equal(t, "widget", snap.Repos[0].Name)
}

func TestSetRepoOutcomeMarksFailedAndOK(t *testing.T) {
	r := newTestReporter(t, reporter.Config{})
	r.RegisterRepo("widget", "Widget")
	r.RegisterRepo("gadget", "Gadget")

	r.SetRepoOutcome("widget", nil)
	r.SetRepoOutcome("gadget", assertErr{"network unreachable"})

	snap := r.Snapshot()
	byName := map[string]reporter.RepoSnapshot{}
	for _, rs := range snap.Repos {
		byName[rs.Name] = rs
	}
	assert.Equal(t, string(reporter.RepoOK), byName["widget"].RepoStatus)
	assert.Equal(t, string(reporter.RepoFailed), byName["gadget"].RepoStatus)
}

func TestRepoNamesIsSortedRegardlessOfTouchOrder(t *testing.T) {
	r := newTestReporter(t, reporter.Config{})
	r.SetCurrentRepo("zebra")
	r.SetCurrentRepo("apple")

	assert.Equal(t, []string{"apple", "zebra"}, r.RepoNames())
}

func TestRecordPhaseAccumulatesAcrossRepos(t *testing.T) {
	r := newTestReporter(t, reporter.Config{})
	r.RecordPhase("widget", "fetch", 100*time.Millisecond)
	r.RecordPhase("gadget", "fetch", 50*time.Millisecond)

	snap := r.Snapshot()
	assert.InDelta(t, 0.15, snap.Statistics.TagTimes["fetch"], 0.01)
}

type fakeHistory struct {
	recorded []store.CycleRecord
}

func (f *fakeHistory) RecordCycle(ctx context.Context, c store.CycleRecord) error {
	f.recorded = append(f.recorded, c)
	return nil
}
func (f *fakeHistory) ListCycles(ctx context.Context, limit int) ([]store.CycleRecord, error) {
	return f.recorded, nil
}
func (f *fakeHistory) ListCyclesForRepo(ctx context.Context, repo string, limit int) ([]store.CycleRecord, error) {
	return nil, nil
}
func (f *fakeHistory) Close() error { return nil }

func TestObserveCycleConvertsOutcomesAndAppendsHistory(t *testing.T) {
	hist := &fakeHistory{}
	r := newTestReporter(t, reporter.Config{History: hist})
	r.SetStatus(scheduler.StatusUpdating)

	report := scheduler.CycleReport{
		Repos: []scheduler.RepoOutcome{
			{Name: "widget", Err: nil},
			{Name: "gadget", Err: assertErr{"boom"}},
		},
	}
	r.ObserveCycle(context.Background(), report)

	snap := r.Snapshot()
	byName := map[string]reporter.RepoSnapshot{}
	for _, rs := range snap.Repos {
		byName[rs.Name] = rs
	}
	assert.Equal(t, string(reporter.RepoOK), byName["widget"].RepoStatus)
	assert.Equal(t, string(reporter.RepoFailed), byName["gadget"].RepoStatus)

	require.Len(t, hist.recorded, 1)
	require.Len(t, hist.recorded[0].RepoStatuses, 2)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
