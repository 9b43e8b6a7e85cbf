package arcyd

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcyd/arcyd/internal/config"
)

func newTestRoot(t *testing.T) Dependencies {
	t.Helper()
	dir := t.TempDir()
	return Dependencies{
		ConfigPaths:    []string{dir},
		ConfigFileName: "arcyd",
		EnvPrefix:      "ARCYD_TEST_CLI",
		Out:            &bytes.Buffer{},
		Err:            &bytes.Buffer{},
	}
}

func run(t *testing.T, deps Dependencies, args ...string) error {
	t.Helper()
	root := NewRootCommand(deps)
	root.SetArgs(args)
	return root.Execute()
}

func TestAddPhabricatorThenAddRepoHostPersistToConfigFile(t *testing.T) {
	deps := newTestRoot(t)

	require.NoError(t, run(t, deps, "add-phabricator", "acme", "--url", "https://review.acme.test", "--token-env", "ACME_TOKEN"))
	require.NoError(t, run(t, deps, "add-repohost", "acme", "--url", "https://github.acme.test", "--token-env", "ACME_TOKEN"))

	path := config.FilePath(deps.ConfigFileName, deps.ConfigPaths)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	require.Contains(t, cfg.ReviewHosts, "acme")
	assert.Equal(t, "github", cfg.ReviewHosts["acme"].Kind)
	assert.Equal(t, "https://review.acme.test", cfg.ReviewHosts["acme"].URL)

	require.Contains(t, cfg.RepoHosts, "acme")
	assert.Equal(t, "https://github.acme.test", cfg.RepoHosts["acme"].URL)
}

func TestAddRepoRejectsUnknownHostReference(t *testing.T) {
	deps := newTestRoot(t)

	err := run(t, deps, "add-repo", "widget", "--repo-host", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown repo host")
}

func TestAddRepoThenRmRepoRoundTrips(t *testing.T) {
	deps := newTestRoot(t)
	t.Setenv("ARCYD_TEST_CLI_ARCYD_DATAROOT", t.TempDir())

	require.NoError(t, run(t, deps, "add-repohost", "acme", "--url", "https://github.acme.test"))
	require.NoError(t, run(t, deps, "add-phabricator", "acme", "--url", "https://review.acme.test"))
	require.NoError(t, run(t, deps,
		"add-repo", "widget",
		"--repo-host", "acme",
		"--review-host", "acme",
		"--remote", "git@github.acme.test:acme/widget.git",
		"--working-copy", filepath.Join(t.TempDir(), "widget"),
	))

	require.NoError(t, run(t, deps, "rm-repo", "widget"))
	require.Error(t, run(t, deps, "rm-repo", "widget"))
}

func TestSplitOwnerRepoHandlesScpAndHTTPSRemotes(t *testing.T) {
	cases := []struct {
		remote      string
		owner, repo string
	}{
		{"git@github.com:acme/widget.git", "acme", "widget"},
		{"https://github.com/acme/widget.git", "acme", "widget"},
		{"https://github.com/acme/widget", "acme", "widget"},
	}
	for _, tc := range cases {
		owner, repo := splitOwnerRepo(tc.remote)
		assert.Equal(t, tc.owner, owner, tc.remote)
		assert.Equal(t, tc.repo, repo, tc.remote)
	}
}

func TestExitCodeMapsAlreadyRunningToTwo(t *testing.T) {
	err := exitCodeError{code: ExitAlreadyRunning, err: errors.New("already running")}
	assert.Equal(t, ExitAlreadyRunning, ExitCode(err))
}

func TestExitCodeDefaultsUnwrappedErrorsToOne(t *testing.T) {
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
}

func TestExitCodeIsZeroForNilError(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
}

func TestFsckSucceedsWithNoReposRegistered(t *testing.T) {
	deps := newTestRoot(t)
	t.Setenv("ARCYD_TEST_CLI_ARCYD_DATAROOT", t.TempDir())

	require.NoError(t, run(t, deps, "init"))
	require.NoError(t, run(t, deps, "fsck"))
}
