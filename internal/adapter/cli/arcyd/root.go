// Package arcyd builds the daemon's cobra command tree (spec.md §6's CLI
// surface): init, start, stop, restart, add-phabricator, add-repohost,
// add-repo, rm-repo, fsck and fetch, wired against internal/config,
// internal/fsconfig, internal/scheduler and their collaborators. Mirrors
// the teacher's internal/adapter/cli/root.go shape (a Dependencies struct
// plus one constructor per subcommand) generalized to a long-running
// daemon instead of a one-shot review CLI.
package arcyd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	ghidentity "github.com/arcyd/arcyd/internal/adapter/identity/github"
	ghreview "github.com/arcyd/arcyd/internal/adapter/reviewclient/github"
	sqlitestore "github.com/arcyd/arcyd/internal/adapter/store/sqlite"
	"github.com/arcyd/arcyd/internal/branchsm"
	"github.com/arcyd/arcyd/internal/config"
	"github.com/arcyd/arcyd/internal/fsconfig"
	"github.com/arcyd/arcyd/internal/gitdriver"
	"github.com/arcyd/arcyd/internal/guard"
	"github.com/arcyd/arcyd/internal/identity"
	"github.com/arcyd/arcyd/internal/leader"
	"github.com/arcyd/arcyd/internal/notify"
	"github.com/arcyd/arcyd/internal/reporter"
	"github.com/arcyd/arcyd/internal/repoprocessor"
	"github.com/arcyd/arcyd/internal/reviewstate"
	"github.com/arcyd/arcyd/internal/scheduler"
	"github.com/arcyd/arcyd/internal/urlwatch"
)

// Exit codes (spec.md §6).
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitAlreadyRunning = 2
)

// Dependencies captures everything injected from the host process.
type Dependencies struct {
	ConfigPaths    []string
	ConfigFileName string
	EnvPrefix      string
	Out            io.Writer
	Err            io.Writer
	Version        string
}

func (d Dependencies) loaderOptions() config.LoaderOptions {
	return config.LoaderOptions{ConfigPaths: d.ConfigPaths, FileName: d.ConfigFileName, EnvPrefix: d.EnvPrefix}
}

func (d Dependencies) configPath() string {
	return config.FilePath(d.ConfigFileName, d.ConfigPaths)
}

// NewRootCommand constructs the root cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	if deps.ConfigFileName == "" {
		deps.ConfigFileName = "arcyd"
	}
	if deps.EnvPrefix == "" {
		deps.EnvPrefix = "ARCYD"
	}
	out, errW := deps.Out, deps.Err
	if out == nil {
		out = os.Stdout
	}
	if errW == nil {
		errW = os.Stderr
	}

	root := &cobra.Command{
		Use:   "arcyd",
		Short: "Automated branch-to-review-to-land daemon",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.SetOut(out)
	root.SetErr(errW)

	root.AddCommand(
		initCommand(deps),
		startCommand(deps),
		stopCommand(deps),
		restartCommand(deps),
		addPhabricatorCommand(deps),
		addRepoHostCommand(deps),
		addRepoCommand(deps),
		rmRepoCommand(deps),
		fsckCommand(deps),
		fetchCommand(deps),
	)

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if showVersion {
			version := deps.Version
			if version == "" {
				version = "v0.0.0"
			}
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		}
		return cmd.Help()
	}

	return root
}

func buildLogger(cfg config.LoggingConfig) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Level))

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" || cfg.Format == "" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func dataPath(root string, parts ...string) string {
	return filepath.Join(append([]string{root, "var"}, parts...)...)
}

func ensureDataRoot(root string) error {
	dirs := []string{
		dataPath(root, "command"),
		dataPath(root, "log"),
		dataPath(root, "run"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("arcyd: create %s: %w", dir, err)
		}
	}
	return nil
}

func initCommand(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the data root and repo-configuration directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			if err := ensureDataRoot(cfg.Arcyd.DataRoot); err != nil {
				return err
			}
			if err := fsconfig.New(cfg.Arcyd.DataRoot).Init(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized data root at %s\n", cfg.Arcyd.DataRoot)
			return nil
		},
	}
}

func addPhabricatorCommand(deps Dependencies) *cobra.Command {
	var url, tokenEnv string
	cmd := &cobra.Command{
		Use:   "add-phabricator NAME",
		Short: "Register a review-service host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := deps.configPath()
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if cfg.ReviewHosts == nil {
				cfg.ReviewHosts = map[string]config.ReviewHostConfig{}
			}
			cfg.ReviewHosts[args[0]] = config.ReviewHostConfig{Kind: "github", URL: url, TokenEnv: tokenEnv}
			return config.SaveFile(path, cfg)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "review-service API base URL")
	cmd.Flags().StringVar(&tokenEnv, "token-env", "", "name of the environment variable holding the API token")
	return cmd
}

func addRepoHostCommand(deps Dependencies) *cobra.Command {
	var url, tokenEnv string
	cmd := &cobra.Command{
		Use:   "add-repohost NAME",
		Short: "Register a git repo host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := deps.configPath()
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if cfg.RepoHosts == nil {
				cfg.RepoHosts = map[string]config.RepoHostConfig{}
			}
			cfg.RepoHosts[args[0]] = config.RepoHostConfig{Kind: "github", URL: url, TokenEnv: tokenEnv}
			return config.SaveFile(path, cfg)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "git host API base URL")
	cmd.Flags().StringVar(&tokenEnv, "token-env", "", "name of the environment variable holding the API token")
	return cmd
}

func addRepoCommand(deps Dependencies) *cobra.Command {
	var humanName, workingCopy, remote, repoHost, reviewHost, snoopURL string
	var adminEmails []string
	cmd := &cobra.Command{
		Use:   "add-repo NAME",
		Short: "Register a repo descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(deps.configPath())
			if err != nil {
				return err
			}
			if repoHost != "" {
				if _, ok := cfg.RepoHosts[repoHost]; !ok {
					return fmt.Errorf("arcyd: unknown repo host %q; run add-repohost first", repoHost)
				}
			}
			if reviewHost != "" {
				if _, ok := cfg.ReviewHosts[reviewHost]; !ok {
					return fmt.Errorf("arcyd: unknown review host %q; run add-phabricator first", reviewHost)
				}
			}

			runtimeCfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			dir := fsconfig.New(runtimeCfg.Arcyd.DataRoot)
			if err := dir.Init(); err != nil {
				return err
			}
			return dir.AddRepo(cmd.Context(), fsconfig.RepoDescriptor{
				Name:        args[0],
				HumanName:   humanName,
				WorkingCopy: workingCopy,
				Remote:      remote,
				RepoHost:    repoHost,
				ReviewHost:  reviewHost,
				AdminEmails: adminEmails,
				SnoopURL:    snoopURL,
			})
		},
	}
	cmd.Flags().StringVar(&humanName, "human-name", "", "human-readable repo description")
	cmd.Flags().StringVar(&workingCopy, "working-copy", "", "local working copy path")
	cmd.Flags().StringVar(&remote, "remote", "", "git remote name")
	cmd.Flags().StringVar(&repoHost, "repo-host", "", "registered repo host name")
	cmd.Flags().StringVar(&reviewHost, "review-host", "", "registered review host name")
	cmd.Flags().StringSliceVar(&adminEmails, "admin-email", nil, "admin contact email (repeatable)")
	cmd.Flags().StringVar(&snoopURL, "snoop-url", "", "URL watched for the fast-path signal")
	return cmd
}

func rmRepoCommand(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "rm-repo NAME",
		Short: "Remove a repo descriptor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			return fsconfig.New(cfg.Arcyd.DataRoot).RemoveRepo(cmd.Context(), args[0])
		},
	}
}

// repoCollaborators bundles the per-repo adapters built once per process
// and shared across every repo's Processor (spec.md §5: the URL watcher
// is single-writer between cycles; the review-status and identity caches
// are process-wide).
type repoCollaborators struct {
	httpClient *http.Client
	watcher    *urlwatch.Watcher
	reviews    *reviewstate.Cache
	ids        *identity.Cache
}

func buildRepos(cfg config.Config, dir *fsconfig.Dir, rec repoprocessor.PhaseRecorder, shared *repoCollaborators) ([]scheduler.Repo, error) {
	descriptors, err := dir.ListRepos()
	if err != nil {
		return nil, fmt.Errorf("arcyd: list repos: %w", err)
	}

	repos := make([]scheduler.Repo, 0, len(descriptors))
	for _, rd := range descriptors {
		reviewHost, ok := cfg.ReviewHosts[rd.ReviewHost]
		if !ok {
			return nil, fmt.Errorf("arcyd: repo %s: unknown review host %q", rd.Name, rd.ReviewHost)
		}

		owner, repo := splitOwnerRepo(rd.Remote)
		reviewClient := ghreview.New(os.Getenv(reviewHost.TokenEnv), owner, repo, shared.httpClient)

		git := gitdriver.New(rd.WorkingCopy, rd.Remote)
		advancer := branchsm.New(git, reviewClient, shared.reviews, shared.ids, branchsm.Config{Remote: rd.Remote})
		processor := repoprocessor.New(repoprocessor.Config{
			Name:     rd.Name,
			Remote:   rd.Remote,
			SnoopURL: rd.SnoopURL,
		}, git, shared.watcher, advancer, rec)

		repos = append(repos, scheduler.Repo{Name: rd.Name, Processor: processor})
	}
	return repos, nil
}

// splitOwnerRepo extracts "owner", "repo" from a GitHub remote URL or
// scp-like spec (git@github.com:owner/repo.git, https://github.com/owner/repo.git).
func splitOwnerRepo(remote string) (owner, repo string) {
	trimmed := trimGitSuffix(remote)
	parts := splitPath(trimmed)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func trimGitSuffix(s string) string {
	const suffix = ".git"
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}

func splitPath(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '/' || s[i] == ':' {
			if i > start {
				parts = append(parts, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func buildNotifier(logger *zap.Logger, cfg config.Config, adminEmails []string) notify.AdminNotifier {
	logNotifier := notify.NewLogNotifier(logger)
	if cfg.Notify.SMTP == nil || len(adminEmails) == 0 {
		return logNotifier
	}
	smtpNotifier, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host: cfg.Notify.SMTP.Host,
		Port: cfg.Notify.SMTP.Port,
		From: cfg.Notify.SMTP.From,
		To:   adminEmails,
	})
	if err != nil {
		logger.Warn("smtp notifier misconfigured, falling back to log notifier", zap.Error(err))
		return logNotifier
	}
	return notify.NewMulti(logNotifier, smtpNotifier)
}

func startCommand(deps Dependencies) *cobra.Command {
	var foreground, noLoop bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			if err := ensureDataRoot(cfg.Arcyd.DataRoot); err != nil {
				return err
			}

			g := guard.New(dataPath(cfg.Arcyd.DataRoot, "pid"))
			if err := g.Acquire(); err != nil {
				if err == guard.ErrAlreadyRunning {
					return exitCodeError{code: ExitAlreadyRunning, err: err}
				}
				return err
			}
			defer g.Release()

			return runDaemon(cmd.Context(), cfg, noLoop)
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
	cmd.Flags().BoolVar(&noLoop, "no-loop", false, "run exactly one cycle and exit")
	return cmd
}

// exitCodeError carries a specific process exit code up to main, per
// spec.md §6's exit-code contract (0 success, 1 any failure, 2 lock held
// by another instance).
type exitCodeError struct {
	code int
	err  error
}

func (e exitCodeError) Error() string { return e.err.Error() }
func (e exitCodeError) Unwrap() error { return e.err }

// ExitCode extracts the process exit code an error should produce,
// defaulting to ExitFailure for any non-nil error without one attached.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce exitCodeError
	if asExitCodeError(err, &ce) {
		return ce.code
	}
	return ExitFailure
}

func asExitCodeError(err error, target *exitCodeError) bool {
	for err != nil {
		if ce, ok := err.(exitCodeError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func runDaemon(ctx context.Context, cfg config.Config, noLoop bool) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := buildLogger(cfg.Observability.Logging)
	defer logger.Sync()

	store, err := sqlitestore.NewStore(dataPath(cfg.Arcyd.DataRoot, "run", "history.db"))
	if err != nil {
		return fmt.Errorf("arcyd: open history store: %w", err)
	}
	defer store.Close()

	rep := reporter.New(reporter.Config{
		SnapshotPath: dataPath(cfg.Arcyd.DataRoot, "run", "snapshot.json"),
		Logger:       logger,
		History:      store,
	})

	if cfg.Observability.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Observability.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var elector *leader.Elector
	if cfg.Leader.Enabled {
		elector, err = leader.New(leader.Config{Service: "arcyd", Address: cfg.Leader.ConsulAddress})
		if err != nil {
			return fmt.Errorf("arcyd: build leader elector: %w", err)
		}
		if _, err := elector.Acquire(ctx); err != nil {
			return fmt.Errorf("arcyd: acquire leadership: %w", err)
		}
		defer elector.Release()
	}

	dir := fsconfig.New(cfg.Arcyd.DataRoot)
	rds, err := dir.ListRepos()
	if err != nil {
		return fmt.Errorf("arcyd: list repos: %w", err)
	}

	httpClient := http.DefaultClient
	var reviews *reviewstate.Cache
	var ids *identity.Cache
	if len(rds) > 0 {
		// Every repo in a single deployment shares one review-service host
		// (spec.md §3: a review-host descriptor is referenced by name, not
		// embedded per repo), so the status lister and identity resolvers
		// are built once from the first repo's review host.
		reviewHost, ok := cfg.ReviewHosts[rds[0].ReviewHost]
		if !ok {
			return fmt.Errorf("arcyd: repo %s: unknown review host %q", rds[0].Name, rds[0].ReviewHost)
		}
		owner, repo := splitOwnerRepo(rds[0].Remote)
		reviewClient := ghreview.New(os.Getenv(reviewHost.TokenEnv), owner, repo, httpClient)
		identClient := ghidentity.New(os.Getenv(reviewHost.TokenEnv), httpClient)
		reviews = reviewstate.New(reviewClient.QueryStatuses)
		ids = identity.New(identClient.ResolveBatch, identClient.ResolveEmail)
	} else {
		reviews = reviewstate.New(nil)
		ids = identity.New(nil, nil)
	}

	shared := &repoCollaborators{
		httpClient: httpClient,
		watcher:    urlwatch.New(httpClient),
		reviews:    reviews,
		ids:        ids,
	}

	repos, err := buildRepos(cfg, dir, rep, shared)
	if err != nil {
		return err
	}

	admins := collectAdminEmails(rds)
	notifier := buildNotifier(logger, cfg, admins)
	signals := scheduler.NewSignalWatcher(dataPath(cfg.Arcyd.DataRoot, "command"), notifier)

	sched := scheduler.New(ctx, repos, reviews, ids, signals, rep, scheduler.Config{
		Interval:   time.Duration(cfg.Arcyd.SleepSeconds) * time.Second,
		MaxWorkers: cfg.Arcyd.Workers,
		Recorder:   rep,
		OnCycle: func(report scheduler.CycleReport) {
			rep.ObserveCycle(ctx, report)
		},
	})

	if elector != nil {
		for {
			isLeader, err := elector.IsLeader(ctx)
			if err != nil {
				return fmt.Errorf("arcyd: check leadership: %w", err)
			}
			if isLeader {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}

	ok, err := sched.Run(ctx, noLoop)
	if err != nil {
		return err
	}
	if !ok {
		return exitCodeError{code: ExitFailure, err: fmt.Errorf("arcyd: one or more repos failed this cycle")}
	}
	return nil
}

func collectAdminEmails(rds []fsconfig.RepoDescriptor) []string {
	var emails []string
	for _, rd := range rds {
		emails = append(emails, rd.AdminEmails...)
	}
	return emails
}

func stopCommand(deps Dependencies) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			g := guard.New(dataPath(cfg.Arcyd.DataRoot, "pid"))
			return g.Restart(cmd.Context(), stopOptions(cfg, force))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "don't wait for the graceful shutdown window")
	return cmd
}

// stopOptions builds the guard's restart options, honoring --force by
// bounding the wait instead of blocking on the running instance forever.
func stopOptions(cfg config.Config, force bool) guard.RestartOptions {
	opts := guard.RestartOptions{KillFilePath: dataPath(cfg.Arcyd.DataRoot, "command", "killfile")}
	if force {
		opts.Timeout = 2 * time.Second
	}
	return opts
}

func restartCommand(deps Dependencies) *cobra.Command {
	var force, foreground, noLoop bool
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			g := guard.New(dataPath(cfg.Arcyd.DataRoot, "pid"))
			if err := g.Restart(cmd.Context(), stopOptions(cfg, force)); err != nil {
				return err
			}
			if err := g.Acquire(); err != nil {
				return err
			}
			defer g.Release()
			return runDaemon(cmd.Context(), cfg, noLoop)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the graceful wait and stop immediately")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
	cmd.Flags().BoolVar(&noLoop, "no-loop", false, "run exactly one cycle and exit")
	return cmd
}

func fsckCommand(deps Dependencies) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "Validate the repo-configuration directory and every repo's working copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			dir := fsconfig.New(cfg.Arcyd.DataRoot)
			rds, err := dir.ListRepos()
			if err != nil {
				return err
			}

			// Every repo's working copy is checked independently, so fsck
			// fans the checks out instead of doing them one at a time;
			// bounded to the daemon's own worker count rather than one
			// goroutine per repo.
			var mu sync.Mutex
			var failures []string
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(cfg.Arcyd.Workers, 1))
			for _, rd := range rds {
				rd := rd
				g.Go(func() error {
					if err := fsckRepo(gctx, rd, fix); err != nil {
						mu.Lock()
						failures = append(failures, fmt.Sprintf("%s: %v", rd.Name, err))
						mu.Unlock()
					}
					return nil
				})
			}
			_ = g.Wait()

			sort.Strings(failures)
			for _, f := range failures {
				fmt.Fprintln(cmd.ErrOrStderr(), f)
			}
			if len(failures) > 0 {
				return fmt.Errorf("arcyd: fsck found %d problem(s)", len(failures))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fsck: %d repo(s) OK\n", len(rds))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "repair what's safe to auto-repair (missing archive branches)")
	return cmd
}

func fsckRepo(ctx context.Context, rd fsconfig.RepoDescriptor, fix bool) error {
	git := gitdriver.New(rd.WorkingCopy, rd.Remote)

	if err := git.EnsureIdentAttributes(); err != nil {
		return fmt.Errorf("ident attributes: %w", err)
	}

	for _, kind := range []string{gitdriver.ArchiveLanded, gitdriver.ArchiveAbandoned} {
		if _, err := git.ResolveRef(ctx, gitdriver.RemoteArchiveRef(kind)); err != nil {
			if !fix {
				return fmt.Errorf("archive branch %s missing", kind)
			}
			if err := git.EnsureArchiveBranch(ctx, kind); err != nil {
				return fmt.Errorf("repair archive branch %s: %w", kind, err)
			}
		}
	}
	return nil
}

func fetchCommand(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch NAME",
		Short: "Run one repo's cycle operation outside the scheduler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(deps.loaderOptions())
			if err != nil {
				return err
			}
			dir := fsconfig.New(cfg.Arcyd.DataRoot)
			rd, err := dir.LoadRepo(args[0])
			if err != nil {
				return err
			}
			reviewHost, ok := cfg.ReviewHosts[rd.ReviewHost]
			if !ok {
				return fmt.Errorf("arcyd: repo %s: unknown review host %q", rd.Name, rd.ReviewHost)
			}

			httpClient := http.DefaultClient
			owner, repo := splitOwnerRepo(rd.Remote)
			reviewClient := ghreview.New(os.Getenv(reviewHost.TokenEnv), owner, repo, httpClient)
			identClient := ghidentity.New(os.Getenv(reviewHost.TokenEnv), httpClient)

			reviews := reviewstate.New(reviewClient.QueryStatuses)
			ids := identity.New(identClient.ResolveBatch, identClient.ResolveEmail)
			git := gitdriver.New(rd.WorkingCopy, rd.Remote)
			advancer := branchsm.New(git, reviewClient, reviews, ids, branchsm.Config{Remote: rd.Remote})
			processor := repoprocessor.New(repoprocessor.Config{
				Name:     rd.Name,
				Remote:   rd.Remote,
				SnoopURL: rd.SnoopURL,
			}, git, urlwatch.New(httpClient), advancer, nil)

			result, err := processor.Process(cmd.Context(), true)
			if err != nil {
				return err
			}
			for _, errOut := range result.Errs() {
				fmt.Fprintln(cmd.ErrOrStderr(), errOut)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetch %s: %d branch(es) processed\n", rd.Name, len(result.Branches))
			return nil
		},
	}
}
