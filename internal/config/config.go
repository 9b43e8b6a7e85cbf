package config

// Config is the top-level daemon configuration: arcyd's own tunables,
// the review-service and git hosts it talks to, and the repo
// descriptors it manages (spec.md §3's RD, plus the identity/name/host
// references SPEC_FULL.md's expanded schema adds).
type Config struct {
	Arcyd         ArcydConfig                 `yaml:"arcyd"`
	ReviewHosts   map[string]ReviewHostConfig `yaml:"reviewHosts"`
	RepoHosts     map[string]RepoHostConfig   `yaml:"repoHosts"`
	Repos         map[string]RepoConfig       `yaml:"repos"`
	Observability ObservabilityConfig         `yaml:"observability"`
	Leader        LeaderConfig                `yaml:"leader"`
	Notify        NotifyConfig                `yaml:"notify"`
}

// ArcydConfig holds the daemon's own process-level tunables.
type ArcydConfig struct {
	DataRoot     string `yaml:"dataRoot"`
	SleepSeconds int    `yaml:"sleepSeconds"`
	Workers      int    `yaml:"workers"`
}

// ReviewHostConfig describes a Phabricator-like review-service host
// (`add-phabricator`).
type ReviewHostConfig struct {
	// Kind selects the adapter: "github" is the only one this
	// repository ships (internal/adapter/reviewclient/github).
	Kind     string `yaml:"kind"`
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"tokenEnv"`
}

// RepoHostConfig describes a git repo host (`add-repohost`) — where a
// repo's remote lives, as distinct from where its reviews are filed.
type RepoHostConfig struct {
	Kind     string `yaml:"kind"`
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"tokenEnv"`
}

// RepoConfig is the on-disk config-file counterpart of spec.md §3's RD
// (fsconfig.RepoDescriptor is its fsconfig-directory counterpart; the
// two are kept structurally identical so a repo descriptor round-trips
// between add-repo's config-file form and the lockfile-guarded
// directory's form without translation).
type RepoConfig struct {
	HumanName   string   `yaml:"humanName"`
	WorkingCopy string   `yaml:"workingCopy"`
	Remote      string   `yaml:"remote"`
	RepoHost    string   `yaml:"repoHost"`
	ReviewHost  string   `yaml:"reviewHost"`
	AdminEmails []string `yaml:"adminEmails"`
	SnoopURL    string   `yaml:"snoopURL,omitempty"`
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures zap's output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LeaderConfig configures optional Consul-backed leader election
// (spec.md §4.12, C12). Unset (Enabled: false) runs the daemon as a
// single always-leader instance, which is the common case.
type LeaderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ConsulAddress string `yaml:"consulAddress"`
}

// NotifyConfig configures the admin-email emitter (spec.md §7).
type NotifyConfig struct {
	SMTP *SMTPNotifyConfig `yaml:"smtp,omitempty"`
}

// SMTPNotifyConfig configures internal/notify.SMTPNotifier.
type SMTPNotifyConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	From string `yaml:"from"`
}

// Merge combines multiple configuration instances, prioritising the
// latter ones — same precedence rule the loader applies across
// (defaults, file, env).
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base

	result.Arcyd = chooseArcyd(base.Arcyd, overlay.Arcyd)
	result.Observability = chooseObservability(base.Observability, overlay.Observability)
	result.Leader = chooseLeader(base.Leader, overlay.Leader)
	result.Notify = chooseNotify(base.Notify, overlay.Notify)
	result.ReviewHosts = mergeMaps(base.ReviewHosts, overlay.ReviewHosts)
	result.RepoHosts = mergeMaps(base.RepoHosts, overlay.RepoHosts)
	result.Repos = mergeMaps(base.Repos, overlay.Repos)

	return result
}

func mergeMaps[V any](base, overlay map[string]V) map[string]V {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]V, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[k] = v
	}
	return result
}

func chooseArcyd(base, overlay ArcydConfig) ArcydConfig {
	if overlay.DataRoot != "" {
		base.DataRoot = overlay.DataRoot
	}
	if overlay.SleepSeconds != 0 {
		base.SleepSeconds = overlay.SleepSeconds
	}
	if overlay.Workers != 0 {
		base.Workers = overlay.Workers
	}
	return base
}

func chooseObservability(base, overlay ObservabilityConfig) ObservabilityConfig {
	if overlay.Logging.Level != "" || overlay.Logging.Format != "" {
		base.Logging = overlay.Logging
	}
	if overlay.Metrics.Enabled || overlay.Metrics.Addr != "" {
		base.Metrics = overlay.Metrics
	}
	return base
}

func chooseLeader(base, overlay LeaderConfig) LeaderConfig {
	if overlay.Enabled || overlay.ConsulAddress != "" {
		return overlay
	}
	return base
}

func chooseNotify(base, overlay NotifyConfig) NotifyConfig {
	if overlay.SMTP != nil {
		base.SMTP = overlay.SMTP
	}
	return base
}
