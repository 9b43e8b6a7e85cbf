package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// LoaderOptions describes how configuration should be discovered.
type LoaderOptions struct {
	ConfigPaths []string
	FileName    string
	EnvPrefix   string
}

// Load returns the merged configuration from files and environment variables.
func Load(opts LoaderOptions) (Config, error) {
	v := viper.New()

	name := opts.FileName
	if name == "" {
		name = "arcyd"
	}

	configFile := locateConfigFile(name, opts.ConfigPaths)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(name)
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = "ARCYD"
	}
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AllowEmptyEnv(true)

	setDefaults(v)

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg = expandEnvVars(cfg)

	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars expands ${VAR} and $VAR syntax in configuration strings
// that commonly carry secrets or host-specific paths — host tokens are
// named by env var rather than embedded in the file, so the file itself
// stays safe to commit.
func expandEnvVars(cfg Config) Config {
	cfg.Arcyd.DataRoot = expandEnvString(cfg.Arcyd.DataRoot)

	for name, host := range cfg.ReviewHosts {
		host.URL = expandEnvString(host.URL)
		host.TokenEnv = expandEnvString(host.TokenEnv)
		cfg.ReviewHosts[name] = host
	}
	for name, host := range cfg.RepoHosts {
		host.URL = expandEnvString(host.URL)
		host.TokenEnv = expandEnvString(host.TokenEnv)
		cfg.RepoHosts[name] = host
	}
	for name, repo := range cfg.Repos {
		repo.WorkingCopy = expandEnvString(repo.WorkingCopy)
		repo.Remote = expandEnvString(repo.Remote)
		cfg.Repos[name] = repo
	}

	return cfg
}

// expandEnvString replaces ${VAR} or $VAR with environment variable values.
func expandEnvString(s string) string {
	if s == "" {
		return s
	}

	re := regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re = regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// FilePath resolves where the config file for name lives, preferring an
// existing file under paths (or ".") and falling back to paths[0]/name.yaml
// (or "./name.yaml") so callers that need to create the file for the
// first time — add-phabricator et al. — have somewhere to write it.
func FilePath(name string, paths []string) string {
	if existing := locateConfigFile(name, paths); existing != "" {
		return existing
	}
	dir := "."
	if len(paths) > 0 && paths[0] != "" {
		dir = paths[0]
	}
	return filepath.Join(dir, name+".yaml")
}

func locateConfigFile(name string, paths []string) string {
	searchPaths := append([]string{}, paths...)
	searchPaths = append(searchPaths, ".")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name+".yaml")
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arcyd.dataRoot", defaultDataRoot())
	v.SetDefault("arcyd.sleepSeconds", 60)
	v.SetDefault("arcyd.workers", 4)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "console")
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.addr", ":9090")

	v.SetDefault("leader.enabled", false)
}

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.arcyd"
	}
	return filepath.Join(home, ".config", "arcyd")
}

// validate applies the closed-product-type schema check spec.md calls
// for at the config/fsconfig boundary: every repo must reference hosts
// that are actually configured, and every host must name a known kind.
func validate(cfg Config) error {
	for name, host := range cfg.ReviewHosts {
		if host.Kind != "github" {
			return fmt.Errorf("review host %s: unsupported kind %q", name, host.Kind)
		}
	}
	for name, host := range cfg.RepoHosts {
		if host.Kind != "github" {
			return fmt.Errorf("repo host %s: unsupported kind %q", name, host.Kind)
		}
	}
	for name, repo := range cfg.Repos {
		if repo.RepoHost != "" {
			if _, ok := cfg.RepoHosts[repo.RepoHost]; !ok {
				return fmt.Errorf("repo %s: unknown repo host %q", name, repo.RepoHost)
			}
		}
		if repo.ReviewHost != "" {
			if _, ok := cfg.ReviewHosts[repo.ReviewHost]; !ok {
				return fmt.Errorf("repo %s: unknown review host %q", name, repo.ReviewHost)
			}
		}
	}
	return nil
}
