package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gitmerge/gitmerge/internal/engine"
	"github.com/gitmerge/gitmerge/internal/env"
	"github.com/gitmerge/gitmerge/internal/retry"
	"github.com/gitmerge/gitmerge/internal/vfs"
)

var (
	vCfg   = viper.New()
	cfgDir string
)

const (
	envPrefix = "GITMERGE"

	GitHubTokenKey     = "github_token"
	AuthorNameKey      = "author_name"
	AuthorEmailKey     = "author_email"
	StorageKey         = "storage"
	WorkspaceDirKey    = "workspace_dir"
	CloneDepthKey      = "clone_depth"
	DeepenDepthKey     = "deepen_depth"
	DefaultBranchesKey = "default_branches"
	MaxAttemptsKey     = "retry.max_attempts"
	InitialDelayKey    = "retry.initial_delay"
	MaxDelayKey        = "retry.max_delay"
	BackoffFactorKey   = "retry.backoff_factor"
)

// Keys lists the settings `config set` accepts.
var Keys = []string{
	GitHubTokenKey, AuthorNameKey, AuthorEmailKey, StorageKey, WorkspaceDirKey,
	CloneDepthKey, DeepenDepthKey, DefaultBranchesKey,
	MaxAttemptsKey, InitialDelayKey, MaxDelayKey, BackoffFactorKey,
}

func Load() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	return LoadFrom(filepath.Join(home, ".gitmerge"))
}

// LoadFrom reads config.yaml from dir. A missing file is not an error.
func LoadFrom(dir string) error {
	cfgDir = dir
	vCfg = viper.New()

	vCfg.SetConfigName("config")
	vCfg.SetConfigType("yaml")
	vCfg.AddConfigPath(cfgDir)

	vCfg.SetEnvPrefix(envPrefix)
	vCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vCfg.AutomaticEnv()

	vCfg.SetDefault(AuthorNameKey, engine.DefaultAuthorName)
	vCfg.SetDefault(AuthorEmailKey, engine.DefaultAuthorEmail)
	vCfg.SetDefault(StorageKey, string(vfs.KindPersistent))
	vCfg.SetDefault(WorkspaceDirKey, filepath.Join(cfgDir, "workspaces"))
	vCfg.SetDefault(CloneDepthKey, engine.DefaultCloneDepth)
	vCfg.SetDefault(DeepenDepthKey, engine.DefaultDeepenDepth)
	vCfg.SetDefault(DefaultBranchesKey, engine.DefaultBranches)
	vCfg.SetDefault(MaxAttemptsKey, retry.DefaultMaxAttempts)
	vCfg.SetDefault(InitialDelayKey, retry.DefaultInitialDelay)
	vCfg.SetDefault(MaxDelayKey, retry.DefaultMaxDelay)
	vCfg.SetDefault(BackoffFactorKey, retry.DefaultBackoffFactor)

	if err := vCfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return nil
}

// GetGitHubToken prefers a token from the environment over the stored one.
func GetGitHubToken() string {
	if token := env.GithubToken(); token != "" {
		return token
	}
	return vCfg.GetString(GitHubTokenKey)
}

func SetGitHubToken(token string) error {
	vCfg.Set(GitHubTokenKey, token)
	return save()
}

func GetAuthor() (name, email string) {
	return vCfg.GetString(AuthorNameKey), vCfg.GetString(AuthorEmailKey)
}

func GetStorage() (vfs.Storage, error) {
	return vfs.NewStorage(vfs.Kind(vCfg.GetString(StorageKey)), vCfg.GetString(WorkspaceDirKey))
}

func GetCloneDepth() int {
	return vCfg.GetInt(CloneDepthKey)
}

func GetDeepenDepth() int {
	return vCfg.GetInt(DeepenDepthKey)
}

func GetDefaultBranches() []string {
	return vCfg.GetStringSlice(DefaultBranchesKey)
}

func GetRetryOptions() retry.Options {
	return retry.Options{
		MaxAttempts:   vCfg.GetInt(MaxAttemptsKey),
		InitialDelay:  vCfg.GetDuration(InitialDelayKey),
		MaxDelay:      vCfg.GetDuration(MaxDelayKey),
		BackoffFactor: vCfg.GetFloat64(BackoffFactorKey),
	}
}

// EngineOptions turns the loaded settings into engine options.
func EngineOptions() ([]engine.Option, error) {
	storage, err := GetStorage()
	if err != nil {
		return nil, err
	}

	name, email := GetAuthor()
	return []engine.Option{
		engine.WithStorage(storage),
		engine.WithAuthor(name, email),
		engine.WithCloneDepth(GetCloneDepth()),
		engine.WithDeepenDepth(GetDeepenDepth()),
		engine.WithDefaultBranches(GetDefaultBranches()),
		engine.WithRetry(GetRetryOptions()),
	}, nil
}

// Set validates and persists a single key.
func Set(key, value string) error {
	switch key {
	case GitHubTokenKey, AuthorNameKey, AuthorEmailKey, WorkspaceDirKey:
		vCfg.Set(key, value)
	case StorageKey:
		if _, err := vfs.NewStorage(vfs.Kind(value), "unused"); err != nil {
			return err
		}
		vCfg.Set(key, value)
	case CloneDepthKey, DeepenDepthKey, MaxAttemptsKey:
		var n int
		if _, err := fmt.Sscan(value, &n); err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", key, value)
		}
		vCfg.Set(key, n)
	case InitialDelayKey, MaxDelayKey:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s must be a duration such as 500ms: %w", key, err)
		}
		vCfg.Set(key, d.String())
	case BackoffFactorKey:
		var f float64
		if _, err := fmt.Sscan(value, &f); err != nil || f < 1 {
			return fmt.Errorf("%s must be a number >= 1, got %q", key, value)
		}
		vCfg.Set(key, f)
	case DefaultBranchesKey:
		vCfg.Set(key, strings.Split(value, ","))
	default:
		return fmt.Errorf("unknown config key %q (available keys: %s)", key, strings.Join(Keys, ", "))
	}

	return save()
}

func Get(key string) any {
	return vCfg.Get(key)
}

func save() error {
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return err
	}

	if err := vCfg.WriteConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}

		if err := vCfg.SafeWriteConfig(); err != nil {
			return err
		}
	}

	return nil
}
