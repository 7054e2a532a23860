package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeromicro/go-zero/core/conf"

	brokerpkg "bigdipper/pkg/broker"
	"bigdipper/pkg/confkit"
	enginepkg "bigdipper/pkg/engine"
)

// Config is the application configuration. The broker and engine
// sections live in their own yaml files, referenced by path relative to
// the main config.
type Config struct {
	// Env indicates the running environment: test | dev | prod.
	Env string `json:",default=test"`

	// MetricsAddr is the listen address of the Prometheus endpoint;
	// empty disables it.
	MetricsAddr string `json:",default=:9614"`

	// JournalDir is where cycle records are appended; empty disables
	// journaling.
	JournalDir string `json:",optional"`

	Broker confkit.Section[brokerpkg.Config] `json:",optional"`
	Engine confkit.Section[enginepkg.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

func (c *Config) IsTestEnv() bool {
	return c.Env == "test" || c.Env == ""
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", absPath, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	return nil
}

func (c *Config) hydrateSections() error {
	base := c.baseDir

	if err := c.Broker.Hydrate(base, brokerpkg.LoadConfig); err != nil {
		return fmt.Errorf("load broker config: %w", err)
	}
	if err := c.Engine.Hydrate(base, enginepkg.LoadConfig); err != nil {
		return fmt.Errorf("load engine config: %w", err)
	}

	return nil
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) BaseDir() string {
	return c.baseDir
}
