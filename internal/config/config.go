// Package config loads the build recipe and the control-plane settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the recipe file looked up in the source tree (without extension).
	FileName = "lighthouse"
	// EnvPrefix prefixes every environment override, e.g. LIGHTHOUSE_RECIPE_BASE_IMAGE.
	EnvPrefix = "LIGHTHOUSE"
)

// Config is everything lighthouse reads before building or serving.
type Config struct {
	Recipe domain.Recipe `mapstructure:"recipe" yaml:"recipe"`
	Listen string        `mapstructure:"listen" yaml:"listen"`
	Log    LogConfig     `mapstructure:"log" yaml:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Recipe: domain.DefaultRecipe(),
		Listen: ":3000",
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// File is an explicit config file; it must exist when set.
	File string
	// SearchDirs are scanned for lighthouse.{yaml,yml,json,toml} when File is empty.
	SearchDirs []string
}

// Load merges defaults, the config file and LIGHTHOUSE_* variables, then
// validates the recipe.
func Load(opts LoadOptions) (Config, string, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(FileName)
		for _, dir := range opts.SearchDirs {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Recipe.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("listen", d.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("recipe.base_image", d.Recipe.BaseImage)
	v.SetDefault("recipe.workdir", d.Recipe.WorkDir)
	v.SetDefault("recipe.system_packages", d.Recipe.SystemPackages)
	v.SetDefault("recipe.manifest", d.Recipe.Manifest)
	v.SetDefault("recipe.exposed_port", d.Recipe.ExposedPort)
	v.SetDefault("recipe.default_port", d.Recipe.DefaultPort)
	v.SetDefault("recipe.app", d.Recipe.App)
	v.SetDefault("recipe.server", d.Recipe.Server)
	v.SetDefault("recipe.require_pinned", d.Recipe.RequirePinned)
	v.SetDefault("recipe.launcher", d.Recipe.Launcher)
}

// Write encodes cfg as a YAML starter file.
func Write(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
