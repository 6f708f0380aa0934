// Package config provides configuration management for tspack using Viper
// for loading from .tspack.yml, TSPACK_* environment variables and
// command-line flags.
//
// Scalar settings go through viper. The option trees (build.presets,
// build.plugins and build.output) are read from the YAML file directly,
// because viper lowercases map keys and esbuild option names such as
// globalName and treeShaking are case sensitive.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/entry"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/validation"
)

// FileName is the default configuration file name, without extension.
const FileName = ".tspack"

type Config struct {
	Build BuildConfig `mapstructure:"build" yaml:"build"`
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`
	Lint  LintConfig  `mapstructure:"lint" yaml:"lint"`
	Test  TestConfig  `mapstructure:"test" yaml:"test"`

	// File is the configuration file used, if any.
	File string `mapstructure:"-" yaml:"-"`
}

type BuildConfig struct {
	// OutDir replaces the output directory declared in package.json. Empty
	// keeps the declared paths.
	OutDir            string   `mapstructure:"out_dir" yaml:"out_dir"`
	Entries           []string `mapstructure:"entries" yaml:"entries,omitempty"`
	Formats           []string `mapstructure:"formats" yaml:"formats,omitempty"`
	Target            string   `mapstructure:"target" yaml:"target"`
	Tsconfig          string   `mapstructure:"tsconfig" yaml:"tsconfig,omitempty"`
	Concurrency       int      `mapstructure:"concurrency" yaml:"concurrency"`
	CacheDir          string   `mapstructure:"cache_dir" yaml:"cache_dir"`
	Minify            bool     `mapstructure:"minify" yaml:"minify"`
	DisableProdMinify bool     `mapstructure:"no_prod_minify" yaml:"no_prod_minify"`
	Sourcemap         bool     `mapstructure:"sourcemap" yaml:"sourcemap"`
	Declaration       bool     `mapstructure:"declaration" yaml:"declaration"`
	TranspileOnly     bool     `mapstructure:"transpile_only" yaml:"transpile_only"`
	Clean             bool     `mapstructure:"clean" yaml:"clean"`
	EnvFile           string   `mapstructure:"env_file" yaml:"env_file"`
	EnvPrefix         string   `mapstructure:"env_prefix" yaml:"env_prefix"`
	// Define holds KEY=VALUE replacements.
	Define []string `mapstructure:"define" yaml:"define,omitempty"`

	Presets buildcfg.Options            `mapstructure:"-" yaml:"presets,omitempty"`
	Plugins []any                       `mapstructure:"-" yaml:"plugins,omitempty"`
	Output  map[string]buildcfg.Options `mapstructure:"-" yaml:"output,omitempty"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore,omitempty"`
}

type LintConfig struct {
	Paths       []string `mapstructure:"paths" yaml:"paths,omitempty"`
	MaxWarnings int      `mapstructure:"max_warnings" yaml:"max_warnings"`
}

type TestConfig struct {
	Runner string `mapstructure:"runner" yaml:"runner"`
}

// EnvPrefix prefixes environment overrides, e.g. TSPACK_BUILD_OUT_DIR.
const EnvPrefix = "TSPACK"

var envKeyReplacer = strings.NewReplacer(".", "_")

// Init points v at the configuration file and enables environment
// overrides. cfgFile wins over TSPACK_CONFIG_FILE, which wins over
// .tspack.yml in the working directory. A missing default file is not an
// error; an explicit file that cannot be read is.
func Init(v *viper.Viper, cfgFile string) error {
	explicit := true
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv(EnvPrefix+"_CONFIG_FILE") != "":
		v.SetConfigFile(os.Getenv(EnvPrefix + "_CONFIG_FILE"))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && stderrors.As(err, &notFound) {
			return nil
		}
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot read configuration file", err)
	}
	return nil
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("build.out_dir", "")
	v.SetDefault("build.target", buildcfg.TargetBrowser)
	v.SetDefault("build.concurrency", runtime.GOMAXPROCS(0))
	v.SetDefault("build.cache_dir", "node_modules/.cache/tspack")
	v.SetDefault("build.sourcemap", true)
	v.SetDefault("build.declaration", true)
	v.SetDefault("build.clean", true)
	v.SetDefault("build.env_file", ".env")
	v.SetDefault("build.env_prefix", "PUBLIC_")
	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("watch.ignore", []string{"dist", "coverage"})
	v.SetDefault("lint.paths", []string{"src"})
	v.SetDefault("lint.max_warnings", -1)
	v.SetDefault("test.runner", "vitest run")
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applying defaults for unset keys.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot decode configuration", err)
	}
	cfg.File = v.ConfigFileUsed()

	if cfg.File != "" {
		if err := readOptionTrees(cfg.File, &cfg.Build); err != nil {
			return nil, err
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration", err).WithLocation(cfg.File, 0, 0)
	}
	return &cfg, nil
}

// optionTrees is the case-preserving part of the build section.
type optionTrees struct {
	Presets map[string]any            `mapstructure:"presets"`
	Plugins []any                     `mapstructure:"plugins"`
	Output  map[string]map[string]any `mapstructure:"output"`
}

func readOptionTrees(path string, build *BuildConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.FileOperationError("READ", path, "cannot read configuration", err)
	}

	var doc struct {
		Build map[string]any `yaml:"build"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "configuration is not valid YAML", err).WithLocation(path, 0, 0)
	}
	if doc.Build == nil {
		return nil
	}

	var trees optionTrees
	if err := mapstructure.Decode(doc.Build, &trees); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid build.presets, build.plugins or build.output", err).WithLocation(path, 0, 0)
	}

	build.Presets = buildcfg.Options(trees.Presets)
	build.Plugins = trees.Plugins
	if len(trees.Output) > 0 {
		build.Output = make(map[string]buildcfg.Options, len(trees.Output))
		for k, v := range trees.Output {
			build.Output[k] = buildcfg.Options(v)
		}
	}
	return nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(cfg *Config) error {
	b := &cfg.Build
	if b.Target != buildcfg.TargetBrowser && b.Target != buildcfg.TargetNode {
		return fmt.Errorf("build.target must be %q or %q, got %q", buildcfg.TargetBrowser, buildcfg.TargetNode, b.Target)
	}
	if _, err := entry.ParseFormats(b.Formats); err != nil {
		return fmt.Errorf("build.formats: %w", err)
	}
	for name, p := range map[string]string{"build.out_dir": b.OutDir, "build.cache_dir": b.CacheDir} {
		if p == "" {
			continue
		}
		if err := validation.ValidateRelativePath(p); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, g := range b.Entries {
		if err := validation.ValidateGlob(g); err != nil {
			return fmt.Errorf("build.entries: %w", err)
		}
	}
	for _, g := range cfg.Watch.Ignore {
		if err := validation.ValidateGlob(g); err != nil {
			return fmt.Errorf("watch.ignore: %w", err)
		}
	}
	if b.Concurrency < 0 {
		return fmt.Errorf("build.concurrency must not be negative")
	}
	for _, d := range b.Define {
		if !strings.Contains(d, "=") {
			return fmt.Errorf("build.define entry %q is not KEY=VALUE", d)
		}
	}
	for key := range b.Output {
		if key != "*" && !isOverrideKey(key) {
			return fmt.Errorf("build.output key %q is not a format, an environment or \"*\"", key)
		}
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

func isOverrideKey(key string) bool {
	if _, err := entry.ParseFormat(key); err == nil {
		return true
	}
	return key == string(buildcfg.EnvDevelopment) || key == string(buildcfg.EnvProduction)
}

// ParseDefines converts KEY=VALUE entries into a define map. Values are
// used verbatim, so strings must carry their own quotes.
func ParseDefines(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, ok := strings.Cut(e, "=")
		if ok && strings.TrimSpace(k) != "" {
			out[strings.TrimSpace(k)] = v
		}
	}
	return out
}
