package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/errors"
)

func writeConfig(t *testing.T, content string) *viper.Viper {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".tspack.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Empty(t, cfg.Build.OutDir)
	assert.Equal(t, buildcfg.TargetBrowser, cfg.Build.Target)
	assert.True(t, cfg.Build.Sourcemap)
	assert.True(t, cfg.Build.Declaration)
	assert.True(t, cfg.Build.Clean)
	assert.Positive(t, cfg.Build.Concurrency)
	assert.Equal(t, "PUBLIC_", cfg.Build.EnvPrefix)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, -1, cfg.Lint.MaxWarnings)
	assert.Equal(t, "vitest run", cfg.Test.Runner)
	assert.Empty(t, cfg.File)
}

func TestLoadFile(t *testing.T) {
	v := writeConfig(t, `build:
  out_dir: lib
  target: node
  formats: [esm, cjs]
  concurrency: 2
  define:
    - __VERSION__="1.0.0"
  presets:
    treeShaking: false
    presets:
      - [env, {targets: {node: "20"}}]
  plugins:
    - [replace, {values: {__BROWSER__: "false"}}]
  output:
    umd:
      globalName: MyLib
    production:
      keepNames: true
watch:
  debounce: 250ms
  ignore: [lib]
lint:
  max_warnings: 0
`)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "lib", cfg.Build.OutDir)
	assert.Equal(t, buildcfg.TargetNode, cfg.Build.Target)
	assert.Equal(t, []string{"esm", "cjs"}, cfg.Build.Formats)
	assert.Equal(t, 2, cfg.Build.Concurrency)
	assert.Equal(t, map[string]string{"__VERSION__": `"1.0.0"`}, ParseDefines(cfg.Build.Define))
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, []string{"lib"}, cfg.Watch.Ignore)
	assert.Equal(t, 0, cfg.Lint.MaxWarnings)

	// Option trees keep their key case.
	assert.Equal(t, false, cfg.Build.Presets["treeShaking"])
	require.Len(t, cfg.Build.Plugins, 1)
	assert.Equal(t, "MyLib", cfg.Build.Output["umd"].String("globalName"))
	assert.True(t, cfg.Build.Output["production"].Bool("keepNames"))

	specs, errs := buildcfg.Options{"plugins": cfg.Build.Plugins}.PluginList(buildcfg.KeyPlugins)
	assert.Empty(t, errs)
	require.Len(t, specs, 1)
	assert.Equal(t, buildcfg.ResolveModule("plugin", "replace"), specs[0].Name)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("TSPACK_BUILD_OUT_DIR", "out")

	v := viper.New()
	v.SetEnvPrefix("TSPACK")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.Build.OutDir)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"unknown target", "build:\n  target: deno\n"},
		{"unknown format", "build:\n  formats: [amd]\n"},
		{"absolute out dir", "build:\n  out_dir: /tmp/out\n"},
		{"escaping out dir", "build:\n  out_dir: ../out\n"},
		{"project root out dir", "build:\n  out_dir: .\n"},
		{"bad define", "build:\n  define: [NOVALUE]\n"},
		{"bad override key", "build:\n  output:\n    amd: {minify: true}\n"},
		{"negative concurrency", "build:\n  concurrency: -1\n"},
		{"escaping entry glob", "build:\n  entries: [\"../shared/*.ts\"]\n"},
		{"malformed ignore glob", "watch:\n  ignore: [\"src/[abc\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.config))
			require.Error(t, err)
			assert.True(t, errors.IsConfigError(err))
		})
	}
}

func TestEnvDefines(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte(`PUBLIC_API_URL=https://api.example.com
PUBLIC_FLAG=from-file
SECRET_TOKEN=hunter2
`), 0644))

	defines, err := EnvDefines(root, ".env", "PUBLIC_", []string{"PUBLIC_FLAG=from-env", "PUBLIC_EXTRA=1", "HOME=/root"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"process.env.PUBLIC_API_URL": `"https://api.example.com"`,
		"process.env.PUBLIC_FLAG":    `"from-env"`,
		"process.env.PUBLIC_EXTRA":   `"1"`,
	}, defines)
	assert.Equal(t, []string{"process.env.PUBLIC_API_URL", "process.env.PUBLIC_EXTRA", "process.env.PUBLIC_FLAG"}, SortedKeys(defines))
}

func TestEnvDefinesMissingFile(t *testing.T) {
	defines, err := EnvDefines(t.TempDir(), ".env", "PUBLIC_", nil)
	require.NoError(t, err)
	assert.Empty(t, defines)
}
