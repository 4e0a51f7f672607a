package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to upper-cased keys when reading overrides from the
// environment, e.g. POSCALC_APP_LOG_LEVEL.
const EnvPrefix = "POSCALC"

// Load reads the yaml file at path. A missing file is not an error: defaults
// and environment overrides still apply.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindKnownKeys(v)
	path = strings.TrimSpace(path)
	if path == "" {
		return v, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return v, nil
		}
		return nil, err
	}
	v.SetConfigFile(abs)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", abs, err)
	}
	return v, nil
}

// bindKnownKeys makes AutomaticEnv visible to Unmarshal, which only walks
// keys viper already knows about.
func bindKnownKeys(v *viper.Viper) {
	raw, err := yaml.Marshal(Config{})
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return
	}
	keys := make(keySet)
	flattenConfigKeys("", tree, keys)
	for key := range keys {
		_ = v.BindEnv(key)
	}
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	setKeys := make(keySet)
	flattenConfigKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the file on change and hands the new config to fn. Invalid
// edits are reported through onErr and the previous config stays in effect.
func Watch(path string, fn func(*Config), onErr func(error)) error {
	if fn == nil {
		return nil
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("config watch requires an existing file: %s", path)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("reload %s: %w", evt.Name, err))
			}
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
	return nil
}

// Dump renders the effective config as yaml.
func (c *Config) Dump() string {
	if c == nil {
		return ""
	}
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config dump failed: %v", err)
	}
	return string(raw)
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	switch val := node.(type) {
	case map[string]any:
		for k, v := range val {
			next := strings.ToLower(strings.TrimSpace(k))
			if next == "" {
				continue
			}
			if prefix != "" {
				next = prefix + "." + next
			}
			flattenConfigKeys(next, v, dest)
		}
	case map[any]any:
		for k, v := range val {
			keyStr, ok := k.(string)
			if !ok {
				continue
			}
			flattenConfigKeys(prefix, map[string]any{keyStr: v}, dest)
		}
	default:
		if prefix != "" {
			dest.mark(prefix)
		}
	}
}
