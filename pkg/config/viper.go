package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/polar/pkg/dotdir"
)

// EnvPrefix namespaces environment overrides, e.g. POLAR_FEED_POOL_SIZE.
const EnvPrefix = "POLAR"

// InitViper layers settings for a command. Later sources win: built-in
// defaults, then config.toml from the resolved .polar/ directory, then
// POLAR_* environment variables, then flags bound with BindRegisteredFlags.
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()
	setViperDefaults(v)

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("version", d.Version)
	for _, k := range configKeys {
		v.SetDefault(k.name, k.value(d))
	}
}
