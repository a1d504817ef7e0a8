// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "QGEN"

// Load layers flags, environment, the YAML file at path (skipped when
// empty) and Default, then validates the result.
//
// keys maps flag names in fs onto configuration keys, e.g.
// {"folds": "cv.folds"}; names absent from fs are ignored so that one table
// can serve several commands.
func Load(path string, fs *pflag.FlagSet, keys map[string]string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if fs != nil {
		for name, key := range keys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("config: bind --%s: %w", name, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// setDefaults registers every key, which AutomaticEnv needs to see it
// during Unmarshal.
func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("backend", c.Backend)
	v.SetDefault("ploidy", c.Ploidy)

	v.SetDefault("reml.method", c.REML.Method)
	v.SetDefault("reml.tolerance", c.REML.Tolerance)
	v.SetDefault("reml.max_iter", c.REML.MaxIter)
	v.SetDefault("reml.initial_heritability", c.REML.InitialHeritability)

	v.SetDefault("grm.method", c.GRM.Method)
	v.SetDefault("grm.min_maf", c.GRM.MinMAF)

	v.SetDefault("gs.heritability", c.GS.Heritability)
	v.SetDefault("gs.significance", c.GS.Significance)

	v.SetDefault("cv.method", c.CV.Method)
	v.SetDefault("cv.folds", c.CV.Folds)
	v.SetDefault("cv.repeats", c.CV.Repeats)
	v.SetDefault("cv.seed", c.CV.Seed)
	v.SetDefault("cv.workers", c.CV.Workers)
	v.SetDefault("cv.confidence", c.CV.Confidence)
}
