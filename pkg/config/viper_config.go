package config

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ViperConfig reads a YAML, TOML or Java properties file, the format is
// taken from the file extension. Environment variables override the file.
// Keys are case insensitive.
type ViperConfig struct {
	keyGetter
	v    *viper.Viper
	path string
}

func NewViperConfig(path string) *ViperConfig {
	c := &ViperConfig{v: viper.New(), path: path}
	c.keyGetter = keyGetter{get: c.lookup}
	c.v.AutomaticEnv()
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return c
}

func (c *ViperConfig) LoadFromPath(path string) error {
	c.path = path
	return c.Load()
}

func (c *ViperConfig) Load() error {
	if c.path == "" {
		return nil
	}

	c.v.SetConfigFile(c.path)
	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", c.path)
	}

	return nil
}

func (c *ViperConfig) lookup(key string) string {
	return c.v.GetString(key)
}

// NewConfigForPath picks the Configer for a config file: dotenv for .env
// files and files without an extension, viper for everything else.
func NewConfigForPath(path string) Configer {
	switch {
	case path == "", filepath.Ext(path) == "", filepath.Ext(path) == ".env":
		return NewDotenvConfig(path)
	default:
		return NewViperConfig(path)
	}
}
