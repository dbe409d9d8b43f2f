// Package config loads and persists the leaflib configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// DefaultFile is the config file used when no --config flag is given.
const DefaultFile = "config.json"

// Config holds the settings for the leaflib server. It is loaded once at
// startup and passed explicitly to the components that need it.
type Config struct {
	// LibraryName is the display name shown in the web UI.
	LibraryName string `json:"library_name" mapstructure:"library_name"`
	// DataPath is the root directory for books, covers and the database file.
	DataPath string `json:"data_path" mapstructure:"data_path"`
	// Port is the TCP port the HTTP server listens on.
	Port int `json:"port" mapstructure:"port"`
	// Theme is the default UI theme ("dark" or "light").
	Theme string `json:"theme" mapstructure:"theme"`
	// ThemeColor is the accent color palette name.
	ThemeColor string `json:"theme_color" mapstructure:"theme_color"`
	// SessionKey is the key used to authenticate session cookies.
	SessionKey string `json:"session_key" mapstructure:"session_key"`

	// path the config was loaded from, kept for Save.
	path string
}

// Load reads the configuration from path, creating the file with defaults if
// it does not exist. Missing keys are backfilled from defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("LEAFLIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Info("no config file found, writing defaults", "file", path)
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	} else {
		log.Debug("using config file", "file", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.path = path

	if err := c.validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(c.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data path: %w", err)
	}
	c.DataPath = abs

	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("library_name", "Thư Viện Sách")
	v.SetDefault("data_path", "leaflib_data")
	v.SetDefault("port", 5000)
	v.SetDefault("theme", "dark")
	v.SetDefault("theme_color", "cyan")
	v.SetDefault("session_key", "change_me_session_key")
}

func (c *Config) validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("data_path must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// Save writes the current configuration back to the file it was loaded from.
func (c *Config) Save() error {
	v := viper.New()
	v.SetConfigType("json")
	v.Set("library_name", c.LibraryName)
	v.Set("data_path", c.DataPath)
	v.Set("port", c.Port)
	v.Set("theme", c.Theme)
	v.Set("theme_color", c.ThemeColor)
	v.Set("session_key", c.SessionKey)

	path := c.path
	if path == "" {
		path = DefaultFile
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// BooksDir is the directory holding the stored book files.
func (c *Config) BooksDir() string {
	return filepath.Join(c.DataPath, "books")
}

// ScratchDir is the directory for temporary import extraction.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.DataPath, "scratch")
}

// CoversDir is the directory holding generated cover images, one
// subdirectory per user id.
func (c *Config) CoversDir() string {
	return filepath.Join(c.DataPath, "static", "covers")
}

// StaticDir is the directory for static assets generated at runtime.
func (c *Config) StaticDir() string {
	return filepath.Join(c.DataPath, "static")
}

// DatabaseFile is the sqlite database file path.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataPath, "books.db")
}

// Listen is the address the HTTP server binds to.
func (c *Config) Listen() string {
	return fmt.Sprintf(":%d", c.Port)
}
