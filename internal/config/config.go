package config

import (
	"log/slog"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Render  RenderConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken, when set, gates mutating API routes behind bearer auth.
	// Secret: env-only, never written to the config file.
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type RenderConfig struct {
	// Workers bounds the render pool; 0 means one per CPU.
	Workers int
	// Dither enables Floyd-Steinberg error diffusion by default.
	Dither bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Render: RenderConfig{
			Workers: 0,
			Dither:  true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/inkframe/config.json, then applies INKFRAME_*
// environment overrides on top.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// SlogLevel maps the configured log level string onto slog's levels.
// Unknown values fall back to Info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
