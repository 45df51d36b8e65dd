// Package config loads kiosk configuration from file, environment and
// defaults, clamps the user-tunable values into their supported ranges,
// and exposes a watch hook so capture settings apply without a restart.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	MinFunInterval  = 20 * time.Millisecond
	MaxFunInterval  = 5000 * time.Millisecond
	MinBaseInterval = 200 * time.Millisecond
	MaxBaseInterval = 10000 * time.Millisecond
	MinEncodeWidth  = 160
	MaxEncodeWidth  = 1920
)

type Config struct {
	Camera  CameraConfig  `mapstructure:"camera"`
	Backend BackendConfig `mapstructure:"backend"`
	Encode  EncodeConfig  `mapstructure:"encode"`
	Pacing  PacingConfig  `mapstructure:"pacing"`
	Fusion  FusionConfig  `mapstructure:"fusion"`
	Display DisplayConfig `mapstructure:"display"`
	Server  ServerConfig  `mapstructure:"server"`
	Record  RecordConfig  `mapstructure:"record"`
	Log     LogConfig     `mapstructure:"log"`
}

type CameraConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Debug         bool          `mapstructure:"debug"`
	SimWidth      int           `mapstructure:"sim_width"`
	SimHeight     int           `mapstructure:"sim_height"`
	SimFPS        float64       `mapstructure:"sim_fps"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
}

type BackendConfig struct {
	URL       string  `mapstructure:"url"`
	Threshold float64 `mapstructure:"threshold"`
	Mark      bool    `mapstructure:"mark"`
}

type EncodeConfig struct {
	TargetWidth int     `mapstructure:"target_width"`
	Quality     float64 `mapstructure:"quality"`
}

type PacingConfig struct {
	FunInterval  time.Duration `mapstructure:"fun_interval"`
	BaseInterval time.Duration `mapstructure:"base_interval"`
}

type FusionConfig struct {
	MinIoU float64       `mapstructure:"min_iou"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type DisplayConfig struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Fit    string `mapstructure:"fit"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RecordConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("camera.endpoint", "tcp://localhost:5555")
	v.SetDefault("camera.debug", false)
	v.SetDefault("camera.sim_width", 640)
	v.SetDefault("camera.sim_height", 480)
	v.SetDefault("camera.sim_fps", 15.0)
	v.SetDefault("camera.watch_interval", 400*time.Millisecond)

	v.SetDefault("backend.url", "ws://localhost:8085/stream")
	v.SetDefault("backend.threshold", 0.5)
	v.SetDefault("backend.mark", true)

	v.SetDefault("encode.target_width", 640)
	v.SetDefault("encode.quality", 0.7)

	v.SetDefault("pacing.fun_interval", 350*time.Millisecond)
	v.SetDefault("pacing.base_interval", 1200*time.Millisecond)

	v.SetDefault("fusion.min_iou", 0.25)
	v.SetDefault("fusion.max_age", 1800*time.Millisecond)

	v.SetDefault("display.width", 1280)
	v.SetDefault("display.height", 720)
	v.SetDefault("display.fit", "cover")

	v.SetDefault("server.port", 8090)

	v.SetDefault("record.enabled", false)
	v.SetDefault("record.dir", "rawlog")

	v.SetDefault("log.level", "info")
}

// Load reads configuration from path (optional), KIOSK_* environment
// variables and defaults, then clamps tunables into range.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("kiosk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Watch re-reads the config file on change and delivers a freshly
// clamped Config. This is the reactive settings path: encode width,
// quality and pacing intervals take effect on the next frame.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Clamp()
	return &cfg, nil
}

// Clamp bounds every user-tunable value into its supported range.
func (c *Config) Clamp() {
	c.Encode.TargetWidth = clampInt(c.Encode.TargetWidth, MinEncodeWidth, MaxEncodeWidth)
	c.Encode.Quality = clampFloat(c.Encode.Quality, 0, 1)
	c.Pacing.FunInterval = clampDuration(c.Pacing.FunInterval, MinFunInterval, MaxFunInterval)
	c.Pacing.BaseInterval = clampDuration(c.Pacing.BaseInterval, MinBaseInterval, MaxBaseInterval)
	c.Backend.Threshold = clampFloat(c.Backend.Threshold, 0, 1)

	if c.Fusion.MinIoU <= 0 || c.Fusion.MinIoU > 1 {
		c.Fusion.MinIoU = 0.25
	}
	if c.Fusion.MaxAge <= 0 {
		c.Fusion.MaxAge = 1800 * time.Millisecond
	}
	if c.Display.Width < 1 {
		c.Display.Width = 1280
	}
	if c.Display.Height < 1 {
		c.Display.Height = 720
	}
	switch c.Display.Fit {
	case "cover", "fill", "contain":
	default:
		c.Display.Fit = "cover"
	}
	if c.Camera.WatchInterval <= 0 {
		c.Camera.WatchInterval = 400 * time.Millisecond
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
