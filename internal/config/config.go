package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/char5742/scroll-offset-reader/internal/features"
	"github.com/char5742/scroll-offset-reader/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 設定ディレクトリ名
const appDirName = "scroll-offset-reader"

// ErrInvalidConfig は設定値の検証に失敗した場合に返される
var ErrInvalidConfig = errors.New("invalid config")

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Sampler SamplerConfig `toml:"sampler" json:"sampler"`
	Scroll  ScrollConfig  `toml:"scroll" json:"scroll"`
	Motion  MotionConfig  `toml:"motion" json:"motion"`
	Device  DeviceConfig  `toml:"device" json:"device"`
	Log     LogConfig     `toml:"log" json:"log"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
}

// SamplerConfig はオフセットサンプラーの設定
type SamplerConfig struct {
	TickInterval Duration `toml:"tick_interval" json:"tick_interval"`
	MinDelta     float64       `toml:"min_delta" json:"min_delta"`
	InitialDX    float64       `toml:"initial_dx" json:"initial_dx"`
	InitialDY    float64       `toml:"initial_dy" json:"initial_dy"`
}

// ScrollConfig は入力デバイスからスクロール位置を作る設定
type ScrollConfig struct {
	Axes          string  `toml:"axes" json:"axes"`
	WheelStep     float64 `toml:"wheel_step" json:"wheel_step"`
	PointerFactor float64 `toml:"pointer_factor" json:"pointer_factor"`
	MaxDX         float64 `toml:"max_dx" json:"max_dx"`
	MaxDY         float64 `toml:"max_dy" json:"max_dy"`
}

// MotionConfig はモーション制御の設定
type MotionConfig struct {
	FilterSmoothingFactor float64 `toml:"filter_smoothing_factor" json:"filter_smoothing_factor"`
	FilterWarmUpCount     int     `toml:"filter_warm_up_count" json:"filter_warm_up_count"`
}

// DeviceConfig は入力デバイスの設定
type DeviceConfig struct {
	PreferredMouseDevice string `toml:"preferred_mouse_device" json:"preferred_mouse_device"`
	Grab                 bool   `toml:"grab" json:"grab"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level string `toml:"level" json:"level"`
}

// MetricsConfig はメトリクスの設定
type MetricsConfig struct {
	ReportInterval Duration `toml:"report_interval" json:"report_interval"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	return &Config{
		Sampler: SamplerConfig{
			TickInterval: Duration(features.DefaultTickInterval),
			MinDelta:     features.DefaultMinDelta,
		},
		Scroll: ScrollConfig{
			Axes:          "vertical",
			WheelStep:     40,
			PointerFactor: 1,
		},
		Motion: MotionConfig{
			FilterSmoothingFactor: 0.85,
			FilterWarmUpCount:     10,
		},
		Device: DeviceConfig{
			PreferredMouseDevice: "",
			Grab:                 false,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			ReportInterval: Duration(10 * time.Second),
		},
	}
}

// SamplerOptions はサンプラー設定を features.SamplerOptions に変換する
func (c SamplerConfig) SamplerOptions() features.SamplerOptions {
	return features.SamplerOptions{
		TickInterval: c.TickInterval.Std(),
		MinDelta:     c.MinDelta,
		Initial:      types.Offset{DX: c.InitialDX, DY: c.InitialDY},
	}
}

// TrackerOptions はスクロール設定を features.TrackerOptions に変換する
func (c *Config) TrackerOptions() (features.TrackerOptions, error) {
	axes, err := features.ParseAxes(c.Scroll.Axes)
	if err != nil {
		return features.TrackerOptions{}, err
	}
	return features.TrackerOptions{
		Axes:          axes,
		WheelStep:     c.Scroll.WheelStep,
		PointerFactor: c.Scroll.PointerFactor,
		MaxDX:         c.Scroll.MaxDX,
		MaxDY:         c.Scroll.MaxDY,
		Filter:        features.NewMotionFilter(c.Motion.FilterSmoothingFactor, c.Motion.FilterWarmUpCount),
	}, nil
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	if err := c.Sampler.SamplerOptions().Validate(); err != nil {
		return fmt.Errorf("%w: sampler: %w", ErrInvalidConfig, err)
	}
	if _, err := features.ParseAxes(c.Scroll.Axes); err != nil {
		return fmt.Errorf("%w: scroll: %w", ErrInvalidConfig, err)
	}
	if c.Motion.FilterSmoothingFactor < 0 || c.Motion.FilterSmoothingFactor > 1 {
		return fmt.Errorf("%w: motion: filter_smoothing_factor must be within [0, 1]", ErrInvalidConfig)
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		return fmt.Errorf("%w: log: %w", ErrInvalidConfig, err)
	}
	if c.Metrics.ReportInterval < 0 {
		return fmt.Errorf("%w: metrics: report_interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ParseLevel はログレベル文字列を解釈する
func (c LogConfig) ParseLevel() (zapcore.Level, error) {
	if c.Level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(c.Level)
}

// NewLogger は設定されたレベルのロガーを作成する
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := c.ParseLevel()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// GetDefaultConfigDir はデフォルトの設定ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDirName), nil
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	config, err := ReadConfig(configPath)
	if err != nil {
		return DefaultConfig(), err
	}
	return config, nil
}

// ReadConfig は既存の設定ファイルを読み込んで検証する
// LoadConfig と異なり、ファイルが存在しない場合はエラーを返す
func ReadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", configPath, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// ファイルを開く（なければ作成）
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// TOML形式でエンコードして書き込み
	encoder := toml.NewEncoder(f)
	return encoder.Encode(config)
}
