package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 対応しているカメラドライバー
const (
	DriverMock = "mock"
	DriverV4L2 = "v4l2"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server"`
	Camera CameraConfig `yaml:"camera"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // グレースフルシャットダウンの待ち時間
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver   string `yaml:"driver"`    // mock または v4l2
	CameraID string `yaml:"camera_id"` // 共有カメラのID
	Device   string `yaml:"device"`    // デバイスパス (例: /dev/video0)。空なら自動検出

	// ARセッションが構成する画像
	Width    int      `yaml:"width"`
	Height   int      `yaml:"height"`
	FPS      int      `yaml:"fps"`
	Surfaces []string `yaml:"surfaces"` // トラッカーの出力先

	OpenTimeout     time.Duration `yaml:"open_timeout"`       // ready を待つ上限
	AreaSize        int           `yaml:"area_size"`          // 測光領域のデフォルトサイズ
	AutoFocusOnOpen bool          `yaml:"auto_focus_on_open"` // 開いた直後にAFを有効にする
	OpenOnStart     bool          `yaml:"open_on_start"`      // 起動時に設定のカメラを開く

	// mock ドライバーのフレーム生成間隔（0なら生成しない）
	MockFrameInterval time.Duration `yaml:"mock_frame_interval"`
}

// LogConfig はロガーの設定
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // 開発用の人間向け出力
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Driver:            DriverMock,
			CameraID:          "0",
			Width:             1280,
			Height:            720,
			FPS:               30,
			Surfaces:          []string{"ar-cpu-image", "ar-gpu-texture"},
			OpenTimeout:       5 * time.Second,
			AreaSize:          200,
			AutoFocusOnOpen:   true,
			OpenOnStart:       true,
			MockFrameInterval: 33 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
// デフォルト値 → CONFIG_FILE のYAML → 環境変数 の順に上書きする
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile は path のYAMLを読み込んで設定を作成する（空ならファイルなし）
// 環境変数による上書きも適用する
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	// カメラ設定の検証
	switch c.Camera.Driver {
	case DriverMock, DriverV4L2:
	default:
		errs = append(errs, fmt.Errorf("未対応のカメラドライバー: %q", c.Camera.Driver))
	}
	if c.Camera.CameraID == "" {
		errs = append(errs, errors.New("カメラIDが設定されていません"))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("無効な画像サイズ: %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if len(c.Camera.Surfaces) == 0 {
		errs = append(errs, errors.New("出力先が設定されていません"))
	}
	if c.Camera.OpenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("無効なオープンタイムアウト: %v", c.Camera.OpenTimeout))
	}
	if c.Camera.AreaSize <= 0 {
		errs = append(errs, fmt.Errorf("無効な測光領域サイズ: %d", c.Camera.AreaSize))
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
