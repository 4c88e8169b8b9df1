// Package app は設定からロガー・ドライバー・マネージャー・HTTPサーバーを組み立てて起動する
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sharedcam/internal/camera"
	"sharedcam/internal/config"
	"sharedcam/internal/logging"
	"sharedcam/internal/server"
)

// mockCharacteristics はモックドライバーが報告する能力情報
var mockCharacteristics = camera.Characteristics{
	ActiveArraySize:   &camera.Size{Width: 4000, Height: 3000},
	MaxRegionsAF:      1,
	MaxRegionsAE:      1,
	MaxRegionsAWB:     1,
	MaxMeteringWeight: camera.MeteringWeightMax,
}

// Run はサーバーを起動し、ctx のキャンセルかシグナルで停止するまでブロックする
func Run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	driver, err := NewDriver(ctx, cfg, logger)
	if err != nil {
		return err
	}

	manager := camera.NewDefaultManager(driver, camera.Options{
		OpenTimeout: cfg.Camera.OpenTimeout,
		AreaSize:    cfg.Camera.AreaSize,
		Logger:      logger,
	})

	if cfg.Camera.OpenOnStart {
		openDefaultCamera(ctx, cfg, manager, logger)
	}

	srv := server.New(cfg, manager, logger)
	logger.Info("サーバーを起動します",
		zap.String("addr", cfg.ServerAddress()),
		zap.String("driver", cfg.Camera.Driver),
		zap.String("camera_id", cfg.Camera.CameraID))

	return srv.Start(ctx)
}

// NewDriver は設定に応じたカメラドライバーを作成する
// v4l2 ではデバイスパスをカメラIDとして使うため cfg.Camera.CameraID を書き換える
func NewDriver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (camera.Driver, error) {
	switch cfg.Camera.Driver {
	case config.DriverMock:
		driver := camera.NewMockDriver(mockCharacteristics)
		driver.SetFrameInterval(cfg.Camera.MockFrameInterval)
		return driver, nil

	case config.DriverV4L2:
		discovery := camera.NewLinuxDiscovery()
		device := cfg.Camera.Device
		if device == "" {
			found, err := camera.FirstDevice(ctx, discovery)
			if err != nil {
				return nil, fmt.Errorf("カメラデバイスの検出に失敗: %w", err)
			}
			device = found
		}
		cfg.Camera.CameraID = device

		return camera.NewV4L2Driver(camera.V4L2Config{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		}, discovery, logger)

	default:
		return nil, fmt.Errorf("未対応のカメラドライバー: %q", cfg.Camera.Driver)
	}
}

// openDefaultCamera は設定のカメラでセッションを開く。失敗しても起動は続ける
func openDefaultCamera(ctx context.Context, cfg *config.Config, manager camera.Manager, logger *zap.Logger) {
	surfaces := make([]camera.Surface, 0, len(cfg.Camera.Surfaces))
	for _, s := range cfg.Camera.Surfaces {
		surfaces = append(surfaces, camera.Surface(s))
	}
	shared := camera.NewStaticSharedCamera(cfg.Camera.CameraID, camera.Size{
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}, surfaces)

	session, err := manager.Open(ctx, shared, cfg.Camera.AutoFocusOnOpen)
	if err != nil {
		logger.Warn("起動時のカメラオープンに失敗しました", zap.Error(err))
		return
	}
	logger.Info("起動時にカメラを開きました", zap.String("session_id", session.ID))
}
