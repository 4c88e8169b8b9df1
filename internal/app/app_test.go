package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"sharedcam/internal/camera"
	"sharedcam/internal/config"
)

func TestNewDriver(t *testing.T) {
	cfg := config.Default()

	driver, err := NewDriver(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("mock ドライバーの作成に失敗: %v", err)
	}
	if _, ok := driver.(*camera.MockDriver); !ok {
		t.Errorf("mock ドライバーが返されていません: %T", driver)
	}

	ch, err := driver.Characteristics(cfg.Camera.CameraID)
	if err != nil {
		t.Fatalf("能力情報の取得に失敗: %v", err)
	}
	if ch.MaxRegionsAF != 1 || ch.ActiveArraySize == nil {
		t.Errorf("能力情報が不正: %+v", ch)
	}

	cfg.Camera.Driver = "usb"
	if _, err := NewDriver(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("未対応のドライバーでエラーになりません")
	}
}

func TestOpenDefaultCamera(t *testing.T) {
	cfg := config.Default()
	cfg.Camera.MockFrameInterval = 0

	driver, err := NewDriver(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("ドライバーの作成に失敗: %v", err)
	}
	manager := camera.NewDefaultManager(driver, camera.Options{OpenTimeout: time.Second})
	defer manager.CloseAll(context.Background())

	openDefaultCamera(context.Background(), cfg, manager, zap.NewNop())

	sessions := manager.List()
	if len(sessions) != 1 || sessions[0].CameraID != cfg.Camera.CameraID {
		t.Fatalf("設定のカメラが開かれていません: %+v", sessions)
	}

	session, _ := manager.Get(sessions[0].ID)
	st, err := session.Controller().Status(context.Background())
	if err != nil {
		t.Fatalf("状態の取得に失敗: %v", err)
	}
	if !st.Flags.AutoFocus {
		t.Error("auto_focus_on_open が反映されていません")
	}
}

func TestRun(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Log.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run がエラーを返しました: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run の停止がタイムアウトしました")
	}
}
