//go:build linux && cgo

package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"
)

// V4L2Driver はgo4vlでV4L2デバイスを操作するドライバー
//
// カメラIDにはデバイスパス（例: /dev/video0）を使う。
// V4L2は収束状態を報告しないため、キャプチャ結果の状態は常に不明になる。
type V4L2Driver struct {
	cfg       V4L2Config
	discovery Discovery
	logger    *zap.Logger
}

// NewV4L2Driver は新しい V4L2Driver を作成する
func NewV4L2Driver(cfg V4L2Config, discovery Discovery, logger *zap.Logger) (Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if discovery == nil {
		discovery = NewLinuxDiscovery()
	}

	return &V4L2Driver{
		cfg:       cfg,
		discovery: discovery,
		logger:    logger.With(zap.String("driver", "v4l2")),
	}, nil
}

// Characteristics はV4L2デバイスの能力情報を返す
// 測光領域とセンサー配列サイズは報告しない
func (d *V4L2Driver) Characteristics(cameraID string) (Characteristics, error) {
	if !d.discovery.IsDeviceAvailable(context.Background(), cameraID) {
		return Characteristics{}, fmt.Errorf("デバイスが利用できません: %s", cameraID)
	}
	return Characteristics{}, nil
}

// OpenCamera はデバイスを開き、OnOpened を exec 経由で通知する
func (d *V4L2Driver) OpenCamera(cameraID string, callbacks DeviceCallbacks, exec Executor) error {
	dev, err := device.Open(cameraID,
		device.WithIOType(v4l2.IOTypeMMAP),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(d.cfg.Width),
			Height:      uint32(d.cfg.Height),
			Field:       v4l2.FieldNone,
		}),
		device.WithBufferSize(4),
		device.WithFPS(uint32(d.cfg.FPS)),
	)
	if err != nil {
		return fmt.Errorf("デバイス %s のオープンに失敗: %w", cameraID, err)
	}

	d.logger.Info("V4L2デバイスを開きました",
		zap.String("device", cameraID),
		zap.Int("width", d.cfg.Width),
		zap.Int("height", d.cfg.Height),
		zap.Int("fps", d.cfg.FPS))

	vd := &v4l2Device{
		id:     cameraID,
		dev:    dev,
		logger: d.logger,
	}

	return exec.Post(func() {
		if callbacks.OnOpened != nil {
			callbacks.OnOpened(vd)
		}
	})
}

// v4l2Device はオープン済みのV4L2デバイス
type v4l2Device struct {
	id     string
	dev    *device.Device
	logger *zap.Logger
}

func (d *v4l2Device) ID() string {
	return d.id
}

// CreateCaptureSession はストリーミングを開始し、フレームごとに結果を通知する
// V4L2の出力は1系統のみなので outputs は記録だけ行う
func (d *v4l2Device) CreateCaptureSession(outputs []Surface, callbacks SessionCallbacks, exec Executor) error {
	ctx, cancel := context.WithCancel(context.Background())
	s := &v4l2Session{
		device:  d,
		outputs: append([]Surface(nil), outputs...),
		cancel:  cancel,
	}

	if err := d.dev.Start(ctx); err != nil {
		cancel()
		d.logger.Error("ストリーミングの開始に失敗", zap.Error(err))
		return exec.Post(func() {
			if callbacks.OnConfigureFailed != nil {
				callbacks.OnConfigureFailed(s)
			}
		})
	}

	go s.frameLoop(ctx)

	return exec.Post(func() {
		if callbacks.OnConfigured != nil {
			callbacks.OnConfigured(s)
		}
	})
}

func (d *v4l2Device) Close() error {
	if err := d.dev.Close(); err != nil {
		return fmt.Errorf("デバイス %s のクローズに失敗: %w", d.id, err)
	}
	return nil
}

// v4l2Session はストリーミング中のV4L2デバイスに対するセッション
type v4l2Session struct {
	device  *v4l2Device
	outputs []Surface
	cancel  context.CancelFunc

	mu       sync.Mutex
	closed   bool
	request  CaptureRequest
	callback CaptureCallback
	exec     Executor
	frame    int64
}

// SetRepeatingRequest はリクエストをV4L2コントロールとして書き込む
// 一部のコントロールに未対応のデバイスがあるため個別の失敗は無視する
func (s *v4l2Session) SetRepeatingRequest(req CaptureRequest, cb CaptureCallback, exec Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("キャプチャセッションはクローズ済みです")
	}

	for _, ctrl := range v4l2Controls(req) {
		if err := s.device.dev.SetControlValue(ctrl.id, ctrl.value); err != nil {
			s.device.logger.Debug("コントロールの設定をスキップしました",
				zap.String("control", ctrl.name),
				zap.Int32("value", ctrl.value),
				zap.Error(err))
		}
	}

	s.request = req
	s.callback = cb
	s.exec = exec
	return nil
}

func (s *v4l2Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.callback = nil
	s.mu.Unlock()

	s.cancel()
	return nil
}

// frameLoop はデキューしたフレームごとにキャプチャ結果を通知する
func (s *v4l2Session) frameLoop(ctx context.Context) {
	for range s.device.dev.GetOutput() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		cb := s.callback
		exec := s.exec
		s.frame++
		result := CaptureResult{FrameNumber: s.frame, Request: s.request}
		s.mu.Unlock()

		if cb == nil || exec == nil {
			continue
		}
		if err := exec.Post(func() { cb(result) }); err != nil {
			return
		}
	}
}
