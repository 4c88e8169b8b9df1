package camera

import (
	"fmt"
	"sync"
)

// トラッカーが観測するイベント名
const (
	TrackerEventOpened          = "device_opened"
	TrackerEventDisconnected    = "device_disconnected"
	TrackerEventError           = "device_error"
	TrackerEventConfigured      = "session_configured"
	TrackerEventConfigureFailed = "session_configure_failed"
)

// StaticSharedCamera は固定の構成を持つ SharedCamera 実装
//
// ラップしたコールバックはまずトラッカー側の観測（イベント記録）を行い、
// その後で呼び出し側のコールバックに委譲する。
type StaticSharedCamera struct {
	id       string
	size     Size
	surfaces []Surface

	mu     sync.Mutex
	events []string
}

// NewStaticSharedCamera は新しい StaticSharedCamera を作成する
func NewStaticSharedCamera(cameraID string, imageSize Size, surfaces []Surface) *StaticSharedCamera {
	return &StaticSharedCamera{
		id:       cameraID,
		size:     imageSize,
		surfaces: append([]Surface(nil), surfaces...),
	}
}

// CameraID はカメラIDを返す
func (s *StaticSharedCamera) CameraID() string {
	return s.id
}

// ImageSize はARセッションが構成した画像サイズを返す
func (s *StaticSharedCamera) ImageSize() Size {
	return s.size
}

// TargetSurfaces はトラッカーが必要とする出力先を返す
func (s *StaticSharedCamera) TargetSurfaces() []Surface {
	return append([]Surface(nil), s.surfaces...)
}

// WrapDeviceCallbacks はデバイスコールバックをトラッカーの観測で包む
func (s *StaticSharedCamera) WrapDeviceCallbacks(cb DeviceCallbacks) DeviceCallbacks {
	return DeviceCallbacks{
		OnOpened: func(dev Device) {
			s.observe(TrackerEventOpened)
			if cb.OnOpened != nil {
				cb.OnOpened(dev)
			}
		},
		OnDisconnected: func(dev Device) {
			s.observe(TrackerEventDisconnected)
			if cb.OnDisconnected != nil {
				cb.OnDisconnected(dev)
			}
		},
		OnError: func(dev Device, code int) {
			s.observe(fmt.Sprintf("%s:%d", TrackerEventError, code))
			if cb.OnError != nil {
				cb.OnError(dev, code)
			}
		},
	}
}

// WrapSessionCallbacks はセッションコールバックをトラッカーの観測で包む
func (s *StaticSharedCamera) WrapSessionCallbacks(cb SessionCallbacks) SessionCallbacks {
	return SessionCallbacks{
		OnConfigured: func(session CaptureSession) {
			s.observe(TrackerEventConfigured)
			if cb.OnConfigured != nil {
				cb.OnConfigured(session)
			}
		},
		OnConfigureFailed: func(session CaptureSession) {
			s.observe(TrackerEventConfigureFailed)
			if cb.OnConfigureFailed != nil {
				cb.OnConfigureFailed(session)
			}
		},
	}
}

// Events はトラッカーが観測したイベントを順に返す
func (s *StaticSharedCamera) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *StaticSharedCamera) observe(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}
