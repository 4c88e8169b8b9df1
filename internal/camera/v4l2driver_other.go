//go:build !linux || !cgo

package camera

import "go.uber.org/zap"

// NewV4L2Driver はLinux以外では ErrUnsupportedPlatform を返す
func NewV4L2Driver(_ V4L2Config, _ Discovery, _ *zap.Logger) (Driver, error) {
	return nil, ErrUnsupportedPlatform
}
