package camera

import "errors"

var (
	// ErrNotReady はセッションが ready になる前の操作で返される
	ErrNotReady = errors.New("カメラセッションが準備できていません")

	// ErrClosed はクローズ後の操作で返される
	ErrClosed = errors.New("カメラはクローズ済みです")

	// ErrConfigureFailed はドライバーがセッション構成を拒否した場合に返される
	ErrConfigureFailed = errors.New("キャプチャセッションの構成に失敗")

	// ErrTimeout はオープンが制限時間内に完了しなかった場合に返される
	ErrTimeout = errors.New("カメラのオープンがタイムアウトしました")

	// ErrDriverRejected はドライバーがリクエストを受け付けなかった場合に返される
	ErrDriverRejected = errors.New("ドライバーがリクエストを拒否しました")

	// ErrDeviceFailed はデバイスの切断やエラー通知で返される
	ErrDeviceFailed = errors.New("カメラデバイスでエラーが発生")

	// ErrUnsupportedPlatform は対応していないプラットフォームで返される
	ErrUnsupportedPlatform = errors.New("このプラットフォームではサポートされていません")
)
