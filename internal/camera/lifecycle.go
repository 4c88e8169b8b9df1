package camera

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// ライフサイクルのイベント名
const (
	eventOpen       = "open"
	eventOpened     = "opened"
	eventConfigured = "configured"
	eventFail       = "fail"
	eventClose      = "close"
)

// lifecycle はカメラセッションの状態遷移を管理する
// 遷移はドライバーのコールバック（コマンドスレッド）とOpen呼び出しからのみ起きる
type lifecycle struct {
	fsm    *fsm.FSM
	logger *zap.Logger
}

// newLifecycle は closed 状態から始まる lifecycle を作成する
// onReady は ready に入ったとき、onFailed は closed_on_error に入ったときに呼ばれる
func newLifecycle(logger *zap.Logger, onReady func(), onFailed func(err error)) *lifecycle {
	l := &lifecycle{logger: logger}

	l.fsm = fsm.NewFSM(
		string(StateClosed),
		fsm.Events{
			{Name: eventOpen, Src: []string{string(StateClosed)}, Dst: string(StateOpening)},
			{Name: eventOpened, Src: []string{string(StateOpening)}, Dst: string(StateConfiguring)},
			{Name: eventConfigured, Src: []string{string(StateConfiguring)}, Dst: string(StateReady)},
			{
				Name: eventFail,
				Src:  []string{string(StateOpening), string(StateConfiguring), string(StateReady)},
				Dst:  string(StateClosedOnError),
			},
			{
				Name: eventClose,
				Src: []string{
					string(StateOpening), string(StateConfiguring),
					string(StateReady), string(StateClosedOnError),
				},
				Dst: string(StateClosed),
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				l.logger.Info("カメラの状態が遷移しました",
					zap.String("event", e.Event),
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
			},
			"enter_" + string(StateReady): func(_ context.Context, _ *fsm.Event) {
				if onReady != nil {
					onReady()
				}
			},
			"enter_" + string(StateClosedOnError): func(_ context.Context, e *fsm.Event) {
				if onFailed == nil {
					return
				}
				err := ErrDeviceFailed
				if len(e.Args) > 0 {
					if argErr, ok := e.Args[0].(error); ok {
						err = argErr
					}
				}
				onFailed(err)
			},
		},
	)

	return l
}

// fire はイベントを発火する。遷移元と遷移先が同じ場合はエラーにしない
func (l *lifecycle) fire(event string, args ...any) error {
	err := l.fsm.Event(context.Background(), event, args...)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

// State は現在の状態を返す
func (l *lifecycle) State() LifecycleState {
	return LifecycleState(l.fsm.Current())
}

// Is は現在の状態が s かどうかを返す
func (l *lifecycle) Is(s LifecycleState) bool {
	return l.fsm.Is(string(s))
}
