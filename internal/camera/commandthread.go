package camera

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CommandThread はカメラAPI呼び出しとドライバーコールバックを
// 1つのゴルーチンに直列化する
type CommandThread struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wakeCh  chan struct{}

	// タスク内のpanicの通知先
	onPanic func(err error)

	wg sync.WaitGroup
}

// NewCommandThread は新しい CommandThread を作成して開始する
// onPanic はタスク内のpanicを受け取る（nil可）
func NewCommandThread(name string, logger *zap.Logger, onPanic func(err error)) *CommandThread {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &CommandThread{
		name:    name,
		logger:  logger,
		wakeCh:  make(chan struct{}, 1),
		onPanic: onPanic,
	}

	t.wg.Add(1)
	go t.loop()

	return t
}

// Post はタスクをキューに積む。停止後は ErrClosed を返す
func (t *CommandThread) Post(task func()) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return fmt.Errorf("コマンドスレッド %s: %w", t.name, ErrClosed)
	}
	t.queue = append(t.queue, task)
	t.mu.Unlock()

	t.wake()
	return nil
}

// Stop は新規タスクの受付を止め、積まれたタスクを処理し終えてから終了する
// コマンドスレッド上のタスクから呼んではならない
func (t *CommandThread) Stop() {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()

	if !already {
		t.wake()
	}
	t.wg.Wait()
}

// Stopped は停止済みかどうかを返す
func (t *CommandThread) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *CommandThread) wake() {
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

// loop はキューを先頭から処理する
func (t *CommandThread) loop() {
	defer t.wg.Done()

	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			if t.stopped {
				t.mu.Unlock()
				t.logger.Debug("コマンドスレッドを終了しました", zap.String("thread", t.name))
				return
			}
			t.mu.Unlock()
			<-t.wakeCh
			continue
		}
		task := t.queue[0]
		t.queue[0] = nil
		t.queue = t.queue[1:]
		t.mu.Unlock()

		t.run(task)
	}
}

func (t *CommandThread) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("コマンドスレッド %s でpanic: %v", t.name, r)
			t.logger.Error("タスクの実行中にpanicが発生", zap.String("thread", t.name), zap.Any("panic", r))
			if t.onPanic != nil {
				t.onPanic(err)
			}
		}
	}()
	task()
}
