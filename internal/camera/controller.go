package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Options はControllerの動作設定
type Options struct {
	OpenTimeout time.Duration // Open が ready を待つ上限
	AreaSize    int           // 測光領域のデフォルトサイズ
	ErrorBuffer int           // エラー通知チャンネルのバッファ数
	Logger      *zap.Logger
}

// DefaultOptions はデフォルトの Options を返す
func DefaultOptions() Options {
	return Options{
		OpenTimeout: 5 * time.Second,
		AreaSize:    DefaultAreaSize,
		ErrorBuffer: 16,
	}
}

// Status はControllerの状態のスナップショット
type Status struct {
	CameraID        string           `json:"camera_id"`
	State           LifecycleState   `json:"state"`
	Flags           ConvergenceFlags `json:"flags"`
	Flash           bool             `json:"flash"`
	Characteristics Characteristics  `json:"characteristics"`
	LastRequest     *CaptureRequest  `json:"last_request,omitempty"`
}

// Controller はARトラッカーと共有するカメラのキャプチャ制御を担う
//
// カメラAPIの呼び出しとドライバーのコールバックはすべて専用の
// コマンドスレッド上で実行される。Open 以外の制御メソッドは
// タスクを積んですぐに戻り、非同期に発生したエラーは Errors に流れる。
type Controller struct {
	driver Driver
	shared SharedCamera
	opts   Options
	logger *zap.Logger

	cameraID string
	chars    Characteristics
	mapper   RegionMapper

	lifecycle *lifecycle
	thread    atomic.Pointer[CommandThread]

	// 以下はコマンドスレッドだけが触る
	builder     *RequestBuilder
	device      Device
	session     CaptureSession
	flags       ConvergenceFlags
	flash       bool
	lastRequest *CaptureRequest
	aborted     bool

	openResult   chan error
	errs         chan error
	closed       atomic.Bool
	shutdownOnce sync.Once
}

// NewController は新しい Controller を作成する
// 能力情報はここで一度だけ取得する
func NewController(driver Driver, shared SharedCamera, opts Options) (*Controller, error) {
	defaults := DefaultOptions()
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaults.OpenTimeout
	}
	if opts.AreaSize <= 0 {
		opts.AreaSize = defaults.AreaSize
	}
	if opts.ErrorBuffer <= 0 {
		opts.ErrorBuffer = defaults.ErrorBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cameraID := shared.CameraID()
	chars, err := driver.Characteristics(cameraID)
	if err != nil {
		return nil, fmt.Errorf("カメラ %s の能力情報の取得に失敗: %w", cameraID, err)
	}

	c := &Controller{
		driver:     driver,
		shared:     shared,
		opts:       opts,
		logger:     opts.Logger.With(zap.String("camera_id", cameraID)),
		cameraID:   cameraID,
		chars:      chars,
		mapper:     NewRegionMapper(shared.ImageSize(), chars),
		openResult: make(chan error, 1),
		errs:       make(chan error, opts.ErrorBuffer),
	}
	c.lifecycle = newLifecycle(c.logger, c.onReady, c.onFailed)

	return c, nil
}

// CameraID はカメラIDを返す
func (c *Controller) CameraID() string {
	return c.cameraID
}

// State は現在のライフサイクル状態を返す
func (c *Controller) State() LifecycleState {
	return c.lifecycle.State()
}

// Errors は非同期処理で発生したエラーの通知チャンネルを返す
// Controller のシャットダウン後にクローズされる
func (c *Controller) Errors() <-chan error {
	return c.errs
}

// Open はカメラを開き、キャプチャセッションが ready になるまで待つ
//
// ready になる前に失敗した場合は確保したリソースを解放し、
// Controller はクローズ済みになる。
func (c *Controller) Open(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.lifecycle.Is(StateReady) {
		return nil
	}
	if err := c.lifecycle.fire(eventOpen); err != nil {
		return fmt.Errorf("カメラ %s は開けない状態です (%s): %w", c.cameraID, c.State(), ErrNotReady)
	}

	thread := NewCommandThread("camera-"+c.cameraID, c.logger, c.report)
	c.thread.Store(thread)

	c.logger.Info("カメラを開いています", zap.Duration("timeout", c.opts.OpenTimeout))
	if err := thread.Post(c.openDevice); err != nil {
		c.abort(err)
		return err
	}

	timer := time.NewTimer(c.opts.OpenTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-c.openResult:
	case <-timer.C:
		err = ErrTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		c.abort(err)
		return fmt.Errorf("カメラ %s のオープンに失敗: %w", c.cameraID, err)
	}

	c.logger.Info("カメラの準備が完了しました")
	return nil
}

// Close はキャプチャセッションとデバイスを閉じ、コマンドスレッドを停止する
// 一部の解放に失敗しても残りの解放は続ける
func (c *Controller) Close(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	thread := c.thread.Load()
	if thread == nil {
		return fmt.Errorf("カメラ %s は開かれていません: %w", c.cameraID, ErrNotReady)
	}
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	defer c.shutdown()

	done := make(chan error, 1)
	if err := thread.Post(func() { done <- c.release(true) }); err != nil {
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("カメラ %s のクローズに失敗: %w", c.cameraID, err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	c.logger.Info("カメラをクローズしました")
	return nil
}

// SetAutoFocus はオートフォーカスの定常状態を設定する
func (c *Controller) SetAutoFocus(enabled bool) error {
	return c.setControl(autoFocusControl, enabled)
}

// ToggleAutoFocus はオートフォーカスの定常状態を反転する
func (c *Controller) ToggleAutoFocus() error {
	return c.toggleControl(autoFocusControl)
}

// AutoFocusOnArea は (x, y) を中心にフォーカスを合わせ、収束後に定常状態へ戻す
func (c *Controller) AutoFocusOnArea(x, y, areaSize int) error {
	return c.onArea(autoFocusControl, x, y, areaSize)
}

// AutoFocusOnCenter は画像中心で AutoFocusOnArea を実行する
func (c *Controller) AutoFocusOnCenter() error {
	x, y := c.mapper.Center()
	return c.onArea(autoFocusControl, x, y, 0)
}

// SetAutoExposure は自動露出の定常状態を設定する
func (c *Controller) SetAutoExposure(enabled bool) error {
	return c.setControl(autoExposureControl, enabled)
}

// ToggleAutoExposure は自動露出の定常状態を反転する
func (c *Controller) ToggleAutoExposure() error {
	return c.toggleControl(autoExposureControl)
}

// AutoExposureOnArea は (x, y) を中心に露出を合わせ、収束後に定常状態へ戻す
func (c *Controller) AutoExposureOnArea(x, y, areaSize int) error {
	return c.onArea(autoExposureControl, x, y, areaSize)
}

// AutoExposureOnCenter は画像中心で AutoExposureOnArea を実行する
func (c *Controller) AutoExposureOnCenter() error {
	x, y := c.mapper.Center()
	return c.onArea(autoExposureControl, x, y, 0)
}

// SetAutoWhiteBalance はオートホワイトバランスの定常状態を設定する
func (c *Controller) SetAutoWhiteBalance(enabled bool) error {
	return c.setControl(autoWhiteBalanceControl, enabled)
}

// ToggleAutoWhiteBalance はオートホワイトバランスの定常状態を反転する
func (c *Controller) ToggleAutoWhiteBalance() error {
	return c.toggleControl(autoWhiteBalanceControl)
}

// AutoWhiteBalanceOnArea は (x, y) を中心にホワイトバランスを合わせ、収束後に定常状態へ戻す
func (c *Controller) AutoWhiteBalanceOnArea(x, y, areaSize int) error {
	return c.onArea(autoWhiteBalanceControl, x, y, areaSize)
}

// AutoWhiteBalanceOnCenter は画像中心で AutoWhiteBalanceOnArea を実行する
func (c *Controller) AutoWhiteBalanceOnCenter() error {
	x, y := c.mapper.Center()
	return c.onArea(autoWhiteBalanceControl, x, y, 0)
}

// SetFlash はトーチの点灯/消灯を設定する
func (c *Controller) SetFlash(enabled bool) error {
	return c.submit("flash", func() error {
		return c.applyFlash(enabled)
	})
}

// ToggleFlash はトーチの状態を反転する
func (c *Controller) ToggleFlash() error {
	return c.submit("flash", func() error {
		return c.applyFlash(!c.flash)
	})
}

// Status はコマンドスレッド上で状態のスナップショットを取得する
func (c *Controller) Status(ctx context.Context) (Status, error) {
	st := Status{
		CameraID:        c.cameraID,
		State:           c.State(),
		Characteristics: c.chars,
	}

	thread := c.thread.Load()
	if thread == nil || thread.Stopped() {
		return st, nil
	}

	done := make(chan struct{})
	err := thread.Post(func() {
		defer close(done)
		st.State = c.State()
		st.Flags = c.flags
		st.Flash = c.flash
		if c.lastRequest != nil {
			req := *c.lastRequest
			st.LastRequest = &req
		}
	})
	if err != nil {
		// 停止と競合した場合はライフサイクル状態だけ返す
		return st, nil
	}

	select {
	case <-done:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (c *Controller) setControl(ctl *control, enabled bool) error {
	return c.submit(ctl.name, func() error {
		return c.applySteady(ctl, enabled)
	})
}

func (c *Controller) toggleControl(ctl *control) error {
	return c.submit(ctl.name, func() error {
		return c.applySteady(ctl, !*ctl.flag(&c.flags))
	})
}

func (c *Controller) onArea(ctl *control, x, y, areaSize int) error {
	return c.submit(ctl.name, func() error {
		return c.meterArea(ctl, x, y, areaSize)
	})
}

// submit は前提条件を同期的に確認してからタスクをコマンドスレッドに積む
func (c *Controller) submit(name string, task func() error) error {
	if c.closed.Load() {
		return fmt.Errorf("%s: %w", name, ErrClosed)
	}
	if !c.lifecycle.Is(StateReady) {
		return fmt.Errorf("%s (状態: %s): %w", name, c.State(), ErrNotReady)
	}

	thread := c.thread.Load()
	if thread == nil {
		return fmt.Errorf("%s: %w", name, ErrNotReady)
	}

	return thread.Post(func() {
		if !c.lifecycle.Is(StateReady) {
			c.report(fmt.Errorf("%s (状態: %s): %w", name, c.State(), ErrNotReady))
			return
		}
		if err := task(); err != nil {
			c.report(fmt.Errorf("%s: %w", name, err))
		}
	})
}

// applySteady は定常状態のリクエストをコールバックなしで送信する
func (c *Controller) applySteady(ctl *control, enabled bool) error {
	c.builder.Update(func(req *CaptureRequest) {
		if ctl.clearRegionsOnSteady && ctl.maxRegions(c.chars) >= 1 {
			ctl.setRegions(req, nil)
		}
		ctl.steady(req, enabled)
	})

	if err := c.setRepeating(nil); err != nil {
		return err
	}
	*ctl.flag(&c.flags) = enabled

	c.logger.Debug("定常状態を送信しました", zap.String("control", ctl.name), zap.Bool("enabled", enabled))
	return nil
}

// meterArea は測光領域を設定し、収束を監視するコールバック付きで送信する
// 能力情報が領域に対応していない場合は領域の設定だけを省く
func (c *Controller) meterArea(ctl *control, x, y, areaSize int) error {
	if areaSize <= 0 {
		areaSize = c.opts.AreaSize
	}

	c.builder.Update(func(req *CaptureRequest) {
		if ctl.maxRegions(c.chars) >= 1 {
			ctl.setRegions(req, []MeteringRegion{c.mapper.Map(x, y, areaSize)})
		}
		ctl.meter(req)
	})

	c.logger.Debug("測光リクエストを送信します",
		zap.String("control", ctl.name),
		zap.Int("x", x),
		zap.Int("y", y),
		zap.Int("area_size", areaSize))

	return c.setRepeating(c.convergenceCallback(ctl))
}

// convergenceCallback は収束を検出したら定常状態へ引き継ぐコールバックを返す
//
// 定常状態の送信でコールバックが置き換わるまで毎フレーム呼ばれうるが、
// 引き継ぎは冪等なので繰り返し実行されても結果は変わらない。
func (c *Controller) convergenceCallback(ctl *control) CaptureCallback {
	return func(res CaptureResult) {
		if !c.lifecycle.Is(StateReady) || !ctl.converged(res) {
			return
		}
		if err := c.applySteady(ctl, *ctl.flag(&c.flags)); err != nil {
			c.report(fmt.Errorf("%s の収束後の引き継ぎに失敗: %w", ctl.name, err))
		}
	}
}

func (c *Controller) applyFlash(enabled bool) error {
	c.builder.Update(func(req *CaptureRequest) {
		if enabled {
			req.Flash = FlashModeTorch
		} else {
			req.Flash = FlashModeOff
		}
	})
	if err := c.setRepeating(nil); err != nil {
		return err
	}
	c.flash = enabled
	return nil
}

// setRepeating は builder の内容で繰り返しリクエストを置き換える
func (c *Controller) setRepeating(cb CaptureCallback) error {
	if c.session == nil || c.builder == nil {
		return ErrNotReady
	}

	req := c.builder.Build()
	if err := c.session.SetRepeatingRequest(req, cb, c.thread.Load()); err != nil {
		if !errors.Is(err, ErrDriverRejected) {
			err = fmt.Errorf("%w: %w", ErrDriverRejected, err)
		}
		return err
	}
	c.lastRequest = &req

	return nil
}

// openDevice はコマンドスレッド上でドライバーにオープンを要求する
func (c *Controller) openDevice() {
	callbacks := c.shared.WrapDeviceCallbacks(DeviceCallbacks{
		OnOpened:       c.onDeviceOpened,
		OnDisconnected: c.onDeviceDisconnected,
		OnError:        c.onDeviceError,
	})

	if err := c.driver.OpenCamera(c.cameraID, callbacks, c.thread.Load()); err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrDeviceFailed, err))
	}
}

func (c *Controller) onDeviceOpened(dev Device) {
	if c.aborted {
		_ = dev.Close()
		return
	}
	c.device = dev

	surfaces := c.shared.TargetSurfaces()
	c.builder = NewRequestBuilder(TemplateRecord, nil)
	for _, s := range surfaces {
		c.builder.AddTarget(s)
	}

	if err := c.lifecycle.fire(eventOpened); err != nil {
		c.logger.Warn("opened イベントを適用できません", zap.Error(err))
		return
	}

	callbacks := c.shared.WrapSessionCallbacks(SessionCallbacks{
		OnConfigured:      c.onSessionConfigured,
		OnConfigureFailed: c.onSessionConfigureFailed,
	})
	if err := dev.CreateCaptureSession(surfaces, callbacks, c.thread.Load()); err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrConfigureFailed, err))
	}
}

// onSessionConfigured はトラッカーが ready 直後からフレームを受け取れるよう
// ベースラインの繰り返しリクエストを送ってから ready に遷移する
func (c *Controller) onSessionConfigured(session CaptureSession) {
	if c.aborted {
		_ = session.Close()
		return
	}
	c.session = session

	if err := c.setRepeating(nil); err != nil {
		c.fail(err)
		return
	}

	if err := c.lifecycle.fire(eventConfigured); err != nil {
		c.logger.Warn("configured イベントを適用できません", zap.Error(err))
	}
}

func (c *Controller) onSessionConfigureFailed(session CaptureSession) {
	c.session = session
	c.fail(fmt.Errorf("カメラ %s: %w", c.cameraID, ErrConfigureFailed))
}

func (c *Controller) onDeviceDisconnected(_ Device) {
	c.fail(fmt.Errorf("%w: デバイスが切断されました", ErrDeviceFailed))
}

func (c *Controller) onDeviceError(_ Device, code int) {
	c.fail(fmt.Errorf("%w: エラーコード %d", ErrDeviceFailed, code))
}

// fail は closed_on_error へ遷移させる。通知は lifecycle の onFailed が行う
func (c *Controller) fail(err error) {
	if ferr := c.lifecycle.fire(eventFail, err); ferr != nil {
		c.logger.Warn("エラーを状態遷移に反映できません",
			zap.Error(err),
			zap.String("state", string(c.State())),
			zap.NamedError("transition_error", ferr))
	}
}

func (c *Controller) onReady() {
	c.resolveOpen(nil)
}

func (c *Controller) onFailed(err error) {
	c.resolveOpen(err)
	c.report(err)
}

func (c *Controller) resolveOpen(err error) {
	select {
	case c.openResult <- err:
	default:
	}
}

// report はエラーをログに出し、通知チャンネルへ流す
// コマンドスレッド上からのみ呼ぶ
func (c *Controller) report(err error) {
	c.logger.Error("カメラ制御でエラーが発生", zap.Error(err))
	select {
	case c.errs <- err:
	default:
		c.logger.Warn("エラー通知チャンネルが満杯のため破棄しました", zap.Error(err))
	}
}

// release はセッションとデバイスを解放する（コマンドスレッド上で実行）
func (c *Controller) release(transition bool) error {
	var errs []error

	if c.session != nil {
		if err := c.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("キャプチャセッションのクローズに失敗: %w", err))
		}
		c.session = nil
	}
	if c.device != nil {
		if err := c.device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("デバイスのクローズに失敗: %w", err))
		}
		c.device = nil
	}

	if transition {
		if err := c.lifecycle.fire(eventClose); err != nil {
			c.logger.Debug("close イベントを適用できません", zap.Error(err))
		}
	}

	return errors.Join(errs...)
}

// abort は ready 前の失敗でリソースを解放し、Controller を停止する
func (c *Controller) abort(cause error) {
	c.closed.Store(true)
	defer c.shutdown()

	thread := c.thread.Load()
	if thread == nil {
		return
	}

	done := make(chan struct{})
	err := thread.Post(func() {
		defer close(done)
		c.aborted = true
		if !c.lifecycle.Is(StateClosedOnError) {
			c.fail(cause)
		}
		if err := c.release(false); err != nil {
			c.logger.Warn("オープン失敗後の解放でエラー", zap.Error(err))
		}
	})
	if err == nil {
		<-done
	}
}

// shutdown はコマンドスレッドを止めてエラー通知チャンネルを閉じる
func (c *Controller) shutdown() {
	c.shutdownOnce.Do(func() {
		if thread := c.thread.Load(); thread != nil {
			thread.Stop()
		}
		close(c.errs)
	})
}
