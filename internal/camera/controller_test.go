package camera

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

var testSurfaces = []Surface{"ar-cpu-image", "ar-gpu-texture"}

// fullCharacteristics は全制御で測光領域を1つ使える能力情報
func fullCharacteristics() Characteristics {
	return Characteristics{
		ActiveArraySize:   &Size{Width: 4000, Height: 3000},
		MaxRegionsAF:      1,
		MaxRegionsAE:      1,
		MaxRegionsAWB:     1,
		MaxMeteringWeight: 1000,
	}
}

func newTestController(t *testing.T, driver *MockDriver, timeout time.Duration) (*Controller, *StaticSharedCamera) {
	t.Helper()

	shared := NewStaticSharedCamera("0", Size{Width: 1920, Height: 1080}, testSurfaces)
	ctrl, err := NewController(driver, shared, Options{OpenTimeout: timeout})
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return ctrl, shared
}

// openTestController は ready まで開いた Controller を返す
func openTestController(t *testing.T, ch Characteristics) (*Controller, *MockDriver, *StaticSharedCamera) {
	t.Helper()

	driver := NewMockDriver(ch)
	ctrl, shared := newTestController(t, driver, time.Second)

	if err := ctrl.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = ctrl.Close(context.Background())
	})

	return ctrl, driver, shared
}

// barrier はコマンドスレッドに積まれたタスクが処理されるまで待つ
func barrier(t *testing.T, ctrl *Controller) Status {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	st, err := ctrl.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	return st
}

func lastRequest(t *testing.T, driver *MockDriver) CaptureRequest {
	t.Helper()

	session := driver.LastSession()
	if session == nil {
		t.Fatal("No capture session was created")
	}
	req, ok := session.LastRequest()
	if !ok {
		t.Fatal("No repeating request was submitted")
	}
	return req
}

func waitError(t *testing.T, ctrl *Controller) error {
	t.Helper()

	select {
	case err := <-ctrl.Errors():
		return err
	case <-time.After(time.Second):
		t.Fatal("Expected an error on the error channel")
		return nil
	}
}

func TestController_OpenInstallsBaseline(t *testing.T) {
	ctrl, driver, shared := openTestController(t, fullCharacteristics())

	if ctrl.State() != StateReady {
		t.Fatalf("Expected ready, got %s", ctrl.State())
	}

	session := driver.LastSession()
	if !reflect.DeepEqual(session.Outputs(), testSurfaces) {
		t.Errorf("Expected session outputs %v, got %v", testSurfaces, session.Outputs())
	}

	req := lastRequest(t, driver)
	if !reflect.DeepEqual(req.Targets, testSurfaces) {
		t.Errorf("Expected baseline targets %v, got %v", testSurfaces, req.Targets)
	}
	if req.Template != TemplateRecord {
		t.Errorf("Expected record template, got %s", req.Template)
	}
	if session.HasCallback() {
		t.Error("Expected baseline request without callback")
	}

	// トラッカーがコントローラーより先に観測している
	want := []string{TrackerEventOpened, TrackerEventConfigured}
	if got := shared.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected tracker events %v, got %v", want, got)
	}

	st := barrier(t, ctrl)
	if st.LastRequest == nil || !reflect.DeepEqual(st.LastRequest.Targets, testSurfaces) {
		t.Errorf("Expected status to report last request, got %+v", st.LastRequest)
	}
}

func TestController_OpenTwiceIsNoop(t *testing.T) {
	ctrl, _, _ := openTestController(t, fullCharacteristics())

	if err := ctrl.Open(context.Background()); err != nil {
		t.Errorf("Expected second Open on ready controller to succeed, got %v", err)
	}
}

func TestController_OpenTimeout(t *testing.T) {
	testCases := []struct {
		name        string
		setup       func(d *MockDriver)
		deviceOpen  bool
		wantTracker []string
	}{
		{
			name:  "デバイスが開かない",
			setup: func(d *MockDriver) { d.SetNeverOpen(true) },
		},
		{
			name:        "セッションが構成されない",
			setup:       func(d *MockDriver) { d.SetNeverConfigure(true) },
			deviceOpen:  true,
			wantTracker: []string{TrackerEventOpened},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			driver := NewMockDriver(fullCharacteristics())
			tc.setup(driver)
			ctrl, shared := newTestController(t, driver, 50*time.Millisecond)

			start := time.Now()
			err := ctrl.Open(context.Background())
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("Expected ErrTimeout, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("Open took too long: %v", elapsed)
			}

			if ctrl.State() != StateClosedOnError {
				t.Errorf("Expected closed_on_error, got %s", ctrl.State())
			}
			if !reflect.DeepEqual(shared.Events(), tc.wantTracker) {
				t.Errorf("Expected tracker events %v, got %v", tc.wantTracker, shared.Events())
			}

			dev := driver.LastDevice()
			if dev == nil {
				t.Fatal("Expected driver to be asked to open a device")
			}
			if tc.deviceOpen && !dev.Closed() {
				t.Error("Expected opened device to be closed after timeout")
			}

			// 失敗後は使えない
			if err := ctrl.SetAutoFocus(true); !errors.Is(err, ErrClosed) {
				t.Errorf("Expected ErrClosed after failed open, got %v", err)
			}
			if err := ctrl.Close(context.Background()); !errors.Is(err, ErrClosed) {
				t.Errorf("Expected ErrClosed from Close after failed open, got %v", err)
			}
		})
	}
}

func TestController_OpenContextCanceled(t *testing.T) {
	driver := NewMockDriver(fullCharacteristics())
	driver.SetNeverOpen(true)
	ctrl, _ := newTestController(t, driver, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := ctrl.Open(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context deadline error, got %v", err)
	}
	if ctrl.State() != StateClosedOnError {
		t.Errorf("Expected closed_on_error, got %s", ctrl.State())
	}
}

func TestController_OpenConfigureFailed(t *testing.T) {
	driver := NewMockDriver(fullCharacteristics())
	driver.SetFailConfigure(true)
	ctrl, shared := newTestController(t, driver, time.Second)

	err := ctrl.Open(context.Background())
	if !errors.Is(err, ErrConfigureFailed) {
		t.Fatalf("Expected ErrConfigureFailed, got %v", err)
	}
	if ctrl.State() != StateClosedOnError {
		t.Errorf("Expected closed_on_error, got %s", ctrl.State())
	}

	want := []string{TrackerEventOpened, TrackerEventConfigureFailed}
	if got := shared.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected tracker events %v, got %v", want, got)
	}
	if !driver.LastDevice().Closed() {
		t.Error("Expected device to be released")
	}
	if !driver.LastSession().Closed() {
		t.Error("Expected failed session to be released")
	}

	// エラーは通知チャンネルにも流れ、その後チャンネルは閉じられる
	var got []error
	for err := range ctrl.Errors() {
		got = append(got, err)
	}
	if len(got) != 1 || !errors.Is(got[0], ErrConfigureFailed) {
		t.Errorf("Expected one ErrConfigureFailed on error channel, got %v", got)
	}
}

func TestController_OpenDriverError(t *testing.T) {
	driver := NewMockDriver(fullCharacteristics())
	driver.SetOpenError(errors.New("permission denied"))
	ctrl, _ := newTestController(t, driver, time.Second)

	err := ctrl.Open(context.Background())
	if !errors.Is(err, ErrDeviceFailed) {
		t.Fatalf("Expected ErrDeviceFailed, got %v", err)
	}
	if ctrl.State() != StateClosedOnError {
		t.Errorf("Expected closed_on_error, got %s", ctrl.State())
	}
}

func TestNewController_CharacteristicsError(t *testing.T) {
	driver := NewMockDriver(Characteristics{})
	driver.SetCharacteristicsError(errors.New("unknown camera"))

	shared := NewStaticSharedCamera("9", Size{Width: 640, Height: 480}, testSurfaces)
	if _, err := NewController(driver, shared, Options{}); err == nil {
		t.Error("Expected error when characteristics cannot be read")
	}
}

func TestController_ControlsBeforeOpen(t *testing.T) {
	driver := NewMockDriver(fullCharacteristics())
	ctrl, _ := newTestController(t, driver, time.Second)

	calls := map[string]func() error{
		"SetAutoFocus":           func() error { return ctrl.SetAutoFocus(true) },
		"ToggleAutoExposure":     func() error { return ctrl.ToggleAutoExposure() },
		"AutoWhiteBalanceOnArea": func() error { return ctrl.AutoWhiteBalanceOnArea(10, 10, 0) },
		"AutoFocusOnCenter":      func() error { return ctrl.AutoFocusOnCenter() },
		"ToggleFlash":            func() error { return ctrl.ToggleFlash() },
	}

	for name, call := range calls {
		if err := call(); !errors.Is(err, ErrNotReady) {
			t.Errorf("%s: expected ErrNotReady, got %v", name, err)
		}
	}

	if err := ctrl.Close(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady from Close before Open, got %v", err)
	}
}

func TestController_Close(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	if err := ctrl.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ctrl.State() != StateClosed {
		t.Errorf("Expected closed, got %s", ctrl.State())
	}
	if !driver.LastSession().Closed() || !driver.LastDevice().Closed() {
		t.Error("Expected session and device to be closed")
	}

	if err := ctrl.Close(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on second Close, got %v", err)
	}
	if err := ctrl.ToggleFlash(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
	if err := ctrl.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed on reopen, got %v", err)
	}

	if _, ok := <-ctrl.Errors(); ok {
		t.Error("Expected error channel to be closed")
	}
}

func TestController_CloseReleasesAllOnError(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	sessionErr := errors.New("session close failed")
	deviceErr := errors.New("device close failed")
	driver.SetCloseErrors(sessionErr, deviceErr)

	err := ctrl.Close(context.Background())
	if !errors.Is(err, sessionErr) || !errors.Is(err, deviceErr) {
		t.Fatalf("Expected both close errors, got %v", err)
	}

	// セッションの失敗があってもデバイスは閉じる
	if !driver.LastDevice().Closed() {
		t.Error("Expected device to be closed despite session close error")
	}
	if ctrl.State() != StateClosed {
		t.Errorf("Expected closed, got %s", ctrl.State())
	}
}

func TestController_AutoFocusDisableIsIdempotent(t *testing.T) {
	ctrlA, driverA, _ := openTestController(t, fullCharacteristics())
	if err := ctrlA.SetAutoFocus(true); err != nil {
		t.Fatalf("SetAutoFocus(true) failed: %v", err)
	}
	if err := ctrlA.SetAutoFocus(false); err != nil {
		t.Fatalf("SetAutoFocus(false) failed: %v", err)
	}
	barrier(t, ctrlA)

	ctrlB, driverB, _ := openTestController(t, fullCharacteristics())
	if err := ctrlB.SetAutoFocus(false); err != nil {
		t.Fatalf("SetAutoFocus(false) failed: %v", err)
	}
	barrier(t, ctrlB)

	reqA := lastRequest(t, driverA)
	reqB := lastRequest(t, driverB)
	if !reflect.DeepEqual(reqA, reqB) {
		t.Errorf("Expected identical requests, got\n%+v\n%+v", reqA, reqB)
	}
}

func TestController_SteadyStates(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	// 無効化
	_ = ctrl.SetAutoFocus(false)
	_ = ctrl.SetAutoExposure(false)
	_ = ctrl.SetAutoWhiteBalance(false)
	st := barrier(t, ctrl)

	req := lastRequest(t, driver)
	if req.AFMode != AFModeMacro || req.AFTrigger != AFTriggerIdle {
		t.Errorf("Expected AF macro/idle when disabled, got mode=%d trigger=%d", req.AFMode, req.AFTrigger)
	}
	if req.AEMode != AEModeOn || !req.AELock {
		t.Errorf("Expected AE on and locked when disabled, got mode=%d lock=%v", req.AEMode, req.AELock)
	}
	if req.AWBMode != AWBModeAuto || !req.AWBLock {
		t.Errorf("Expected AWB auto and locked when disabled, got mode=%d lock=%v", req.AWBMode, req.AWBLock)
	}
	if st.Flags != (ConvergenceFlags{}) {
		t.Errorf("Expected all flags false, got %+v", st.Flags)
	}

	// 有効化
	_ = ctrl.SetAutoFocus(true)
	_ = ctrl.SetAutoExposure(true)
	_ = ctrl.SetAutoWhiteBalance(true)
	st = barrier(t, ctrl)

	req = lastRequest(t, driver)
	if req.AFMode != AFModeAuto {
		t.Errorf("Expected AF auto when enabled, got %d", req.AFMode)
	}
	if req.AELock || req.AWBLock {
		t.Errorf("Expected AE/AWB unlocked when enabled, got ae=%v awb=%v", req.AELock, req.AWBLock)
	}
	want := ConvergenceFlags{AutoFocus: true, AutoExposure: true, AutoWhiteBalance: true}
	if st.Flags != want {
		t.Errorf("Expected flags %+v, got %+v", want, st.Flags)
	}
	if driver.LastSession().HasCallback() {
		t.Error("Expected steady requests without callback")
	}
}

func TestController_Toggle(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	_ = ctrl.ToggleAutoWhiteBalance()
	st := barrier(t, ctrl)
	if !st.Flags.AutoWhiteBalance {
		t.Error("Expected AWB flag to flip to true")
	}
	if lastRequest(t, driver).AWBLock {
		t.Error("Expected AWB unlocked after enabling")
	}

	_ = ctrl.ToggleAutoWhiteBalance()
	st = barrier(t, ctrl)
	if st.Flags.AutoWhiteBalance {
		t.Error("Expected AWB flag to flip back to false")
	}

	_ = ctrl.ToggleAutoFocus()
	_ = ctrl.ToggleAutoExposure()
	st = barrier(t, ctrl)
	if !st.Flags.AutoFocus || !st.Flags.AutoExposure {
		t.Errorf("Expected AF and AE flags true, got %+v", st.Flags)
	}
}

func TestController_Flash(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	_ = ctrl.ToggleFlash()
	st := barrier(t, ctrl)
	if !st.Flash || lastRequest(t, driver).Flash != FlashModeTorch {
		t.Error("Expected torch on after first toggle")
	}

	_ = ctrl.ToggleFlash()
	st = barrier(t, ctrl)
	if st.Flash || lastRequest(t, driver).Flash != FlashModeOff {
		t.Error("Expected torch off after second toggle")
	}

	_ = ctrl.SetFlash(true)
	barrier(t, ctrl)
	if lastRequest(t, driver).Flash != FlashModeTorch {
		t.Error("Expected torch on after SetFlash(true)")
	}
}

func TestController_AutoFocusOnArea(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	if err := ctrl.AutoFocusOnArea(960, 540, 200); err != nil {
		t.Fatalf("AutoFocusOnArea failed: %v", err)
	}
	barrier(t, ctrl)

	req := lastRequest(t, driver)
	want := []MeteringRegion{{X: 1900, Y: 1400, Width: 200, Height: 200, Weight: 999}}
	if !reflect.DeepEqual(req.AFRegions, want) {
		t.Errorf("Expected AF regions %v, got %v", want, req.AFRegions)
	}
	if req.AFMode != AFModeMacro || req.AFTrigger != AFTriggerStart {
		t.Errorf("Expected AF macro/start while metering, got mode=%d trigger=%d", req.AFMode, req.AFTrigger)
	}
	if !driver.LastSession().HasCallback() {
		t.Error("Expected metering request with convergence callback")
	}
}

func TestController_OnAreaDefaultSize(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	_ = ctrl.AutoExposureOnCenter()
	barrier(t, ctrl)

	req := lastRequest(t, driver)
	if len(req.AERegions) != 1 {
		t.Fatalf("Expected one AE region, got %v", req.AERegions)
	}
	r := req.AERegions[0]
	if r.Width != DefaultAreaSize || r.X != 1900 || r.Y != 1400 {
		t.Errorf("Expected default-sized centered region, got %+v", r)
	}
}

func TestController_OnAreaWithoutRegionSupport(t *testing.T) {
	ctrl, driver, _ := openTestController(t, Characteristics{
		ActiveArraySize: &Size{Width: 4000, Height: 3000},
	})

	_ = ctrl.AutoExposureOnArea(100, 100, 200)
	barrier(t, ctrl)

	req := lastRequest(t, driver)
	if req.AERegions != nil {
		t.Errorf("Expected no AE regions without capability, got %v", req.AERegions)
	}
	if req.AEMode != AEModeOn || req.AELock {
		t.Errorf("Expected AE on and unlocked while metering, got mode=%d lock=%v", req.AEMode, req.AELock)
	}
	if !driver.LastSession().HasCallback() {
		t.Error("Expected metering request with convergence callback")
	}

	select {
	case err := <-ctrl.Errors():
		t.Errorf("Unexpected error: %v", err)
	default:
	}
}

func TestController_ConvergenceHandoff(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())
	session := driver.LastSession()

	_ = ctrl.AutoExposureOnArea(960, 540, 200)
	barrier(t, ctrl)

	// 未収束のフレームでは引き継がない
	if err := session.EmitFrame(CaptureResult{AEState: AEStateSearching}); err != nil {
		t.Fatalf("EmitFrame failed: %v", err)
	}
	barrier(t, ctrl)

	if !session.HasCallback() {
		t.Fatal("Expected convergence callback to stay installed")
	}
	if req := lastRequest(t, driver); len(req.AERegions) != 1 || req.AELock {
		t.Errorf("Expected metering request to remain, got %+v", req)
	}

	// 収束したら定常状態へ引き継ぐ（フラグ false なのでロックされる）
	if err := session.EmitFrame(CaptureResult{AEState: AEStateConverged}); err != nil {
		t.Fatalf("EmitFrame failed: %v", err)
	}
	barrier(t, ctrl)

	if session.HasCallback() {
		t.Error("Expected callback to be removed after handoff")
	}
	req := lastRequest(t, driver)
	if req.AERegions != nil {
		t.Errorf("Expected AE regions to be cleared, got %v", req.AERegions)
	}
	if !req.AELock {
		t.Error("Expected AE locked in steady state with flag false")
	}
}

func TestController_ConvergenceUsesCurrentFlag(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())
	session := driver.LastSession()

	_ = ctrl.SetAutoFocus(true)
	_ = ctrl.AutoFocusOnCenter()
	barrier(t, ctrl)

	_ = session.EmitFrame(CaptureResult{AFState: AFStateFocusedLocked})
	barrier(t, ctrl)

	req := lastRequest(t, driver)
	if req.AFMode != AFModeAuto {
		t.Errorf("Expected AF auto after handoff with flag true, got %d", req.AFMode)
	}
	if req.AFRegions != nil {
		t.Errorf("Expected AF regions cleared, got %v", req.AFRegions)
	}
}

func TestController_AutoFocusConvergence(t *testing.T) {
	testCases := []struct {
		name    string
		state   AFState
		handoff bool
	}{
		{name: "状態不明", state: AFStateUnknown, handoff: true},
		{name: "合焦ロック", state: AFStateFocusedLocked, handoff: true},
		{name: "非合焦ロック", state: AFStateNotFocusedLocked, handoff: true},
		{name: "スキャン中", state: AFStateActiveScan, handoff: false},
		{name: "パッシブスキャン", state: AFStatePassiveScan, handoff: false},
		{name: "非アクティブ", state: AFStateInactive, handoff: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, driver, _ := openTestController(t, fullCharacteristics())
			session := driver.LastSession()

			_ = ctrl.AutoFocusOnCenter()
			barrier(t, ctrl)

			_ = session.EmitFrame(CaptureResult{AFState: tc.state})
			barrier(t, ctrl)

			if session.HasCallback() == tc.handoff {
				t.Errorf("Expected handoff=%v, callback still installed=%v", tc.handoff, session.HasCallback())
			}
			if tc.handoff {
				req := lastRequest(t, driver)
				if req.AFMode != AFModeMacro || req.AFTrigger != AFTriggerIdle {
					t.Errorf("Expected AF disabled steady state, got mode=%d trigger=%d", req.AFMode, req.AFTrigger)
				}
			}
		})
	}
}

func TestController_AutoWhiteBalanceKeepsRegions(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())
	session := driver.LastSession()

	_ = ctrl.AutoWhiteBalanceOnArea(960, 540, 100)
	barrier(t, ctrl)

	_ = session.EmitFrame(CaptureResult{AWBState: AWBStateConverged})
	barrier(t, ctrl)

	if session.HasCallback() {
		t.Error("Expected handoff after AWB convergence")
	}
	req := lastRequest(t, driver)
	if len(req.AWBRegions) != 1 {
		t.Errorf("Expected AWB region to be kept in steady state, got %v", req.AWBRegions)
	}
	if !req.AWBLock {
		t.Error("Expected AWB locked with flag false")
	}
}

func TestController_RepeatedHandoffIsIdempotent(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())
	session := driver.LastSession()

	_ = ctrl.AutoExposureOnCenter()
	barrier(t, ctrl)

	// 定常状態に置き換わる前に複数フレームが届く
	block := make(chan struct{})
	if err := ctrl.thread.Load().Post(func() { <-block }); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	_ = session.EmitFrame(CaptureResult{AEState: AEStateConverged})
	_ = session.EmitFrame(CaptureResult{AEState: AEStateConverged})
	close(block)
	barrier(t, ctrl)

	requests := session.Requests()
	if len(requests) < 2 {
		t.Fatalf("Expected at least two requests, got %d", len(requests))
	}
	last := requests[len(requests)-1]
	prev := requests[len(requests)-2]
	if !reflect.DeepEqual(last, prev) {
		t.Errorf("Expected repeated handoff to produce identical requests\n%+v\n%+v", prev, last)
	}
}

func TestController_DriverRejection(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	driver.SetRejectRequests(errors.New("invalid key"))
	if err := ctrl.SetFlash(true); err != nil {
		t.Fatalf("Expected asynchronous submission to succeed, got %v", err)
	}

	err := waitError(t, ctrl)
	if !errors.Is(err, ErrDriverRejected) {
		t.Errorf("Expected ErrDriverRejected, got %v", err)
	}

	st := barrier(t, ctrl)
	if st.State != StateReady {
		t.Errorf("Expected controller to stay ready, got %s", st.State)
	}
	if st.Flags.AutoFocus {
		t.Error("Expected flags unchanged")
	}

	// 他の制御は引き続き使える
	driver.SetRejectRequests(nil)
	_ = ctrl.SetAutoFocus(true)
	st = barrier(t, ctrl)
	if !st.Flags.AutoFocus {
		t.Error("Expected AF flag to be set after rejection cleared")
	}
}

func TestController_RejectedFlagNotUpdated(t *testing.T) {
	ctrl, driver, _ := openTestController(t, fullCharacteristics())

	driver.SetRejectRequests(errors.New("busy"))
	_ = ctrl.SetAutoExposure(true)
	_ = waitError(t, ctrl)

	st := barrier(t, ctrl)
	if st.Flags.AutoExposure {
		t.Error("Expected AE flag to stay false when request was rejected")
	}
}

func TestController_DeviceDisconnected(t *testing.T) {
	ctrl, driver, shared := openTestController(t, fullCharacteristics())

	if err := driver.LastDevice().Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	err := waitError(t, ctrl)
	if !errors.Is(err, ErrDeviceFailed) {
		t.Errorf("Expected ErrDeviceFailed, got %v", err)
	}
	if ctrl.State() != StateClosedOnError {
		t.Errorf("Expected closed_on_error, got %s", ctrl.State())
	}

	events := shared.Events()
	if events[len(events)-1] != TrackerEventDisconnected {
		t.Errorf("Expected tracker to observe disconnect, got %v", events)
	}

	if err := ctrl.ToggleFlash(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady after disconnect, got %v", err)
	}

	if err := ctrl.Close(context.Background()); err != nil {
		t.Errorf("Close after disconnect failed: %v", err)
	}
	if ctrl.State() != StateClosed {
		t.Errorf("Expected closed, got %s", ctrl.State())
	}
	if !driver.LastDevice().Closed() {
		t.Error("Expected device to be closed")
	}
}

func TestController_DeviceError(t *testing.T) {
	ctrl, driver, shared := openTestController(t, fullCharacteristics())

	_ = driver.LastDevice().Fail(3)

	err := waitError(t, ctrl)
	if !errors.Is(err, ErrDeviceFailed) {
		t.Errorf("Expected ErrDeviceFailed, got %v", err)
	}

	events := shared.Events()
	if events[len(events)-1] != TrackerEventError+":3" {
		t.Errorf("Expected tracker to observe device error, got %v", events)
	}
}

func TestController_SensorFallback(t *testing.T) {
	ctrl, driver, _ := openTestController(t, Characteristics{MaxRegionsAF: 1})

	_ = ctrl.AutoFocusOnArea(960, 540, 200)
	barrier(t, ctrl)

	req := lastRequest(t, driver)
	if len(req.AFRegions) != 1 {
		t.Fatalf("Expected one AF region, got %v", req.AFRegions)
	}
	if r := req.AFRegions[0]; r.X != 860 || r.Y != 440 {
		t.Errorf("Expected image-space region origin (860, 440), got (%d, %d)", r.X, r.Y)
	}
}
