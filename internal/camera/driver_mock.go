package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// MockDriver はテストとモックバックエンド用のインメモリドライバー
type MockDriver struct {
	mu sync.Mutex

	defaultChars    Characteristics
	characteristics map[string]Characteristics

	// テスト制御用
	charsErr        error
	openErr         error
	neverOpen       bool
	failConfigure   bool
	neverConfigure  bool
	rejectErr       error
	sessionCloseErr error
	deviceCloseErr  error

	// フレーム自動生成の間隔（0なら生成しない）
	frameInterval time.Duration

	devices  []*MockDevice
	sessions []*MockSession
}

// NewMockDriver は全カメラ共通の能力情報を持つ MockDriver を作成する
func NewMockDriver(ch Characteristics) *MockDriver {
	return &MockDriver{
		defaultChars:    ch,
		characteristics: make(map[string]Characteristics),
	}
}

// Characteristics は登録された能力情報を返す
func (d *MockDriver) Characteristics(cameraID string) (Characteristics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.charsErr != nil {
		return Characteristics{}, d.charsErr
	}
	if ch, ok := d.characteristics[cameraID]; ok {
		return ch, nil
	}
	return d.defaultChars, nil
}

// OpenCamera はモックデバイスを作成し、OnOpened を exec 経由で通知する
func (d *MockDriver) OpenCamera(cameraID string, callbacks DeviceCallbacks, exec Executor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return d.openErr
	}

	dev := &MockDevice{
		id:        cameraID,
		driver:    d,
		callbacks: callbacks,
		exec:      exec,
	}
	d.devices = append(d.devices, dev)

	if d.neverOpen {
		return nil
	}
	return exec.Post(func() {
		if callbacks.OnOpened != nil {
			callbacks.OnOpened(dev)
		}
	})
}

// SetCharacteristics はカメラ個別の能力情報を登録する
func (d *MockDriver) SetCharacteristics(cameraID string, ch Characteristics) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.characteristics[cameraID] = ch
}

// SetCharacteristicsError は能力情報の取得失敗を設定する
func (d *MockDriver) SetCharacteristicsError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.charsErr = err
}

// SetOpenError は OpenCamera の同期的な失敗を設定する
func (d *MockDriver) SetOpenError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// SetNeverOpen は OnOpened を通知しないようにする
func (d *MockDriver) SetNeverOpen(never bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.neverOpen = never
}

// SetFailConfigure はセッション構成の失敗を設定する
func (d *MockDriver) SetFailConfigure(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failConfigure = fail
}

// SetNeverConfigure はセッション構成の通知をしないようにする
func (d *MockDriver) SetNeverConfigure(never bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.neverConfigure = never
}

// SetRejectRequests は SetRepeatingRequest の失敗を設定する（nil で解除）
func (d *MockDriver) SetRejectRequests(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejectErr = err
}

// SetCloseErrors はセッションとデバイスのクローズ失敗を設定する
func (d *MockDriver) SetCloseErrors(sessionErr, deviceErr error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionCloseErr = sessionErr
	d.deviceCloseErr = deviceErr
}

// SetFrameInterval はセッション構成後にフレームを自動生成する間隔を設定する
func (d *MockDriver) SetFrameInterval(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameInterval = interval
}

// LastDevice は最後に作成されたデバイスを返す
func (d *MockDriver) LastDevice() *MockDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.devices) == 0 {
		return nil
	}
	return d.devices[len(d.devices)-1]
}

// LastSession は最後に作成されたセッションを返す
func (d *MockDriver) LastSession() *MockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// MockDevice はモックのカメラデバイス
type MockDevice struct {
	id        string
	driver    *MockDriver
	callbacks DeviceCallbacks
	exec      Executor

	mu     sync.Mutex
	closed bool
}

// ID はカメラIDを返す
func (m *MockDevice) ID() string {
	return m.id
}

// CreateCaptureSession はモックセッションを作成し、構成結果を通知する
func (m *MockDevice) CreateCaptureSession(outputs []Surface, callbacks SessionCallbacks, exec Executor) error {
	if m.Closed() {
		return fmt.Errorf("デバイス %s はクローズ済みです", m.id)
	}

	d := m.driver
	d.mu.Lock()
	chars, ok := d.characteristics[m.id]
	if !ok {
		chars = d.defaultChars
	}
	session := &MockSession{
		driver:  d,
		chars:   chars,
		outputs: append([]Surface(nil), outputs...),
		stopCh:  make(chan struct{}),
	}
	d.sessions = append(d.sessions, session)
	failConfigure := d.failConfigure
	neverConfigure := d.neverConfigure
	interval := d.frameInterval
	d.mu.Unlock()

	if neverConfigure {
		return nil
	}

	return exec.Post(func() {
		if failConfigure {
			if callbacks.OnConfigureFailed != nil {
				callbacks.OnConfigureFailed(session)
			}
			return
		}
		if callbacks.OnConfigured != nil {
			callbacks.OnConfigured(session)
		}
		if interval > 0 {
			session.startPump(interval)
		}
	})
}

// Close はデバイスをクローズする
func (m *MockDevice) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()
	return m.driver.deviceCloseErr
}

// Closed はクローズ済みかどうかを返す
func (m *MockDevice) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Disconnect はデバイス切断を通知する
func (m *MockDevice) Disconnect() error {
	return m.exec.Post(func() {
		if m.callbacks.OnDisconnected != nil {
			m.callbacks.OnDisconnected(m)
		}
	})
}

// Fail はデバイスエラーを通知する
func (m *MockDevice) Fail(code int) error {
	return m.exec.Post(func() {
		if m.callbacks.OnError != nil {
			m.callbacks.OnError(m, code)
		}
	})
}

// MockSession はモックのキャプチャセッション
type MockSession struct {
	driver  *MockDriver
	chars   Characteristics
	outputs []Surface

	mu       sync.Mutex
	closed   bool
	requests []CaptureRequest
	callback CaptureCallback
	exec     Executor
	frame    int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// SetRepeatingRequest はリクエストを記録し、コールバックを置き換える
func (m *MockSession) SetRepeatingRequest(req CaptureRequest, cb CaptureCallback, exec Executor) error {
	m.driver.mu.Lock()
	rejectErr := m.driver.rejectErr
	m.driver.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("キャプチャセッションはクローズ済みです")
	}
	if rejectErr != nil {
		return fmt.Errorf("%w: %w", ErrDriverRejected, rejectErr)
	}
	if err := validateRegions(req, m.chars); err != nil {
		return err
	}

	m.requests = append(m.requests, req)
	m.callback = cb
	m.exec = exec
	return nil
}

// Close はセッションをクローズする
func (m *MockSession) Close() error {
	m.mu.Lock()
	m.closed = true
	m.callback = nil
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })

	m.driver.mu.Lock()
	defer m.driver.mu.Unlock()
	return m.driver.sessionCloseErr
}

// Closed はクローズ済みかどうかを返す
func (m *MockSession) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Outputs はセッション作成時の出力先を返す
func (m *MockSession) Outputs() []Surface {
	return append([]Surface(nil), m.outputs...)
}

// Requests は送信されたリクエストを順に返す
func (m *MockSession) Requests() []CaptureRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CaptureRequest(nil), m.requests...)
}

// LastRequest は最後に送信されたリクエストを返す
func (m *MockSession) LastRequest() (CaptureRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return CaptureRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// HasCallback は現在の繰り返しリクエストにコールバックが付いているかを返す
func (m *MockSession) HasCallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callback != nil
}

// EmitFrame は1フレーム完了を現在のコールバックへ通知する
// コールバックがない場合は何もしない
func (m *MockSession) EmitFrame(result CaptureResult) error {
	m.mu.Lock()
	if m.closed || m.callback == nil || len(m.requests) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.frame++
	result.FrameNumber = m.frame
	result.Request = m.requests[len(m.requests)-1]
	cb := m.callback
	exec := m.exec
	m.mu.Unlock()

	return exec.Post(func() { cb(result) })
}

// startPump は停止されるまで状態不明のフレームを生成し続ける
func (m *MockSession) startPump(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				if err := m.EmitFrame(CaptureResult{}); err != nil {
					return
				}
			}
		}
	}()
}

// validateRegions は対応数を超える測光領域を拒否する
func validateRegions(req CaptureRequest, ch Characteristics) error {
	checks := []struct {
		name    string
		regions int
		max     int
	}{
		{"AF", len(req.AFRegions), ch.MaxRegionsAF},
		{"AE", len(req.AERegions), ch.MaxRegionsAE},
		{"AWB", len(req.AWBRegions), ch.MaxRegionsAWB},
	}

	for _, c := range checks {
		if c.regions > c.max {
			return fmt.Errorf("%w: %s の測光領域数 %d が上限 %d を超えています",
				ErrDriverRejected, c.name, c.regions, c.max)
		}
	}
	return nil
}
