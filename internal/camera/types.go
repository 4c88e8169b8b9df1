package camera

// Size は幅と高さを表す
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Surface はキャプチャ出力先を表す不透明なハンドル
type Surface string

// MeteringRegion はセンサー座標系での測光領域
type MeteringRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Weight int `json:"weight"`
}

const (
	// MeteringWeightMax はプラットフォームの最大測光ウェイト
	MeteringWeightMax = 1000

	// DefaultAreaSize はタップ測光のデフォルト領域サイズ（ピクセル相当）
	DefaultAreaSize = 200
)

// Template はキャプチャリクエストのテンプレート種別
type Template string

const (
	TemplatePreview Template = "preview"
	TemplateRecord  Template = "record"
)

// AFMode はオートフォーカスのモード
type AFMode int

const (
	AFModeOff AFMode = iota
	AFModeAuto
	AFModeMacro
	AFModeContinuousVideo
	AFModeContinuousPicture
)

// AFTrigger はオートフォーカスのトリガー
type AFTrigger int

const (
	AFTriggerIdle AFTrigger = iota
	AFTriggerStart
	AFTriggerCancel
)

// AEMode は自動露出のモード
type AEMode int

const (
	AEModeOff AEMode = iota
	AEModeOn
)

// AWBMode はオートホワイトバランスのモード
type AWBMode int

const (
	AWBModeOff AWBMode = iota
	AWBModeAuto
)

// FlashMode はフラッシュのモード
type FlashMode int

const (
	FlashModeOff FlashMode = iota
	FlashModeTorch
)

// AFState はフレーム結果に含まれるフォーカス状態
// ゼロ値は「結果に状態が含まれていない」ことを表す
type AFState int

const (
	AFStateUnknown AFState = iota
	AFStateInactive
	AFStatePassiveScan
	AFStatePassiveFocused
	AFStatePassiveUnfocused
	AFStateActiveScan
	AFStateFocusedLocked
	AFStateNotFocusedLocked
)

// AEState はフレーム結果に含まれる露出状態
type AEState int

const (
	AEStateUnknown AEState = iota
	AEStateInactive
	AEStateSearching
	AEStateConverged
	AEStateLocked
	AEStateFlashRequired
	AEStatePrecapture
)

// AWBState はフレーム結果に含まれるホワイトバランス状態
type AWBState int

const (
	AWBStateUnknown AWBState = iota
	AWBStateInactive
	AWBStateSearching
	AWBStateConverged
	AWBStateLocked
)

// CaptureRequest は送信済みリクエストの不変スナップショット
type CaptureRequest struct {
	Template Template  `json:"template"`
	Targets  []Surface `json:"targets"`

	AFMode    AFMode           `json:"af_mode"`
	AFTrigger AFTrigger        `json:"af_trigger"`
	AFRegions []MeteringRegion `json:"af_regions,omitempty"`

	AEMode    AEMode           `json:"ae_mode"`
	AELock    bool             `json:"ae_lock"`
	AERegions []MeteringRegion `json:"ae_regions,omitempty"`

	AWBMode    AWBMode          `json:"awb_mode"`
	AWBLock    bool             `json:"awb_lock"`
	AWBRegions []MeteringRegion `json:"awb_regions,omitempty"`

	Flash FlashMode `json:"flash"`
}

// CaptureResult は1フレーム分のキャプチャ結果
type CaptureResult struct {
	FrameNumber int64
	Request     CaptureRequest
	AFState     AFState
	AEState     AEState
	AWBState    AWBState
}

// CaptureCallback はフレーム完了ごとにコマンドスレッド上で呼ばれる
type CaptureCallback func(result CaptureResult)

// ConvergenceFlags は収束ルーチン完了後に落ち着くべき定常状態を記録する
type ConvergenceFlags struct {
	AutoFocus        bool `json:"auto_focus"`
	AutoExposure     bool `json:"auto_exposure"`
	AutoWhiteBalance bool `json:"auto_white_balance"`
}

// LifecycleState はカメラセッションのライフサイクル状態
type LifecycleState string

const (
	StateClosed        LifecycleState = "closed"          // 未オープンまたはクローズ済み
	StateOpening       LifecycleState = "opening"         // デバイスのオープン待ち
	StateConfiguring   LifecycleState = "configuring"     // キャプチャセッションの構成待ち
	StateReady         LifecycleState = "ready"           // リクエスト送信可能
	StateClosedOnError LifecycleState = "closed_on_error" // ドライバーエラーで停止
)

// Characteristics はカメラの能力情報
// 報告されない値はゼロ値（ActiveArraySize は nil）になる
type Characteristics struct {
	ActiveArraySize   *Size `json:"active_array_size,omitempty"`
	MaxRegionsAF      int   `json:"max_regions_af"`
	MaxRegionsAE      int   `json:"max_regions_ae"`
	MaxRegionsAWB     int   `json:"max_regions_awb"`
	MaxMeteringWeight int   `json:"max_metering_weight"`
}

// Executor はタスクを単一の実行コンテキストに直列化する
type Executor interface {
	Post(task func()) error
}

// DeviceCallbacks はデバイス状態の通知先
type DeviceCallbacks struct {
	OnOpened       func(dev Device)
	OnDisconnected func(dev Device)
	OnError        func(dev Device, code int)
}

// SessionCallbacks はキャプチャセッション状態の通知先
type SessionCallbacks struct {
	OnConfigured      func(session CaptureSession)
	OnConfigureFailed func(session CaptureSession)
}

// Driver はカメラドライバーへの入口
type Driver interface {
	// Characteristics は指定カメラの能力情報を返す
	Characteristics(cameraID string) (Characteristics, error)

	// OpenCamera はデバイスを非同期に開く。結果は callbacks に exec 経由で通知される
	OpenCamera(cameraID string, callbacks DeviceCallbacks, exec Executor) error
}

// Device はオープン済みのカメラデバイス
type Device interface {
	ID() string
	CreateCaptureSession(outputs []Surface, callbacks SessionCallbacks, exec Executor) error
	Close() error
}

// CaptureSession は構成済みのキャプチャセッション
type CaptureSession interface {
	// SetRepeatingRequest は繰り返しリクエストを置き換える。cb は nil でもよい
	SetRepeatingRequest(req CaptureRequest, cb CaptureCallback, exec Executor) error
	Close() error
}

// SharedCamera はARトラッカーと共有するカメラのハンドル
//
// Wrap 系メソッドはトラッカー自身の監視ロジックを先に実行し、
// その後で呼び出し側のコールバックへ委譲するコールバックを返す。
type SharedCamera interface {
	CameraID() string
	ImageSize() Size
	TargetSurfaces() []Surface
	WrapDeviceCallbacks(callbacks DeviceCallbacks) DeviceCallbacks
	WrapSessionCallbacks(callbacks SessionCallbacks) SessionCallbacks
}
