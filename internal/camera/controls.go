package camera

// control はAF/AE/AWBの収束ルーチンを1つの形にまとめたもの
//
// 3つの制御は触るリクエストキーと結果キーだけが異なる。
type control struct {
	name string

	// maxRegions は能力情報から対応する測光領域数を返す
	maxRegions func(ch Characteristics) int

	// setRegions は測光領域を設定する（nil で解除）
	setRegions func(req *CaptureRequest, regions []MeteringRegion)

	// meter は収束待ちの間に送るリクエスト内容を設定する
	meter func(req *CaptureRequest)

	// steady は収束後の定常状態を設定する
	steady func(req *CaptureRequest, enabled bool)

	// clearRegionsOnSteady が true なら定常状態で測光領域を解除する
	clearRegionsOnSteady bool

	// converged はフレーム結果が収束済み（または状態不明）かどうかを返す
	converged func(res CaptureResult) bool

	// flag は定常状態の目標フラグを返す
	flag func(f *ConvergenceFlags) *bool
}

var autoFocusControl = &control{
	name:       "auto_focus",
	maxRegions: func(ch Characteristics) int { return ch.MaxRegionsAF },
	setRegions: func(req *CaptureRequest, regions []MeteringRegion) { req.AFRegions = regions },
	meter: func(req *CaptureRequest) {
		req.AFMode = AFModeMacro
		req.AFTrigger = AFTriggerStart
	},
	// 無効化はロック解除ではなく、トリガーを止めてマクロモードに戻す
	steady: func(req *CaptureRequest, enabled bool) {
		if enabled {
			req.AFMode = AFModeAuto
			return
		}
		req.AFTrigger = AFTriggerIdle
		req.AFMode = AFModeMacro
	},
	clearRegionsOnSteady: true,
	converged: func(res CaptureResult) bool {
		switch res.AFState {
		case AFStateFocusedLocked, AFStateNotFocusedLocked, AFStateUnknown:
			return true
		}
		return false
	},
	flag: func(f *ConvergenceFlags) *bool { return &f.AutoFocus },
}

var autoExposureControl = &control{
	name:       "auto_exposure",
	maxRegions: func(ch Characteristics) int { return ch.MaxRegionsAE },
	setRegions: func(req *CaptureRequest, regions []MeteringRegion) { req.AERegions = regions },
	meter: func(req *CaptureRequest) {
		req.AEMode = AEModeOn
		req.AELock = false
	},
	steady: func(req *CaptureRequest, enabled bool) {
		req.AEMode = AEModeOn
		req.AELock = !enabled
	},
	clearRegionsOnSteady: true,
	converged: func(res CaptureResult) bool {
		return res.AEState == AEStateConverged || res.AEState == AEStateUnknown
	},
	flag: func(f *ConvergenceFlags) *bool { return &f.AutoExposure },
}

var autoWhiteBalanceControl = &control{
	name:       "auto_white_balance",
	maxRegions: func(ch Characteristics) int { return ch.MaxRegionsAWB },
	setRegions: func(req *CaptureRequest, regions []MeteringRegion) { req.AWBRegions = regions },
	meter: func(req *CaptureRequest) {
		req.AWBMode = AWBModeAuto
		req.AWBLock = false
	},
	steady: func(req *CaptureRequest, enabled bool) {
		req.AWBMode = AWBModeAuto
		req.AWBLock = !enabled
	},
	converged: func(res CaptureResult) bool {
		return res.AWBState == AWBStateConverged || res.AWBState == AWBStateUnknown
	},
	flag: func(f *ConvergenceFlags) *bool { return &f.AutoWhiteBalance },
}
