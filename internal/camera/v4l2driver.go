package camera

// V4L2Config はV4L2バックエンドのストリーム設定
type V4L2Config struct {
	Width  int
	Height int
	FPS    int
}

// V4L2のコントロールID（linux/v4l2-controls.h）
const (
	v4l2CtrlAutoWhiteBalance uint32 = 0x0098090c
	v4l2CtrlExposureAuto     uint32 = 0x009a0901
	v4l2CtrlFocusAuto        uint32 = 0x009a090c
	v4l2CtrlAutoFocusStart   uint32 = 0x009a091c
	v4l2CtrlFlashLEDMode     uint32 = 0x009c0901
)

// V4L2のコントロール値
const (
	v4l2ExposureManual           int32 = 1
	v4l2ExposureAperturePriority int32 = 3
	v4l2FlashLEDModeNone         int32 = 0
	v4l2FlashLEDModeTorch        int32 = 2
)

// v4l2Control は書き込むコントロールとその値
type v4l2Control struct {
	name  string
	id    uint32
	value int32
}

// v4l2Controls はキャプチャリクエストをV4L2コントロールの列に変換する
//
// V4L2には測光領域の概念がないため領域は無視する。
func v4l2Controls(req CaptureRequest) []v4l2Control {
	awb := int32(0)
	if req.AWBMode == AWBModeAuto && !req.AWBLock {
		awb = 1
	}

	exposure := v4l2ExposureManual
	if req.AEMode == AEModeOn && !req.AELock {
		exposure = v4l2ExposureAperturePriority
	}

	focus := int32(0)
	switch req.AFMode {
	case AFModeAuto, AFModeContinuousVideo, AFModeContinuousPicture:
		focus = 1
	}

	flash := v4l2FlashLEDModeNone
	if req.Flash == FlashModeTorch {
		flash = v4l2FlashLEDModeTorch
	}

	controls := []v4l2Control{
		{"white_balance_automatic", v4l2CtrlAutoWhiteBalance, awb},
		{"auto_exposure", v4l2CtrlExposureAuto, exposure},
		{"focus_automatic_continuous", v4l2CtrlFocusAuto, focus},
		{"flash_led_mode", v4l2CtrlFlashLEDMode, flash},
	}
	if req.AFTrigger == AFTriggerStart {
		controls = append(controls, v4l2Control{"auto_focus_start", v4l2CtrlAutoFocusStart, 1})
	}

	return controls
}
