package camera

// RequestBuilder は次に送信する繰り返しリクエストの内容を保持する
//
// オープン中のセッションごとに1つだけ存在し、コマンドスレッドからのみ
// 読み書きされる。ロックは持たない。
type RequestBuilder struct {
	req CaptureRequest
}

// NewRequestBuilder はテンプレートと出力先から RequestBuilder を作成する
func NewRequestBuilder(template Template, targets []Surface) *RequestBuilder {
	req := CaptureRequest{
		Template: template,
		Targets:  append([]Surface(nil), targets...),
		AEMode:   AEModeOn,
		AWBMode:  AWBModeAuto,
	}

	switch template {
	case TemplateRecord:
		req.AFMode = AFModeContinuousVideo
	default:
		req.AFMode = AFModeContinuousPicture
	}

	return &RequestBuilder{req: req}
}

// Update は builder の内容を書き換える
func (b *RequestBuilder) Update(fn func(req *CaptureRequest)) {
	fn(&b.req)
}

// AddTarget は出力先を追加する
func (b *RequestBuilder) AddTarget(s Surface) {
	b.req.Targets = append(b.req.Targets, s)
}

// Build は現在の内容のディープコピーを返す
func (b *RequestBuilder) Build() CaptureRequest {
	out := b.req
	out.Targets = cloneSlice(b.req.Targets)
	out.AFRegions = cloneSlice(b.req.AFRegions)
	out.AERegions = cloneSlice(b.req.AERegions)
	out.AWBRegions = cloneSlice(b.req.AWBRegions)
	return out
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}
