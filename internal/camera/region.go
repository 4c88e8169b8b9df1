package camera

// RegionMapper はUI画像座標のタップ位置をセンサー座標の測光領域へ変換する
type RegionMapper struct {
	Image     Size // ARセッションが構成した画像サイズ
	Sensor    Size // センサーのアクティブ画素配列サイズ
	MaxWeight int  // ドライバーの最大測光ウェイト
}

// NewRegionMapper は能力情報から RegionMapper を作成する
// センサーサイズが報告されない場合は画像サイズで代用する
func NewRegionMapper(image Size, ch Characteristics) RegionMapper {
	sensor := image
	if ch.ActiveArraySize != nil {
		sensor = *ch.ActiveArraySize
	}

	maxWeight := ch.MaxMeteringWeight
	if maxWeight <= 0 {
		maxWeight = MeteringWeightMax
	}

	return RegionMapper{
		Image:     image,
		Sensor:    sensor,
		MaxWeight: maxWeight,
	}
}

// Map はタップ位置 (x, y) を中心とする areaSize 四方の領域を返す
//
// 原点は0未満にならないようにクランプする。センサー外側への
// はみ出しはクランプしない。
func (m RegionMapper) Map(x, y, areaSize int) MeteringRegion {
	cx, cy := x, y
	if m.Image.Width > 0 {
		cx = x * m.Sensor.Width / m.Image.Width
	}
	if m.Image.Height > 0 {
		cy = y * m.Sensor.Height / m.Image.Height
	}

	return MeteringRegion{
		X:      max(cx-areaSize/2, 0),
		Y:      max(cy-areaSize/2, 0),
		Width:  areaSize,
		Height: areaSize,
		Weight: m.MaxWeight - 1,
	}
}

// Center は画像中心の座標を返す
func (m RegionMapper) Center() (int, int) {
	return m.Image.Width / 2, m.Image.Height / 2
}
