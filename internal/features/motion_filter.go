package features

// MotionFilter はポインターの移動量（dx, dy）を滑らかにします
type MotionFilter struct {
	smoothingFactor float64 // 0.0-1.0の範囲。1.0に近いほど滑らかになりますが、遅延が大きくなります
	lastDX          float64
	lastDY          float64
	warmUpCount     int
	currentCount    int
}

// 新しいモーションフィルターを作成します
func NewMotionFilter(smoothingFactor float64, warmUpCount int) *MotionFilter {
	if smoothingFactor < 0 {
		smoothingFactor = 0
	}
	if smoothingFactor > 1 {
		smoothingFactor = 1
	}
	return &MotionFilter{
		smoothingFactor: smoothingFactor,
		warmUpCount:     warmUpCount,
	}
}

// 移動量にsmoothingを適用します
// ウォームアップ中は入力をそのまま返します
func (mf *MotionFilter) Filter(dxRaw, dyRaw float64) (float64, float64) {
	if mf.currentCount < mf.warmUpCount {
		mf.currentCount++
		mf.lastDX = dxRaw
		mf.lastDY = dyRaw
		return dxRaw, dyRaw
	}

	f := mf.smoothingFactor
	mf.lastDX = dxRaw*(1.0-f) + mf.lastDX*f
	mf.lastDY = dyRaw*(1.0-f) + mf.lastDY*f

	return mf.lastDX, mf.lastDY
}

// フィルターの状態をリセットします
func (mf *MotionFilter) Reset() {
	mf.lastDX = 0
	mf.lastDY = 0
	mf.currentCount = 0
}
