package types

import "math"

// Offset はスクロールコンテナ内のコンテンツ原点の2軸変位を表す
type Offset struct {
	DX float64 `json:"dx" toml:"dx"` // 水平方向の変位
	DY float64 `json:"dy" toml:"dy"` // 垂直方向の変位
}

// Zero はゼロオフセット
var Zero = Offset{}

// Equal は成分ごとの完全一致で比較する（イプシロンは使わない）
func (o Offset) Equal(other Offset) bool {
	return o.DX == other.DX && o.DY == other.DY
}

// Add は2つのオフセットの和を返す
func (o Offset) Add(other Offset) Offset {
	return Offset{DX: o.DX + other.DX, DY: o.DY + other.DY}
}

// Sub は2つのオフセットの差を返す
func (o Offset) Sub(other Offset) Offset {
	return Offset{DX: o.DX - other.DX, DY: o.DY - other.DY}
}

// AxisDistance は軸ごとの差の絶対値を返す
func (o Offset) AxisDistance(other Offset) (dx, dy float64) {
	d := o.Sub(other)
	return math.Abs(d.DX), math.Abs(d.DY)
}
