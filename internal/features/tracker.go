package features

import (
	"fmt"
	"strings"

	"github.com/char5742/scroll-offset-reader/internal/consts"
	"github.com/char5742/scroll-offset-reader/internal/types"
)

// Axes はスクロール可能な軸の集合
type Axes int

const (
	AxisHorizontal Axes = 1 << iota
	AxisVertical

	AxesBoth = AxisHorizontal | AxisVertical
)

// ParseAxes は設定ファイルの文字列から軸の集合を得る
func ParseAxes(s string) (Axes, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vertical":
		return AxisVertical, nil
	case "horizontal":
		return AxisHorizontal, nil
	case "both":
		return AxesBoth, nil
	default:
		return 0, fmt.Errorf("unknown axes %q", s)
	}
}

// Has は指定の軸が含まれているかを返す
func (a Axes) Has(axis Axes) bool {
	return a&axis == axis
}

func (a Axes) String() string {
	switch a {
	case AxisHorizontal:
		return "horizontal"
	case AxisVertical:
		return "vertical"
	case AxesBoth:
		return "both"
	default:
		return fmt.Sprintf("Axes(%d)", int(a))
	}
}

// TrackerOptions はスクロール位置トラッカーの設定
type TrackerOptions struct {
	Axes          Axes
	WheelStep     float64 // ホイール1ノッチあたりの移動量
	PointerFactor float64 // ポインター移動量の倍率
	MaxDX         float64 // 水平方向の最大スクロール量（0なら無制限）
	MaxDY         float64 // 垂直方向の最大スクロール量（0なら無制限）
	Filter        *MotionFilter
}

// Tracker は相対移動イベントをコンテンツ原点の絶対オフセットへ変換する
// 下方向・右方向へスクロールすると原点は負の方向へ移動する
type Tracker struct {
	opts        TrackerOptions
	offset      types.Offset
	onRawOffset func(types.Offset)

	// SYN_REPORT までに受け取ったフレーム内の移動量
	pointerDX, pointerDY float64
	wheel, hwheel        float64
	dirty                bool
}

// NewTracker は新しいトラッカーを作成する
func NewTracker(opts TrackerOptions, onRawOffset func(types.Offset)) *Tracker {
	if opts.Axes == 0 {
		opts.Axes = AxisVertical
	}
	return &Tracker{
		opts:        opts,
		onRawOffset: onRawOffset,
	}
}

// Offset は現在の生オフセットを返す
func (t *Tracker) Offset() types.Offset {
	return t.offset
}

// HandleEvent は入力イベントを1つ処理する
// SYN_REPORT を受け取った時点でフレーム内の移動をまとめて反映する
func (t *Tracker) HandleEvent(e types.Event) {
	switch e.Type {
	case consts.Rel:
		switch e.Code {
		case consts.RelX:
			t.pointerDX += float64(e.Value)
		case consts.RelY:
			t.pointerDY += float64(e.Value)
		case consts.RelWheel:
			t.wheel += float64(e.Value)
		case consts.RelHWheel:
			t.hwheel += float64(e.Value)
		default:
			return
		}
		t.dirty = true
	case consts.Syn:
		if e.Code == consts.SynReport && t.dirty {
			t.flush()
		}
	}
}

// Move はフレーム単位の移動量を直接反映する
func (t *Tracker) Move(pointerDX, pointerDY, wheel, hwheel float64) {
	t.pointerDX += pointerDX
	t.pointerDY += pointerDY
	t.wheel += wheel
	t.hwheel += hwheel
	t.dirty = true
	t.flush()
}

// SetOffset は現在のオフセットを直接設定する
// 軸の制限と範囲の制限を適用し、値が変わった場合はコールバックを呼び出す
func (t *Tracker) SetOffset(offset types.Offset) {
	t.apply(offset)
}

// Reset はオフセットとフィルターの状態を初期化する
func (t *Tracker) Reset() {
	t.offset = types.Offset{}
	t.pointerDX, t.pointerDY, t.wheel, t.hwheel = 0, 0, 0, 0
	t.dirty = false
	if t.opts.Filter != nil {
		t.opts.Filter.Reset()
	}
}

func (t *Tracker) flush() {
	pdx, pdy := t.pointerDX*t.opts.PointerFactor, t.pointerDY*t.opts.PointerFactor
	if t.opts.Filter != nil && (pdx != 0 || pdy != 0) {
		pdx, pdy = t.opts.Filter.Filter(pdx, pdy)
	}

	// ホイールを上へ回すと原点は正の方向（先頭側）へ戻る
	delta := types.Offset{
		DX: pdx - t.hwheel*t.opts.WheelStep,
		DY: pdy + t.wheel*t.opts.WheelStep,
	}
	t.pointerDX, t.pointerDY, t.wheel, t.hwheel = 0, 0, 0, 0
	t.dirty = false

	t.apply(t.offset.Add(delta))
}

func (t *Tracker) apply(next types.Offset) {
	if !t.opts.Axes.Has(AxisHorizontal) {
		next.DX = 0
	}
	if !t.opts.Axes.Has(AxisVertical) {
		next.DY = 0
	}
	next.DX = clampScroll(next.DX, t.opts.MaxDX)
	next.DY = clampScroll(next.DY, t.opts.MaxDY)

	if next.Equal(t.offset) {
		return
	}
	t.offset = next
	if t.onRawOffset != nil {
		t.onRawOffset(next)
	}
}

// clampScroll は値を [-max, 0] の範囲に制限する（max が0以下なら上限なし）
func clampScroll(value, max float64) float64 {
	if value > 0 {
		return 0
	}
	if max > 0 && value < -max {
		return -max
	}
	return value
}
