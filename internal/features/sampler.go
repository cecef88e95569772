package features

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/char5742/scroll-offset-reader/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/uber-go/tally/v4"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// DefaultTickInterval はサンプリング間隔のデフォルト値
	DefaultTickInterval = 250 * time.Millisecond
	// DefaultMinDelta は最小変位のデフォルト値
	DefaultMinDelta = 2.0
)

var (
	// ErrInvalidTickInterval はサンプリング間隔が0以下の場合に返される
	ErrInvalidTickInterval = errors.New("tick interval must be positive")
	// ErrInvalidMinDelta は最小変位が負またはNaNの場合に返される
	ErrInvalidMinDelta = errors.New("min delta must be a non-negative number")
)

// Executor はティック処理を実行するコンテキストを表す
// 受け取った関数を呼び出し側の期待するゴルーチン上で実行する
type Executor func(fn func())

// SamplerOptions はオフセットサンプラーの設定
type SamplerOptions struct {
	TickInterval time.Duration
	MinDelta     float64
	Initial      types.Offset // 出力セルの初期値

	Clock    clockwork.Clock
	Executor Executor
	Logger   *zap.Logger
	Scope    tally.Scope
}

// DefaultSamplerOptions はデフォルトのサンプラー設定を返す
func DefaultSamplerOptions() SamplerOptions {
	return SamplerOptions{
		TickInterval: DefaultTickInterval,
		MinDelta:     DefaultMinDelta,
	}
}

// Validate は設定値を検証する
func (o SamplerOptions) Validate() error {
	if o.TickInterval <= 0 {
		return ErrInvalidTickInterval
	}
	if o.MinDelta < 0 || math.IsNaN(o.MinDelta) {
		return ErrInvalidMinDelta
	}
	return nil
}

type samplerMetrics struct {
	accepted   tally.Counter
	rejected   tally.Counter
	ticks      tally.Counter
	emitted    tally.Counter
	duplicates tally.Counter
	dx         tally.Gauge
	dy         tally.Gauge
}

func newSamplerMetrics(s tally.Scope) samplerMetrics {
	offset := s.SubScope("offset")
	return samplerMetrics{
		accepted:   s.Counter("accepted"),
		rejected:   s.Counter("rejected"),
		ticks:      s.Counter("ticks"),
		emitted:    s.Counter("emitted"),
		duplicates: s.Counter("duplicates"),
		dx:         offset.Gauge("dx"),
		dy:         offset.Gauge("dy"),
	}
}

// OffsetSampler は高頻度な生オフセットを受け取り、
// 最小変位ゲート・定周期サンプリング・重複除去を経て出力セルへ書き込む
type OffsetSampler struct {
	tickInterval time.Duration
	minDelta     float64
	executor     Executor
	logger       *zap.Logger
	metrics      samplerMetrics

	// ゲートの状態（Update とティックの取り出しで共有）
	mu           sync.Mutex
	lastAccepted types.Offset
	pending      types.Offset
	hasPending   bool

	// emitMu はティック処理と Close を直列化する
	emitMu      sync.Mutex
	lastEmitted types.Offset
	closed      *atomic.Bool

	output  *OffsetValue
	ticker  clockwork.Ticker
	closeCh chan struct{}
	doneCh  chan struct{}
}

// NewOffsetSampler は新しいサンプラーを作成し、周期タイマーを開始する
func NewOffsetSampler(opts SamplerOptions) (*OffsetSampler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scope == nil {
		opts.Scope = tally.NoopScope
	}

	s := &OffsetSampler{
		tickInterval: opts.TickInterval,
		minDelta:     opts.MinDelta,
		executor:     opts.Executor,
		logger: opts.Logger.With(
			zap.Duration("tickInterval", opts.TickInterval),
			zap.Float64("minDelta", opts.MinDelta),
		),
		metrics:     newSamplerMetrics(opts.Scope),
		lastEmitted: opts.Initial,
		closed:      atomic.NewBool(false),
		output:      newOffsetValue(opts.Initial),
		closeCh:     make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	s.ticker = opts.Clock.NewTicker(opts.TickInterval)
	go s.run()

	return s, nil
}

// Output は出力セルを返す
func (s *OffsetSampler) Output() *OffsetValue {
	return s.output
}

// Value は現在の出力値を返す
func (s *OffsetSampler) Value() types.Offset {
	return s.output.Load()
}

// Update は生オフセットを最小変位ゲートに通す
// いずれかの軸で最後に受理した値から MinDelta 以上離れていれば受理して true を返す
func (s *OffsetSampler) Update(raw types.Offset) bool {
	if s.closed.Load() {
		return false
	}

	s.mu.Lock()
	dx, dy := raw.AxisDistance(s.lastAccepted)
	// 一致判定が効くのは minDelta が0の場合のみ（同じ値の再受理を防ぐ）
	accepted := (dx >= s.minDelta || dy >= s.minDelta) && !raw.Equal(s.lastAccepted)
	if accepted {
		s.lastAccepted = raw
		s.pending = raw
		s.hasPending = true
	}
	s.mu.Unlock()

	if accepted {
		s.metrics.accepted.Inc(1)
	} else {
		s.metrics.rejected.Inc(1)
	}
	return accepted
}

// Close はタイマーを停止する。戻った後は出力セルへの書き込みは一切行われない
// オブザーバーの中から呼び出してはならない
func (s *OffsetSampler) Close() {
	s.emitMu.Lock()
	wasClosed := s.closed.Swap(true)
	s.emitMu.Unlock()
	if wasClosed {
		return
	}

	close(s.closeCh)
	<-s.doneCh
	s.logger.Debug("sampler closed")
}

func (s *OffsetSampler) run() {
	defer close(s.doneCh)
	defer s.ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-s.ticker.Chan():
			if s.executor != nil {
				s.executor(s.tick)
			} else {
				s.tick()
			}
		}
	}
}

// tick は保留中の値を取り出し、変化があれば出力セルへ転送する
func (s *OffsetSampler) tick() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if s.closed.Load() {
		return
	}
	defer s.metrics.ticks.Inc(1)

	value, ok := s.takePending()
	if !ok {
		return
	}
	s.emitIfChanged(value)
}

// takePending は保留中の値を取り出して空にする
func (s *OffsetSampler) takePending() (types.Offset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasPending {
		return types.Offset{}, false
	}
	value := s.pending
	s.pending = types.Offset{}
	s.hasPending = false
	return value, true
}

// emitIfChanged は前回の出力値と異なる場合のみ出力セルを更新する
// 呼び出し側は emitMu を保持していること
func (s *OffsetSampler) emitIfChanged(value types.Offset) bool {
	if value.Equal(s.lastEmitted) {
		s.metrics.duplicates.Inc(1)
		return false
	}

	s.lastEmitted = value
	s.output.store(value)

	s.metrics.emitted.Inc(1)
	s.metrics.dx.Update(value.DX)
	s.metrics.dy.Update(value.DY)
	s.logger.Debug("offset sampled", zap.Float64("dx", value.DX), zap.Float64("dy", value.DY))
	return true
}
