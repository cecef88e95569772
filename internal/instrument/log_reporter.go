package instrument

import (
	"io"
	"time"

	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

// LogReporter はメトリクスをロガーへ書き出す tally.StatsReporter
type LogReporter struct {
	logger *zap.Logger
}

var _ tally.StatsReporter = (*LogReporter)(nil)

// NewLogReporter は新しい LogReporter を作成する
func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger}
}

// NewRootScope はメトリクスのルートスコープを作成する
// interval が0以下の場合は何も出力しないスコープを返す
func NewRootScope(prefix string, logger *zap.Logger, interval time.Duration) (tally.Scope, io.Closer) {
	if interval <= 0 {
		return tally.NoopScope, nopCloser{}
	}
	return tally.NewRootScope(tally.ScopeOptions{
		Prefix:   prefix,
		Reporter: NewLogReporter(logger),
	}, interval)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (r *LogReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.logger.Debug("counter", zap.String("name", name), zap.Any("tags", tags), zap.Int64("value", value))
}

func (r *LogReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.logger.Debug("gauge", zap.String("name", name), zap.Any("tags", tags), zap.Float64("value", value))
}

func (r *LogReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.logger.Debug("timer", zap.String("name", name), zap.Any("tags", tags), zap.Duration("value", interval))
}

func (r *LogReporter) ReportHistogramValueSamples(
	name string,
	tags map[string]string,
	_ tally.Buckets,
	bucketLowerBound, bucketUpperBound float64,
	samples int64,
) {
	r.logger.Debug("histogram",
		zap.String("name", name),
		zap.Any("tags", tags),
		zap.Float64("lower", bucketLowerBound),
		zap.Float64("upper", bucketUpperBound),
		zap.Int64("samples", samples))
}

func (r *LogReporter) ReportHistogramDurationSamples(
	name string,
	tags map[string]string,
	_ tally.Buckets,
	bucketLowerBound, bucketUpperBound time.Duration,
	samples int64,
) {
	r.logger.Debug("histogram",
		zap.String("name", name),
		zap.Any("tags", tags),
		zap.Duration("lower", bucketLowerBound),
		zap.Duration("upper", bucketUpperBound),
		zap.Int64("samples", samples))
}

func (r *LogReporter) Capabilities() tally.Capabilities {
	return r
}

func (r *LogReporter) Reporting() bool {
	return true
}

func (r *LogReporter) Tagging() bool {
	return true
}

func (r *LogReporter) Flush() {
	_ = r.logger.Sync()
}
