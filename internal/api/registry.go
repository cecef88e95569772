package api

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/char5742/scroll-offset-reader/internal/features"
	"github.com/jonboulle/clockwork"
	"github.com/uber-go/tally/v4"
	"go.uber.org/zap"
)

var (
	// ErrReaderExists は同名のリーダーが既にマウントされている場合に返される
	ErrReaderExists = errors.New("reader already mounted")
	// ErrReaderNotFound はリーダーが見つからない場合に返される
	ErrReaderNotFound = errors.New("reader not found")
	// ErrInvalidReaderName はリーダー名が空の場合に返される
	ErrInvalidReaderName = errors.New("reader name must not be empty")
)

// RegistryOptions はリーダーレジストリの設定
type RegistryOptions struct {
	Clock    clockwork.Clock
	Executor features.Executor
	Logger   *zap.Logger
	Scope    tally.Scope
}

// ReaderRegistry は名前付きのスクロールオフセットリーダーを管理する
// 各リーダーは自身専用のサンプラーを1つだけ持ち、他のリーダーと共有しない
type ReaderRegistry struct {
	opts    RegistryOptions
	logger  *zap.Logger
	mounted tally.Gauge

	mutex   sync.RWMutex
	readers map[string]*features.OffsetSampler
}

// NewReaderRegistry は新しいリーダーレジストリを作成する
func NewReaderRegistry(opts RegistryOptions) *ReaderRegistry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scope == nil {
		opts.Scope = tally.NoopScope
	}
	return &ReaderRegistry{
		opts:    opts,
		logger:  opts.Logger,
		mounted: opts.Scope.Gauge("readers-mounted"),
		readers: make(map[string]*features.OffsetSampler),
	}
}

// Mount は新しいリーダーを作成する
// opts で指定されていないクロック・実行コンテキスト・ロガー・スコープはレジストリのものを使う
func (r *ReaderRegistry) Mount(name string, opts features.SamplerOptions) (*features.OffsetSampler, error) {
	if name == "" {
		return nil, ErrInvalidReaderName
	}
	if opts.Clock == nil {
		opts.Clock = r.opts.Clock
	}
	if opts.Executor == nil {
		opts.Executor = r.opts.Executor
	}
	if opts.Logger == nil {
		opts.Logger = r.logger.With(zap.String("reader", name))
	}
	if opts.Scope == nil {
		opts.Scope = r.opts.Scope.Tagged(map[string]string{"reader": name})
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.readers[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrReaderExists, name)
	}
	sampler, err := features.NewOffsetSampler(opts)
	if err != nil {
		return nil, err
	}
	r.readers[name] = sampler
	r.mounted.Update(float64(len(r.readers)))

	r.logger.Info("リーダーをマウントしました",
		zap.String("reader", name),
		zap.Duration("tickInterval", opts.TickInterval),
		zap.Float64("minDelta", opts.MinDelta))
	return sampler, nil
}

// Unmount はリーダーを削除し、そのサンプラーを停止する
func (r *ReaderRegistry) Unmount(name string) error {
	r.mutex.Lock()
	sampler, exists := r.readers[name]
	if exists {
		delete(r.readers, name)
		r.mounted.Update(float64(len(r.readers)))
	}
	r.mutex.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrReaderNotFound, name)
	}
	sampler.Close()
	r.logger.Info("リーダーをアンマウントしました", zap.String("reader", name))
	return nil
}

// Get は名前に対応するリーダーのサンプラーを返す
func (r *ReaderRegistry) Get(name string) (*features.OffsetSampler, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sampler, exists := r.readers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrReaderNotFound, name)
	}
	return sampler, nil
}

// Names はマウント中のリーダー名を昇順で返す
func (r *ReaderRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.readers))
	for name := range r.readers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll はすべてのリーダーをアンマウントする
func (r *ReaderRegistry) CloseAll() {
	r.mutex.Lock()
	readers := r.readers
	r.readers = make(map[string]*features.OffsetSampler)
	r.mounted.Update(0)
	r.mutex.Unlock()

	for _, sampler := range readers {
		sampler.Close()
	}
}
