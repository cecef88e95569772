package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/char5742/scroll-offset-reader/internal/config"
	"github.com/char5742/scroll-offset-reader/internal/features"
	"github.com/char5742/scroll-offset-reader/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/uber-go/tally/v4"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DeviceReaderName は入力デバイスに紐づくリーダーの名前
const DeviceReaderName = "device"

// デバイス読み込みのポーリング間隔
const devicePollTimeout = 50 * time.Millisecond

var (
	// ErrAlreadyRunning はサービスが既に実行中の場合に返される
	ErrAlreadyRunning = errors.New("service is already running")
	// ErrNotRunning はサービスが実行されていない場合に返される
	ErrNotRunning = errors.New("service is not running")
	// ErrServiceClosed はサービスが終了済みの場合に返される
	ErrServiceClosed = errors.New("service is closed")
	// ErrNoMouse はマウスデバイスが見つからない場合に返される
	ErrNoMouse = errors.New("no mouse device found")
)

// ServiceOptions はスクロールサービスの設定
type ServiceOptions struct {
	Clock  clockwork.Clock
	Logger *zap.Logger
	Scope  tally.Scope

	// デバイスの検出とオープン（テストで差し替える）
	ScanDevices func() ([]features.Device, error)
	OpenMouse   func(path string) (features.Mouse, error)
}

// ScrollService は入力デバイスからのスクロール位置をサンプリングするサービス
// サンプラーの状態に触れる処理はすべて単一のイベントループ上で実行する
type ScrollService struct {
	opts     ServiceOptions
	logger   *zap.Logger
	loop     *features.Loop
	registry *ReaderRegistry

	cfgMutex sync.RWMutex
	cfg      *config.Config

	statusMutex  sync.Mutex
	running      *atomic.Bool
	failed       *atomic.Bool
	closed       *atomic.Bool
	stopChan     chan struct{}
	done         chan struct{}
	updateConfig chan *config.Config
}

// NewScrollService は新しいスクロールサービスを作成する
func NewScrollService(cfg *config.Config, opts ServiceOptions) *ScrollService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Scope == nil {
		opts.Scope = tally.NoopScope
	}
	if opts.ScanDevices == nil {
		opts.ScanDevices = features.ScanDevices
	}
	if opts.OpenMouse == nil {
		opts.OpenMouse = features.CreateMouse
	}

	loop := features.NewLoop(features.DefaultLoopQueueSize)
	return &ScrollService{
		opts:   opts,
		logger: opts.Logger,
		loop:   loop,
		registry: NewReaderRegistry(RegistryOptions{
			Clock:    opts.Clock,
			Executor: loop.Executor(),
			Logger:   opts.Logger,
			Scope:    opts.Scope.SubScope("reader"),
		}),
		cfg:          cfg,
		running:      atomic.NewBool(false),
		failed:       atomic.NewBool(false),
		closed:       atomic.NewBool(false),
		updateConfig: make(chan *config.Config, 1),
	}
}

// Registry はリーダーレジストリを返す
func (s *ScrollService) Registry() *ReaderRegistry {
	return s.registry
}

// Config は現在の設定を返す
func (s *ScrollService) Config() *config.Config {
	s.cfgMutex.RLock()
	defer s.cfgMutex.RUnlock()
	return s.cfg
}

// SubmitOffset は生オフセットをイベントループ上でリーダーに渡し、ゲートの判定結果を返す
func (s *ScrollService) SubmitOffset(name string, raw types.Offset) (bool, error) {
	sampler, err := s.registry.Get(name)
	if err != nil {
		return false, err
	}

	var accepted bool
	done := make(chan struct{})
	if !s.loop.Post(func() {
		accepted = sampler.Update(raw)
		close(done)
	}) {
		return false, ErrServiceClosed
	}
	<-done
	return accepted, nil
}

// Start はデバイスからのスクロール位置の取得を開始する
func (s *ScrollService) Start() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if s.closed.Load() {
		return ErrServiceClosed
	}
	if s.running.Load() {
		return ErrAlreadyRunning
	}

	cfg := s.Config()
	trackerOpts, err := cfg.TrackerOptions()
	if err != nil {
		return err
	}

	// デバイス一覧の取得
	devices, err := s.opts.ScanDevices()
	if err != nil {
		return fmt.Errorf("デバイス一覧の取得に失敗しました: %w", err)
	}
	device, ok := features.FindMouse(devices, cfg.Device.PreferredMouseDevice)
	if !ok {
		return ErrNoMouse
	}
	s.logger.Info("使用するマウス", zap.String("name", device.Name), zap.String("path", device.Path))

	mouse, err := s.opts.OpenMouse(device.Path)
	if err != nil {
		return fmt.Errorf("マウスデバイスのオープンに失敗しました[path=%s]: %w", device.Path, err)
	}
	if cfg.Device.Grab {
		if err := mouse.Grab(); err != nil {
			return multierr.Append(err, mouse.Close())
		}
	}

	if err := s.mountDeviceReader(cfg.Sampler.SamplerOptions()); err != nil {
		return multierr.Append(err, mouse.Close())
	}

	// 停止中に届いた設定は cfg に反映済み
	select {
	case <-s.updateConfig:
	default:
	}

	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	s.failed.Store(false)
	s.running.Store(true)

	go s.runScrollLoop(mouse, trackerOpts)
	return nil
}

// Stop はデバイスからの取得を停止し、デバイスリーダーをアンマウントする
func (s *ScrollService) Stop() error {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	if !s.running.Load() {
		return ErrNotRunning
	}

	close(s.stopChan)
	<-s.done
	s.running.Store(false)

	if err := s.registry.Unmount(DeviceReaderName); err != nil && !errors.Is(err, ErrReaderNotFound) {
		return err
	}
	return nil
}

// IsRunning はサービスが実行中かどうかを返す
func (s *ScrollService) IsRunning() bool {
	return s.running.Load() && !s.failed.Load()
}

// Status はサービスの状態を文字列で返す
func (s *ScrollService) Status() string {
	switch {
	case s.running.Load() && s.failed.Load():
		return "failed"
	case s.running.Load():
		return "running"
	default:
		return "stopped"
	}
}

// UpdateConfig は設定を更新する
// 実行中であればデバイスリーダーを新しい設定で再マウントする
func (s *ScrollService) UpdateConfig(cfg *config.Config) {
	s.cfgMutex.Lock()
	s.cfg = cfg
	s.cfgMutex.Unlock()

	select {
	case s.updateConfig <- cfg:
		// 設定更新チャネルに送信成功
	default:
		// チャネルがブロックされている場合は古い設定を破棄して新しい設定を送信
		select {
		case <-s.updateConfig:
		default:
		}
		s.updateConfig <- cfg
	}
}

// Close はサービスを停止し、すべてのリーダーとイベントループを終了する
func (s *ScrollService) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	var err error
	if s.running.Load() {
		if stopErr := s.Stop(); stopErr != nil && !errors.Is(stopErr, ErrNotRunning) {
			err = multierr.Append(err, stopErr)
		}
	}
	s.registry.CloseAll()
	s.loop.Close()
	return err
}

func (s *ScrollService) mountDeviceReader(opts features.SamplerOptions) error {
	sampler, err := s.registry.Mount(DeviceReaderName, opts)
	if err != nil {
		return err
	}
	sampler.Output().Subscribe(func(offset types.Offset) {
		s.logger.Info("スクロール位置", zap.Float64("dx", offset.DX), zap.Float64("dy", offset.DY))
	})
	return nil
}

// runScrollLoop はデバイスイベントを読み込み、スクロール位置をデバイスリーダーへ渡すメインループ
func (s *ScrollService) runScrollLoop(mouse features.Mouse, trackerOpts features.TrackerOptions) {
	defer close(s.done)
	defer func() {
		// サービス終了時にデバイスをクローズ
		if err := mouse.Close(); err != nil {
			s.logger.Warn("マウスデバイスのクローズに失敗しました", zap.Error(err))
		}
		s.logger.Info("スクロール位置の取得を停止しました")
	}()

	tracker := features.NewTracker(trackerOpts, s.postDeviceOffset)
	s.logger.Info("スクロール位置の取得を開始しました...")

	for {
		select {
		case <-s.stopChan:
			return
		case cfg := <-s.updateConfig:
			tracker = s.applyConfig(cfg, tracker)
		default:
		}

		events, err := mouse.ReadEvents(devicePollTimeout)
		if err != nil {
			s.logger.Error("デバイスの読み込みに失敗しました", zap.Error(err))
			s.failed.Store(true)
			<-s.stopChan
			return
		}
		for _, e := range events {
			tracker.HandleEvent(e)
		}
	}
}

// postDeviceOffset は生オフセットをイベントループ上でデバイスリーダーへ渡す
func (s *ScrollService) postDeviceOffset(raw types.Offset) {
	s.loop.Post(func() {
		sampler, err := s.registry.Get(DeviceReaderName)
		if err != nil {
			return
		}
		sampler.Update(raw)
	})
}

// applyConfig は新しい設定でデバイスリーダーとトラッカーを作り直す
// サンプラーの設定は生存期間中不変のため、再マウントで反映する
func (s *ScrollService) applyConfig(cfg *config.Config, tracker *features.Tracker) *features.Tracker {
	trackerOpts, err := cfg.TrackerOptions()
	if err != nil {
		s.logger.Warn("スクロール設定が不正です", zap.Error(err))
		return tracker
	}

	// 新しいリーダーは直前の出力値から始める
	opts := cfg.Sampler.SamplerOptions()
	if current, err := s.registry.Get(DeviceReaderName); err == nil {
		opts.Initial = current.Value()
	}

	if err := s.registry.Unmount(DeviceReaderName); err != nil && !errors.Is(err, ErrReaderNotFound) {
		s.logger.Warn("デバイスリーダーのアンマウントに失敗しました", zap.Error(err))
	}
	if err := s.mountDeviceReader(opts); err != nil {
		s.logger.Error("デバイスリーダーの再マウントに失敗しました", zap.Error(err))
		return tracker
	}
	s.logger.Info("設定を更新しました")

	next := features.NewTracker(trackerOpts, s.postDeviceOffset)
	next.SetOffset(tracker.Offset())
	return next
}
