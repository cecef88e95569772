package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultReloadDebounce は連続したファイルイベントをまとめる待ち時間
const DefaultReloadDebounce = 200 * time.Millisecond

// ReloadCallback は設定ファイルの再読み込みに成功した時に呼び出される
type ReloadCallback func(cfg *Config)

// Watcher は設定ファイルの変更を監視して再読み込みする
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadCallback
	logger   *zap.Logger

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher は設定ファイルの監視を開始する
// エディタによるファイルの置き換えにも対応するため、親ディレクトリを監視する
func NewWatcher(path string, debounce time.Duration, logger *zap.Logger, onReload ReloadCallback) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	path = filepath.Clean(path)
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		debounce: debounce,
		onReload: onReload,
		logger:   logger.With(zap.String("path", path)),
		watcher:  fw,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.watchEvents()
	return w, nil
}

// Close は監視を停止する
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		<-w.done
		err = w.watcher.Close()
	})
	return err
}

// watchEvents はfsnotifyのイベントを監視する
func (w *Watcher) watchEvents() {
	defer close(w.done)

	// 一時的なファイルシステムイベントをまとめて処理するためのタイマー
	reloadTimer := time.NewTimer(w.debounce)
	reloadTimer.Stop()
	defer reloadTimer.Stop()
	pendingReload := false

	for {
		select {
		case <-w.stopChan:
			return

		case <-reloadTimer.C:
			if pendingReload {
				pendingReload = false
				w.reload()
			}

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !pendingReload {
				pendingReload = true
				reloadTimer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("設定ファイルの監視エラー", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := ReadConfig(w.path)
	if err != nil {
		w.logger.Warn("設定ファイルの再読み込みに失敗しました。現在の設定を維持します", zap.Error(err))
		return
	}
	w.logger.Info("設定ファイルを再読み込みしました")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
