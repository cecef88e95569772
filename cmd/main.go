package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/char5742/scroll-offset-reader/internal/api"
	"github.com/char5742/scroll-offset-reader/internal/config"
	"github.com/char5742/scroll-offset-reader/internal/instrument"
	"github.com/pkg/browser"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	// コマンドライン引数の解析
	useApi := flag.Bool("api", false, "APIサーバーモードで起動します")
	configPath := flag.String("config", "", "設定ファイルのパス (指定しない場合はデフォルトパスを使用)")
	port := flag.Int("port", 8080, "APIサーバーのポート番号")
	openPage := flag.Bool("open", false, "APIサーバーモードでステータスページをブラウザで開きます")
	logLevel := flag.String("log-level", "", "ログレベル (設定ファイルの値を上書き)")
	flag.Parse()

	// デフォルト設定ファイルパスの設定
	defaultConfigPath := ""
	configDir, err := config.GetDefaultConfigDir()
	if err == nil {
		defaultConfigPath = filepath.Join(configDir, "config.toml")
	}

	// 設定ファイルパスの決定
	cfgPath := defaultConfigPath
	if *configPath != "" {
		cfgPath = *configPath
	}

	// 設定ファイルの読み込み
	cfg := config.DefaultConfig()
	var loadErr error
	if cfgPath != "" {
		cfg, loadErr = config.LoadConfig(cfgPath)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ロガーの作成に失敗しました: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if loadErr != nil {
		logger.Warn("設定ファイルの読み込みに失敗しました。デフォルト設定を使用します",
			zap.String("path", cfgPath), zap.Error(loadErr))
	} else if cfgPath != "" {
		logger.Info("設定ファイルを読み込みました", zap.String("path", cfgPath))
	}

	scope, scopeCloser := instrument.NewRootScope("scroll_offset_reader", logger, cfg.Metrics.ReportInterval.Std())
	defer scopeCloser.Close()

	service := api.NewScrollService(cfg, api.ServiceOptions{
		Logger: logger,
		Scope:  scope,
	})

	// 設定ファイルの変更を監視
	if cfgPath != "" {
		watcher, err := config.NewWatcher(cfgPath, config.DefaultReloadDebounce, logger, service.UpdateConfig)
		if err != nil {
			logger.Warn("設定ファイルの監視を開始できませんでした", zap.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	// シグナルハンドラの設定
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// APIモードかCLIモードかを判断
	if *useApi {
		err = runApiServer(ctx, service, *port, *openPage, logger)
	} else {
		err = runCLI(ctx, service, logger)
	}
	if err != nil {
		logger.Error("終了します", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// APIサーバーモードでの実行
func runApiServer(ctx context.Context, service *api.ScrollService, port int, openPage bool, logger *zap.Logger) error {
	server := api.NewServer(service, port, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if openPage {
		if err := browser.OpenURL(server.URL()); err != nil {
			logger.Warn("ブラウザを開けませんでした", zap.Error(err))
		}
	}

	select {
	case err := <-errCh:
		return multierr.Append(err, service.Close())
	case <-ctx.Done():
		logger.Info("シャットダウンします...")
		return multierr.Append(server.Stop(), service.Close())
	}
}

// CLIモードでの実行
func runCLI(ctx context.Context, service *api.ScrollService, logger *zap.Logger) error {
	// サービス開始
	if err := service.Start(); err != nil {
		return multierr.Append(fmt.Errorf("スクロールサービスの起動に失敗しました: %w", err), service.Close())
	}

	// シグナルが来るまで待機
	<-ctx.Done()
	logger.Info("シャットダウンします...")
	return service.Close()
}
