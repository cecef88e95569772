package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/char5742/scroll-offset-reader/internal/config"
	"go.uber.org/zap"
)

// シャットダウン時に処理中のリクエストを待つ時間
const shutdownTimeout = 5 * time.Second

// Server はAPIサーバーを表す構造体
type Server struct {
	server  *http.Server
	service *ScrollService
	logger  *zap.Logger
	mutex   sync.RWMutex
	port    int
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(service *ScrollService, port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		logger:  logger,
		port:    port,
	}
}

// Handler はAPIのルーターを返す
func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	s.setupRoutes(router)
	return router
}

// Start はAPIサーバーを開始する
func (s *Server) Start() error {
	s.mutex.Lock()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.server
	s.mutex.Unlock()

	// サーバーの起動
	s.logger.Info("APIサーバーを開始します", zap.String("url", s.URL()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop はAPIサーバーを停止する
func (s *Server) Stop() error {
	s.mutex.RLock()
	server := s.server
	s.mutex.RUnlock()

	if server == nil {
		return nil
	}
	s.logger.Info("APIサーバーを停止します...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// URL はステータスページのURLを返す
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d/", s.port)
}

// GetConfig は現在の設定を返す
func (s *Server) GetConfig() *config.Config {
	return s.service.Config()
}

// UpdateConfig は設定を更新する
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.service.UpdateConfig(cfg)
}

// writeJSON はJSONレスポンスを書き込む
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Warn("JSONエンコードエラー", zap.Error(err))
		}
	}
}

// writeError はエラーレスポンスを書き込む
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"error": message}
	s.writeJSON(w, status, response)
}
