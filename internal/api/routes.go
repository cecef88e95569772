package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/char5742/scroll-offset-reader/internal/config"
	"github.com/char5742/scroll-offset-reader/internal/features"
	"github.com/char5742/scroll-offset-reader/internal/types"
)

// ルートの設定
func (s *Server) setupRoutes(router *http.ServeMux) {
	// ステータスページ
	router.HandleFunc("GET /{$}", s.handleStatusPage)

	// 設定関連のエンドポイント
	router.HandleFunc("GET /api/config", s.handleGetConfig)
	router.HandleFunc("PUT /api/config", s.handleUpdateConfig)
	router.HandleFunc("POST /api/config/save", s.handleSaveConfig)

	// リーダー関連のエンドポイント
	router.HandleFunc("GET /api/readers", s.handleListReaders)
	router.HandleFunc("POST /api/readers/{name}", s.handleMountReader)
	router.HandleFunc("DELETE /api/readers/{name}", s.handleUnmountReader)
	router.HandleFunc("POST /api/readers/{name}/raw", s.handleRawOffset)
	router.HandleFunc("GET /api/readers/{name}/offset", s.handleGetOffset)

	// サービス関連のエンドポイント
	router.HandleFunc("POST /api/service/start", s.handleStartService)
	router.HandleFunc("POST /api/service/stop", s.handleStopService)
	router.HandleFunc("GET /api/service/status", s.handleServiceStatus)

	// ヘルスチェック用エンドポイント
	router.HandleFunc("GET /api/health", s.handleHealthCheck)
}

// errorStatus はエラーに対応するHTTPステータスを返す
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrReaderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrReaderExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidReaderName),
		errors.Is(err, features.ErrInvalidTickInterval),
		errors.Is(err, features.ErrInvalidMinDelta),
		errors.Is(err, config.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrServiceClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody はリクエストボディをデコードする。空のボディは許可する
func decodeBody(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ステータスページハンドラ
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, statusPage)
}

// 設定取得ハンドラ
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.GetConfig())
}

// 設定更新ハンドラ
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	newConfig := *s.GetConfig()

	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		s.writeError(w, http.StatusBadRequest, "設定の解析に失敗しました")
		return
	}
	if err := newConfig.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.UpdateConfig(&newConfig)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// 設定保存ハンドラ
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var saveRequest struct {
		Path string `json:"path"`
	}

	if err := decodeBody(r, &saveRequest); err != nil {
		s.writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	configPath := saveRequest.Path
	if configPath == "" {
		// デフォルトパスを使用
		userConfigDir, err := config.GetDefaultConfigDir()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "デフォルト設定ディレクトリの取得に失敗しました")
			return
		}
		configPath = filepath.Join(userConfigDir, "config.toml")
	}

	if err := config.SaveConfig(configPath, s.GetConfig()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "設定の保存に失敗しました: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"path":   configPath,
	})
}

// リーダー一覧取得ハンドラ
func (s *Server) handleListReaders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string][]string{"readers": s.service.Registry().Names()})
}

type mountRequest struct {
	TickInterval *config.Duration `json:"tick_interval"`
	MinDelta     *float64         `json:"min_delta"`
	Initial      *types.Offset    `json:"initial"`
}

// リーダーのマウントハンドラ
func (s *Server) handleMountReader(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var request mountRequest
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, http.StatusBadRequest, "リクエストの解析に失敗しました")
		return
	}

	opts := s.GetConfig().Sampler.SamplerOptions()
	if request.TickInterval != nil {
		opts.TickInterval = request.TickInterval.Std()
	}
	if request.MinDelta != nil {
		opts.MinDelta = *request.MinDelta
	}
	if request.Initial != nil {
		opts.Initial = *request.Initial
	}

	if _, err := s.service.Registry().Mount(name, opts); err != nil {
		s.writeError(w, errorStatus(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "mounted", "reader": name})
}

// リーダーのアンマウントハンドラ
func (s *Server) handleUnmountReader(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.service.Registry().Unmount(name); err != nil {
		s.writeError(w, errorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "unmounted", "reader": name})
}

// 生オフセット受信ハンドラ
func (s *Server) handleRawOffset(w http.ResponseWriter, r *http.Request) {
	var raw types.Offset
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, "オフセットの解析に失敗しました")
		return
	}

	accepted, err := s.service.SubmitOffset(r.PathValue("name"), raw)
	if err != nil {
		s.writeError(w, errorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// 現在のオフセット取得ハンドラ
func (s *Server) handleGetOffset(w http.ResponseWriter, r *http.Request) {
	sampler, err := s.service.Registry().Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, errorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sampler.Value())
}

// サービス起動ハンドラ
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Start(); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの起動に失敗しました: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// サービス停止ハンドラ
func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Stop(); err != nil {
		if errors.Is(err, ErrNotRunning) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "not_running"})
			return
		}
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("サービスの停止に失敗しました: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// サービス状態取得ハンドラ
func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": s.service.Status()})
}

// ヘルスチェックハンドラ
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
