package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sharedcam/internal/camera"
	"sharedcam/internal/config"
)

// CaptureHandler はカメラセッションとキャプチャ制御のAPIを実装する
type CaptureHandler struct {
	config  *config.Config
	manager camera.Manager
}

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionResponse はセッション詳細のレスポンス
type SessionResponse struct {
	ID        string        `json:"id"`
	CameraID  string        `json:"camera_id"`
	CreatedAt time.Time     `json:"created_at"`
	LastError string        `json:"last_error,omitempty"`
	Status    camera.Status `json:"status"`
}

// CreateSessionRequest はセッション作成のリクエスト（省略時は設定値）
type CreateSessionRequest struct {
	CameraID  string `json:"camera_id"`
	AutoFocus *bool  `json:"auto_focus"`
}

// ToggleRequest は制御の切り替えリクエスト
// enabled を省略すると現在の状態を反転する
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// AreaRequest は測光リクエスト
// x, y を省略すると画像中心、area_size を省略するとデフォルトサイズになる
type AreaRequest struct {
	X        *int `json:"x"`
	Y        *int `json:"y"`
	AreaSize *int `json:"area_size"`
}

// controlOps はURLの制御名ごとの操作
type controlOps struct {
	set    func(c *camera.Controller, enabled bool) error
	toggle func(c *camera.Controller) error
	area   func(c *camera.Controller, x, y, areaSize int) error
	center func(c *camera.Controller) error
}

var controls = map[string]controlOps{
	"af": {
		set:    (*camera.Controller).SetAutoFocus,
		toggle: (*camera.Controller).ToggleAutoFocus,
		area:   (*camera.Controller).AutoFocusOnArea,
		center: (*camera.Controller).AutoFocusOnCenter,
	},
	"ae": {
		set:    (*camera.Controller).SetAutoExposure,
		toggle: (*camera.Controller).ToggleAutoExposure,
		area:   (*camera.Controller).AutoExposureOnArea,
		center: (*camera.Controller).AutoExposureOnCenter,
	},
	"awb": {
		set:    (*camera.Controller).SetAutoWhiteBalance,
		toggle: (*camera.Controller).ToggleAutoWhiteBalance,
		area:   (*camera.Controller).AutoWhiteBalanceOnArea,
		center: (*camera.Controller).AutoWhiteBalanceOnCenter,
	},
	"flash": {
		set:    (*camera.Controller).SetFlash,
		toggle: (*camera.Controller).ToggleFlash,
	},
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *CaptureHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *CaptureHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": h.config.Server.Host,
			"port": h.config.Server.Port,
		},
		"driver":    h.config.Camera.Driver,
		"sessions":  len(h.manager.List()),
		"timestamp": time.Now(),
	})
}

// CreateSession はカメラを開いてセッションを作成する
func (h *CaptureHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid_request", err.Error())
			return
		}
	}

	cameraID := req.CameraID
	if cameraID == "" {
		cameraID = h.config.Camera.CameraID
	}
	autoFocus := h.config.Camera.AutoFocusOnOpen
	if req.AutoFocus != nil {
		autoFocus = *req.AutoFocus
	}

	surfaces := make([]camera.Surface, 0, len(h.config.Camera.Surfaces))
	for _, s := range h.config.Camera.Surfaces {
		surfaces = append(surfaces, camera.Surface(s))
	}
	shared := camera.NewStaticSharedCamera(cameraID, camera.Size{
		Width:  h.config.Camera.Width,
		Height: h.config.Camera.Height,
	}, surfaces)

	session, err := h.manager.Open(c.Request.Context(), shared, autoFocus)
	if err != nil {
		writeError(c, err)
		return
	}

	resp, err := sessionResponse(c.Request.Context(), session)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListSessions はセッション一覧を返す
func (h *CaptureHandler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.manager.List(),
	})
}

// GetSession はセッションの詳細と制御状態を返す
func (h *CaptureHandler) GetSession(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}

	resp, err := sessionResponse(c.Request.Context(), session)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteSession はセッションを閉じる
func (h *CaptureHandler) DeleteSession(c *gin.Context) {
	if err := h.manager.Close(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleControl はAF/AE/AWB/フラッシュの定常状態を切り替える
// 制御は非同期に適用されるため 202 を返す
func (h *CaptureHandler) ToggleControl(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	ops, ok := lookupControl(c)
	if !ok {
		return
	}

	var req ToggleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid_request", err.Error())
			return
		}
	}

	var err error
	if req.Enabled != nil {
		err = ops.set(session.Controller(), *req.Enabled)
	} else {
		err = ops.toggle(session.Controller())
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"session_id": session.ID,
		"control":    c.Param("control"),
		"accepted":   true,
	})
}

// MeterArea は指定位置で測光し、収束後に定常状態へ戻す
func (h *CaptureHandler) MeterArea(c *gin.Context) {
	session, ok := h.lookup(c)
	if !ok {
		return
	}
	ops, ok := lookupControl(c)
	if !ok {
		return
	}
	if ops.area == nil {
		writeBadRequest(c, "unsupported_control", "この制御は測光領域に対応していません")
		return
	}

	var req AreaRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "invalid_request", err.Error())
			return
		}
	}
	if (req.X == nil) != (req.Y == nil) {
		writeBadRequest(c, "invalid_request", "x と y は両方指定するか両方省略してください")
		return
	}

	var err error
	if req.X == nil {
		err = ops.center(session.Controller())
	} else {
		areaSize := 0
		if req.AreaSize != nil {
			areaSize = *req.AreaSize
		}
		err = ops.area(session.Controller(), *req.X, *req.Y, areaSize)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"session_id": session.ID,
		"control":    c.Param("control"),
		"accepted":   true,
	})
}

// ヘルパー関数

func (h *CaptureHandler) lookup(c *gin.Context) (*camera.Session, bool) {
	session, ok := h.manager.Get(c.Param("id"))
	if !ok {
		writeError(c, camera.ErrSessionNotFound)
		return nil, false
	}
	return session, true
}

func lookupControl(c *gin.Context) (controlOps, bool) {
	ops, ok := controls[c.Param("control")]
	if !ok {
		writeBadRequest(c, "unknown_control", "未知の制御です: "+c.Param("control"))
		return controlOps{}, false
	}
	return ops, true
}

func sessionResponse(ctx context.Context, session *camera.Session) (SessionResponse, error) {
	st, err := session.Controller().Status(ctx)
	if err != nil {
		return SessionResponse{}, err
	}

	resp := SessionResponse{
		ID:        session.ID,
		CameraID:  session.CameraID,
		CreatedAt: session.CreatedAt,
		Status:    st,
	}
	if lastErr := session.LastError(); lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	return resp, nil
}

func writeBadRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// writeError はカメラのエラーをHTTPステータスに変換して返す
func writeError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, camera.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, camera.ErrCameraInUse):
		return http.StatusConflict, "camera_in_use"
	case errors.Is(err, camera.ErrNotReady):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, camera.ErrClosed):
		return http.StatusGone, "closed"
	case errors.Is(err, camera.ErrDriverRejected):
		return http.StatusUnprocessableEntity, "driver_rejected"
	case errors.Is(err, camera.ErrConfigureFailed):
		return http.StatusBadGateway, "configure_failed"
	case errors.Is(err, camera.ErrDeviceFailed):
		return http.StatusBadGateway, "device_failed"
	case errors.Is(err, camera.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, camera.ErrUnsupportedPlatform):
		return http.StatusNotImplemented, "unsupported_platform"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
