package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound は指定IDのセッションが存在しない場合に返される
	ErrSessionNotFound = errors.New("セッションが見つかりません")

	// ErrCameraInUse は同じカメラのセッションが既に存在する場合に返される
	ErrCameraInUse = errors.New("カメラは既に使用中です")
)

// Session はマネージャーが管理する1つのカメラセッション
type Session struct {
	ID        string
	CameraID  string
	CreatedAt time.Time

	controller *Controller

	mu      sync.RWMutex
	lastErr error
}

// Controller はセッションのControllerを返す
func (s *Session) Controller() *Controller {
	return s.controller
}

// LastError は最後に通知された非同期エラーを返す
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Session) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// SessionInfo はセッション一覧用の情報
type SessionInfo struct {
	ID        string         `json:"id"`
	CameraID  string         `json:"camera_id"`
	State     LifecycleState `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	LastError string         `json:"last_error,omitempty"`
}

// Manager はカメラセッションの生成と破棄を担う
type Manager interface {
	// Open はカメラを開き、ready になったセッションを登録する
	Open(ctx context.Context, shared SharedCamera, autoFocus bool) (*Session, error)

	// Get は指定IDのセッションを返す
	Get(id string) (*Session, bool)

	// List は登録中のセッション一覧を返す
	List() []SessionInfo

	// Close は指定IDのセッションを閉じて登録を解除する
	Close(ctx context.Context, id string) error

	// CloseAll は全セッションを閉じる
	CloseAll(ctx context.Context) error
}

// DefaultManager はManagerのデフォルト実装
type DefaultManager struct {
	driver Driver
	opts   Options
	logger *zap.Logger

	sessions map[string]*Session
	opening  map[string]bool // オープン処理中のカメラID
	mu       sync.RWMutex

	// エラー監視ゴルーチン用
	wg sync.WaitGroup
}

// NewDefaultManager は新しいDefaultManagerを作成する
func NewDefaultManager(driver Driver, opts Options) *DefaultManager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DefaultManager{
		driver:   driver,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
		opening:  make(map[string]bool),
	}
}

// Open はカメラを開き、ready になったセッションを登録する
// autoFocus が true なら開いた直後にオートフォーカスを有効にする
func (m *DefaultManager) Open(ctx context.Context, shared SharedCamera, autoFocus bool) (*Session, error) {
	cameraID := shared.CameraID()

	if err := m.reserve(cameraID); err != nil {
		return nil, err
	}
	defer m.unreserve(cameraID)

	ctrl, err := NewController(m.driver, shared, m.opts)
	if err != nil {
		return nil, err
	}
	if err := ctrl.Open(ctx); err != nil {
		return nil, err
	}

	if autoFocus {
		if err := ctrl.SetAutoFocus(true); err != nil {
			_ = ctrl.Close(ctx)
			return nil, fmt.Errorf("オートフォーカスの有効化に失敗: %w", err)
		}
	}

	session := &Session{
		ID:         uuid.New().String(),
		CameraID:   cameraID,
		CreatedAt:  time.Now(),
		controller: ctrl,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watchErrors(session)

	m.logger.Info("カメラセッションを開始しました",
		zap.String("session_id", session.ID),
		zap.String("camera_id", cameraID))

	return session, nil
}

// reserve はカメラIDをオープン処理中として登録する
func (m *DefaultManager) reserve(cameraID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opening[cameraID] {
		return fmt.Errorf("カメラ %s はオープン処理中です: %w", cameraID, ErrCameraInUse)
	}
	for _, s := range m.sessions {
		if s.CameraID == cameraID {
			return fmt.Errorf("カメラ %s はセッション %s で開かれています: %w", cameraID, s.ID, ErrCameraInUse)
		}
	}
	m.opening[cameraID] = true
	return nil
}

func (m *DefaultManager) unreserve(cameraID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.opening, cameraID)
}

// Get は指定IDのセッションを返す
func (m *DefaultManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	return s, ok
}

// List は登録中のセッション一覧を返す
func (m *DefaultManager) List() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		info := SessionInfo{
			ID:        s.ID,
			CameraID:  s.CameraID,
			State:     s.controller.State(),
			CreatedAt: s.CreatedAt,
		}
		if err := s.LastError(); err != nil {
			info.LastError = err.Error()
		}
		infos = append(infos, info)
	}

	return infos
}

// Close は指定IDのセッションを閉じて登録を解除する
func (m *DefaultManager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	if err := s.controller.Close(ctx); err != nil {
		return fmt.Errorf("セッション %s の停止に失敗: %w", id, err)
	}

	m.logger.Info("カメラセッションを終了しました", zap.String("session_id", id))
	return nil
}

// CloseAll は全セッションを閉じ、エラー監視の終了を待つ
func (m *DefaultManager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var closeErrors []error
	for id, s := range sessions {
		if err := s.controller.Close(ctx); err != nil && !errors.Is(err, ErrClosed) {
			closeErrors = append(closeErrors, fmt.Errorf("セッション %s の停止に失敗: %w", id, err))
		}
	}

	m.wg.Wait()

	if len(closeErrors) > 0 {
		return fmt.Errorf("一部のセッション停止に失敗: %w", errors.Join(closeErrors...))
	}
	return nil
}

// watchErrors はControllerの非同期エラーを記録する
// Controllerがシャットダウンしてチャンネルが閉じると終了する
func (m *DefaultManager) watchErrors(s *Session) {
	defer m.wg.Done()

	for err := range s.controller.Errors() {
		s.setLastError(err)
		m.logger.Warn("カメラセッションでエラーが発生",
			zap.String("session_id", s.ID),
			zap.Error(err))
	}
}
