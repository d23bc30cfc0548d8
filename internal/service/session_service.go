package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"earnlink/internal/model"
	"earnlink/internal/repository"
	"earnlink/internal/session"

	"github.com/google/uuid"
)

// SessionService 登录会话。令牌是不透明的随机串，会话内容保存在服务端
type SessionService struct {
	store    repository.Store
	sessions session.Store
	adminKey string
}

func NewSessionService(deps Dependencies, adminKey string) *SessionService {
	return &SessionService{store: deps.Store, sessions: deps.Sessions, adminKey: adminKey}
}

func (s *SessionService) open(ctx context.Context, userID int64, admin bool) (*session.Session, error) {
	sess := &session.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		IsAdmin:   admin,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("保存会话失败: %w", err)
	}
	return sess, nil
}

func (s *SessionService) Login(ctx context.Context, userID int64) (*session.Session, error) {
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return nil, mapUserErr(err)
	}
	return s.open(ctx, userID, false)
}

// LoginByEmail 已绑定邮箱的用户直接登录
func (s *SessionService) LoginByEmail(ctx context.Context, email string) (*session.Session, *model.User, error) {
	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, nil, mapUserErr(err)
	}
	sess, err := s.open(ctx, user.ID, false)
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

// LoginAsAdmin 未配置管理员口令时不校验
func (s *SessionService) LoginAsAdmin(ctx context.Context, key string) (*session.Session, error) {
	if s.adminKey != "" && subtle.ConstantTimeCompare([]byte(s.adminKey), []byte(key)) != 1 {
		return nil, ErrAdminKeyInvalid
	}
	return s.open(ctx, 0, true)
}

func (s *SessionService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

func (s *SessionService) Get(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// CurrentUser 会话绑定的用户；管理员会话没有用户
func (s *SessionService) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.UserID == 0 {
		return nil, ErrUserNotFound
	}
	user, err := s.store.Users().GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

func (s *SessionService) IsAdmin(ctx context.Context, token string) bool {
	sess, err := s.Get(ctx, token)
	return err == nil && sess.IsAdmin
}
