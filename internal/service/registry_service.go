package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"earnlink/internal/config"
	"earnlink/internal/infrastructure/lock"
	"earnlink/internal/model"
	"earnlink/internal/repository"
	"earnlink/pkg/idgen"
)

const profileSyncTimeout = 10 * time.Second

// RegistryService 用户注册与查询
type RegistryService struct {
	store        repository.Store
	locker       lock.Locker
	syncer       ProfileSyncer
	rewards      *RewardService
	codeAttempts int
	topic        string

	// 邀请码随机后缀，测试中可替换
	suffix func() int
}

func NewRegistryService(deps Dependencies, cfg *config.Config, rewards *RewardService) *RegistryService {
	attempts := cfg.Business.ReferralCodeAttempts
	if attempts <= 0 {
		attempts = 10
	}
	return &RegistryService{
		store:        deps.Store,
		locker:       deps.Locker,
		syncer:       deps.Syncer,
		rewards:      rewards,
		codeAttempts: attempts,
		topic:        cfg.Kafka.Topic.UserRegistered,
		suffix:       func() int { return 1000 + rand.Intn(9000) },
	}
}

type SignUpRequest struct {
	Username     string  `json:"username" binding:"required"`
	Phone        string  `json:"phone" binding:"required"`
	Email        *string `json:"email"`
	Avatar       *string `json:"avatar"`
	ReferralCode string  `json:"referral_code"`
}

type userRegisteredEvent struct {
	UserID       int64  `json:"user_id,string"`
	Username     string `json:"username"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referral_code"`
	ReferrerID   *int64 `json:"referrer_id,string,omitempty"`
	OccurredAt   int64  `json:"occurred_at"`
}

// errUniqueConflict 插入用户时命中唯一索引，需要区分手机号和邀请码
var errUniqueConflict = errors.New("唯一索引冲突")

// SignUp 注册新用户并发放奖励
//
// 流程：
// 1. 按手机号加锁
// 2. 开启事务：校验手机号、解析邀请人、生成邀请码、创建用户、发放奖励、写消息表
// 3. 插入命中唯一索引时事务回滚；手机号已存在返回 ErrDuplicatePhone，否则是邀请码被并发注册占用，换后缀重试
// 4. 提交后异步同步用户资料，失败只记录日志
func (s *RegistryService) SignUp(ctx context.Context, req *SignUpRequest) (*model.User, error) {
	release, err := s.locker.Acquire(ctx, lock.SignUpKey(req.Phone), req.Phone)
	if err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer release()

	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		user, err := s.signUpOnce(ctx, req)
		if err == nil {
			log.Printf("用户注册成功: userID=%d, phone=%s, code=%s", user.ID, user.Phone, user.ReferralCode)
			s.syncProfileAsync(user)
			return user, nil
		}
		if !errors.Is(err, errUniqueConflict) {
			return nil, err
		}

		_, lookupErr := s.store.Users().GetByPhone(ctx, req.Phone)
		if lookupErr == nil {
			return nil, ErrDuplicatePhone
		}
		if !errors.Is(lookupErr, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("查询手机号失败: %w", lookupErr)
		}
		log.Printf("邀请码冲突，重新生成: phone=%s, attempt=%d", req.Phone, attempt)
	}
	return nil, ErrReferralCodeExhausted
}

func (s *RegistryService) signUpOnce(ctx context.Context, req *SignUpRequest) (*model.User, error) {
	var user *model.User
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Users().GetByPhone(ctx, req.Phone); err == nil {
			return ErrDuplicatePhone
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("查询手机号失败: %w", err)
		}

		referrer, grandReferrer, err := s.resolveReferrers(ctx, tx, req.ReferralCode)
		if err != nil {
			return err
		}

		code, err := s.generateReferralCode(ctx, tx, req.Username)
		if err != nil {
			return err
		}

		newUser := &model.User{
			ID:           idgen.GenerateUserID(),
			Username:     req.Username,
			Phone:        req.Phone,
			Email:        optional(req.Email),
			Avatar:       optional(req.Avatar),
			ReferralCode: code,
			CreatedAt:    time.Now(),
		}
		if referrer != nil {
			referrerID := referrer.ID
			newUser.ReferrerID = &referrerID
		}
		if err := tx.Users().Create(ctx, newUser); err != nil {
			if errors.Is(err, repository.ErrDuplicateUser) {
				return errUniqueConflict
			}
			return fmt.Errorf("创建用户失败: %w", err)
		}

		if err := s.rewards.Attribute(ctx, tx, newUser, referrer, grandReferrer); err != nil {
			return err
		}

		event := userRegisteredEvent{
			UserID:       newUser.ID,
			Username:     newUser.Username,
			Phone:        newUser.Phone,
			ReferralCode: newUser.ReferralCode,
			ReferrerID:   newUser.ReferrerID,
			OccurredAt:   time.Now().Unix(),
		}
		if err := writeOutbox(ctx, tx, s.topic, model.EventUserRegistered, newUser.ID, event); err != nil {
			return err
		}

		user, err = tx.Users().GetByID(ctx, newUser.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// resolveReferrers 邀请码匹配不到时按无邀请人处理；上上级不存在时只发直接奖励
func (s *RegistryService) resolveReferrers(ctx context.Context, tx repository.Store, code string) (*model.User, *model.User, error) {
	if code == "" {
		return nil, nil, nil
	}

	referrer, err := tx.Users().GetByReferralCode(ctx, code)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("查询邀请人失败: %w", err)
	}
	if referrer.ReferrerID == nil {
		return referrer, nil, nil
	}

	grandReferrer, err := tx.Users().GetByID(ctx, *referrer.ReferrerID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return referrer, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("查询间接邀请人失败: %w", err)
	}
	return referrer, grandReferrer, nil
}

// generateReferralCode 用户名小写去空白 + 4 位随机数，冲突时重新生成
func (s *RegistryService) generateReferralCode(ctx context.Context, tx repository.Store, username string) (string, error) {
	base := strings.ToLower(strings.Join(strings.Fields(username), ""))
	for i := 0; i < s.codeAttempts; i++ {
		code := fmt.Sprintf("%s%d", base, s.suffix())
		_, err := tx.Users().GetByReferralCode(ctx, code)
		if errors.Is(err, repository.ErrUserNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("查询邀请码失败: %w", err)
		}
	}
	return "", ErrReferralCodeExhausted
}

func (s *RegistryService) syncProfileAsync(user *model.User) {
	if s.syncer == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[ProfileSync] panic: userID=%d, err=%v", user.ID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), profileSyncTimeout)
		defer cancel()
		if err := s.syncer.SyncProfile(ctx, user); err != nil {
			log.Printf("[ProfileSync] 同步用户资料失败，不影响注册: userID=%d, err=%v", user.ID, err)
		}
	}()
}

func (s *RegistryService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

// GetUserByCode 邀请码精确匹配
func (s *RegistryService) GetUserByCode(ctx context.Context, code string) (*model.User, error) {
	user, err := s.store.Users().GetByReferralCode(ctx, code)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

func (s *RegistryService) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

// ListUsers 按注册顺序返回
func (s *RegistryService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.store.Users().ListAll(ctx)
}

func optional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
