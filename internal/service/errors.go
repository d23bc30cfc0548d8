package service

import (
	"errors"

	"earnlink/internal/repository"
)

var (
	ErrDuplicatePhone        = errors.New("手机号已注册")
	ErrUserNotFound          = errors.New("用户不存在")
	ErrInsufficientBalance   = errors.New("余额不足")
	ErrBelowMinimum          = errors.New("低于最低提现金额")
	ErrInvalidAmount         = errors.New("金额必须大于0")
	ErrTransactionNotFound   = errors.New("流水不存在")
	ErrTransactionNotPending = errors.New("该流水不是待审核的提现")
	ErrReferralCodeExhausted = errors.New("生成邀请码失败，请重试")
	ErrSessionNotFound       = errors.New("未登录或会话已过期")
	ErrAdminKeyInvalid       = errors.New("管理员口令错误")
)

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}
