package profilesync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"earnlink/internal/config"
	"earnlink/internal/model"

	"github.com/go-resty/resty/v2"
)

// Client 把用户资料 upsert 到 Supabase 兼容的 REST 接口
//
// POST {base_url}/rest/v1/{table}，Prefer: resolution=merge-duplicates 实现按主键覆盖
type Client struct {
	http  *resty.Client
	table string
}

func NewClient(cfg *config.ProfileSyncConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("apikey", cfg.APIKey).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	table := cfg.Table
	if table == "" {
		table = "profiles"
	}

	return &Client{http: httpClient, table: table}
}

// ToProfile 外部资料库使用的字段
func ToProfile(user *model.User) model.Profile {
	return model.Profile{
		ID:           fmt.Sprintf("%d", user.ID),
		Username:     user.Username,
		Phone:        user.Phone,
		Email:        user.Email,
		Avatar:       user.Avatar,
		ReferralCode: user.ReferralCode,
		Balance:      user.Balance,
		TotalEarned:  user.TotalEarned,
		CreatedAt:    user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// SyncProfile upsert 单个用户资料
func (c *Client) SyncProfile(ctx context.Context, user *model.User) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates").
		SetBody(ToProfile(user)).
		Post("/rest/v1/" + c.table)
	if err != nil {
		return fmt.Errorf("同步用户资料失败: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("同步用户资料失败: status=%s, body=%s", resp.Status(), resp.String())
	}

	return nil
}
