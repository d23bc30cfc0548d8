package handler

import (
	"errors"
	"log"
	"strconv"

	"earnlink/internal/config"
	"earnlink/internal/service"
	"earnlink/pkg/response"

	"github.com/gin-gonic/gin"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	pricing    config.PricingConfig
	registry   *service.RegistryService
	ledger     *service.LedgerService
	withdrawal *service.WithdrawalService
	referral   *service.ReferralService
	sessions   *service.SessionService
	admin      *service.AdminService
}

func NewHandler(deps service.Dependencies, cfg *config.Config) *Handler {
	ledger := service.NewLedgerService(deps)
	return &Handler{
		pricing:    cfg.Pricing,
		registry:   service.NewRegistryService(deps, cfg, service.NewRewardService(cfg.Pricing, ledger)),
		ledger:     ledger,
		withdrawal: service.NewWithdrawalService(deps, cfg, ledger),
		referral:   service.NewReferralService(deps),
		sessions:   service.NewSessionService(deps, cfg.Server.AdminKey),
		admin:      service.NewAdminService(deps),
	}
}

var errorCodes = []struct {
	err  error
	code int
}{
	{service.ErrDuplicatePhone, response.CodeDuplicatePhone},
	{service.ErrUserNotFound, response.CodeUserNotFound},
	{service.ErrInsufficientBalance, response.CodeBalanceNotEnough},
	{service.ErrBelowMinimum, response.CodeBelowMinimum},
	{service.ErrInvalidAmount, response.CodeInvalidAmount},
	{service.ErrTransactionNotFound, response.CodeTransactionNotFound},
	{service.ErrTransactionNotPending, response.CodeTransactionNotPending},
	{service.ErrReferralCodeExhausted, response.CodeReferralCodeExhausted},
	{service.ErrSessionNotFound, response.CodeUnauthorized},
	{service.ErrAdminKeyInvalid, response.CodeForbidden},
}

// writeError 业务错误返回对应错误码，其余按服务器错误处理
func writeError(c *gin.Context, err error) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.BusinessError(c, e.code, err.Error())
			return
		}
	}
	log.Printf("[HTTP] 请求处理失败: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	response.ServerError(c, "服务器内部错误")
}

func queryID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, name+" 参数错误")
		return 0, false
	}
	return id, true
}

// GetPricing 计价策略
// GET /api/v1/pricing
func (h *Handler) GetPricing(c *gin.Context) {
	response.Success(c, h.pricing)
}

// ============================================================
// 注册与会话
// ============================================================

// SignUp 注册，成功后直接登录
// POST /api/v1/auth/signup
func (h *Handler) SignUp(c *gin.Context) {
	var req service.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.registry.SignUp(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	data := gin.H{"user": user}
	if sess, err := h.sessions.Login(c.Request.Context(), user.ID); err != nil {
		log.Printf("[HTTP] 注册后登录失败: userID=%d, err=%v", user.ID, err)
	} else {
		data["token"] = sess.Token
	}
	response.Success(c, data)
}

type LoginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Login 按用户 ID 或邮箱登录
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	switch {
	case req.UserID != "":
		userID, err := strconv.ParseInt(req.UserID, 10, 64)
		if err != nil {
			response.ParamError(c, "user_id 参数错误")
			return
		}
		sess, err := h.sessions.Login(ctx, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		user, err := h.registry.GetUserByID(ctx, userID)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, gin.H{"token": sess.Token, "user": user})
	case req.Email != "":
		sess, user, err := h.sessions.LoginByEmail(ctx, req.Email)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, gin.H{"token": sess.Token, "user": user})
	default:
		response.ParamError(c, "user_id 或 email 必填")
	}
}

type AdminLoginRequest struct {
	AdminKey string `json:"admin_key"`
}

// AdminLogin 管理员登录
// POST /api/v1/auth/admin
func (h *Handler) AdminLogin(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	sess, err := h.sessions.LoginAsAdmin(c.Request.Context(), req.AdminKey)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"token": sess.Token})
}

// Logout 退出登录
// POST /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	token := c.GetHeader(SessionHeader)
	if token == "" {
		response.ParamError(c, "缺少会话令牌")
		return
	}
	if err := h.sessions.Logout(c.Request.Context(), token); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ============================================================
// 用户与流水
// ============================================================

// GetCurrentUser 当前登录用户
// GET /api/v1/user/me
func (h *Handler) GetCurrentUser(c *gin.Context) {
	sess := currentSession(c)
	if sess == nil || sess.UserID == 0 {
		writeError(c, service.ErrUserNotFound)
		return
	}
	user, err := h.registry.GetUserByID(c.Request.Context(), sess.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, user)
}

// GetUser 用户详情
// GET /api/v1/user/detail?user_id=xxx
func (h *Handler) GetUser(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	user, err := h.registry.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, user)
}

// GetUserByCode 按邀请码查询，用于注册页展示邀请人
// GET /api/v1/user/by-code?code=xxx
func (h *Handler) GetUserByCode(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "code 参数错误")
		return
	}
	user, err := h.registry.GetUserByCode(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"id": strconv.FormatInt(user.ID, 10), "username": user.Username})
}

// ListUserTransactions 用户流水，最新在前
// GET /api/v1/user/transactions?user_id=xxx
func (h *Handler) ListUserTransactions(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	transactions, err := h.ledger.ListByUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, transactions)
}

// ============================================================
// 邀请关系
// ============================================================

// GetReferralTree 邀请树，未传 depth 时展开 2 层，depth=0 返回空列表
// GET /api/v1/referral/tree?user_id=xxx&depth=2
func (h *Handler) GetReferralTree(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	depth := service.DefaultTreeDepth
	if raw := c.Query("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			response.ParamError(c, "depth 参数错误")
			return
		}
		depth = d
	}

	tree, err := h.referral.GetReferralTree(c.Request.Context(), userID, depth)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, tree)
}

// GetDirectReferrals 直接邀请的用户
// GET /api/v1/referral/direct?user_id=xxx
func (h *Handler) GetDirectReferrals(c *gin.Context) {
	userID, ok := queryID(c, "user_id")
	if !ok {
		return
	}
	users, err := h.referral.GetDirectReferrals(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, users)
}

// ============================================================
// 提现
// ============================================================

type WithdrawRequest struct {
	UserID int64  `json:"user_id,string" binding:"required"`
	Amount int64  `json:"amount"`
	Phone  string `json:"phone" binding:"required"`
}

// RequestWithdrawal 申请提现
// POST /api/v1/withdraw/request
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	trans, err := h.withdrawal.RequestWithdrawal(c.Request.Context(), req.UserID, req.Amount, req.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// ============================================================
// 管理后台
// ============================================================

// AdminOverview GET /api/v1/admin/overview
func (h *Handler) AdminOverview(c *gin.Context) {
	overview, err := h.admin.Overview(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, overview)
}

// AdminListUsers GET /api/v1/admin/users
func (h *Handler) AdminListUsers(c *gin.Context) {
	users, err := h.registry.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, users)
}

// AdminListTransactions GET /api/v1/admin/transactions
func (h *Handler) AdminListTransactions(c *gin.Context) {
	transactions, err := h.ledger.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, transactions)
}

// AdminListPendingWithdrawals GET /api/v1/admin/withdrawals/pending
func (h *Handler) AdminListPendingWithdrawals(c *gin.Context) {
	transactions, err := h.withdrawal.ListPending(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, transactions)
}

type SettleRequest struct {
	TransactionID int64 `json:"transaction_id,string" binding:"required"`
}

// ApproveWithdrawal POST /api/v1/admin/withdraw/approve
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	trans, err := h.withdrawal.Approve(c.Request.Context(), req.TransactionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// DenyWithdrawal 拒绝并退回余额
// POST /api/v1/admin/withdraw/deny
func (h *Handler) DenyWithdrawal(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	trans, err := h.withdrawal.Deny(c.Request.Context(), req.TransactionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, trans)
}
