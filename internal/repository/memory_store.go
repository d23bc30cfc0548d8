package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"earnlink/internal/model"
)

type memoryData struct {
	users        []*model.User // 注册顺序
	transactions []*model.Transaction
	outbox       []*model.OutboxMessage
	nextOutboxID int64
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		users:        make([]*model.User, len(d.users)),
		transactions: make([]*model.Transaction, len(d.transactions)),
		outbox:       make([]*model.OutboxMessage, len(d.outbox)),
		nextOutboxID: d.nextOutboxID,
	}
	for i, u := range d.users {
		c.users[i] = copyUser(u)
	}
	for i, t := range d.transactions {
		c.transactions[i] = copyTransaction(t)
	}
	for i, m := range d.outbox {
		cp := *m
		c.outbox[i] = &cp
	}
	return c
}

func copyUser(u *model.User) *model.User {
	cp := *u
	if u.Email != nil {
		email := *u.Email
		cp.Email = &email
	}
	if u.Avatar != nil {
		avatar := *u.Avatar
		cp.Avatar = &avatar
	}
	if u.ReferrerID != nil {
		referrerID := *u.ReferrerID
		cp.ReferrerID = &referrerID
	}
	return &cp
}

func copyTransaction(t *model.Transaction) *model.Transaction {
	cp := *t
	return &cp
}

// MemoryStore 进程内存储，用于本地开发和测试
//
// 写事务持有写锁直到回调结束，回调出错时恢复快照。
// 返回给调用方的都是副本。
type MemoryStore struct {
	mu   *sync.RWMutex
	data *memoryData
	inTx bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:   &sync.RWMutex{},
		data: &memoryData{nextOutboxID: 1},
	}
}

func (s *MemoryStore) read(fn func(d *memoryData)) {
	if !s.inTx {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	fn(s.data)
}

func (s *MemoryStore) write(fn func(d *memoryData)) {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn(s.data)
}

func (s *MemoryStore) Users() UserRepository {
	return &memoryUserRepository{s: s}
}

func (s *MemoryStore) Transactions() TransactionRepository {
	return &memoryTransactionRepository{s: s}
}

func (s *MemoryStore) Outbox() OutboxRepository {
	return &memoryOutboxRepository{s: s}
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &MemoryStore{mu: s.mu, data: s.data, inTx: true}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// Snapshot 持有读锁直到回调结束，fn 只能读
func (s *MemoryStore) Snapshot(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&MemoryStore{mu: s.mu, data: s.data, inTx: true})
}

// ============================================================================
// 用户
// ============================================================================

type memoryUserRepository struct {
	s *MemoryStore
}

func (r *memoryUserRepository) find(d *memoryData, match func(u *model.User) bool) *model.User {
	for _, u := range d.users {
		if match(u) {
			return u
		}
	}
	return nil
}

func (r *memoryUserRepository) Create(ctx context.Context, user *model.User) error {
	var err error
	r.s.write(func(d *memoryData) {
		dup := r.find(d, func(u *model.User) bool {
			return u.ID == user.ID || u.Phone == user.Phone || u.ReferralCode == user.ReferralCode
		})
		if dup != nil {
			err = ErrDuplicateUser
			return
		}
		now := time.Now()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		d.users = append(d.users, copyUser(user))
	})
	return err
}

func (r *memoryUserRepository) get(match func(u *model.User) bool) (*model.User, error) {
	var found *model.User
	r.s.read(func(d *memoryData) {
		if u := r.find(d, match); u != nil {
			found = copyUser(u)
		}
	})
	if found == nil {
		return nil, ErrUserNotFound
	}
	return found, nil
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.get(func(u *model.User) bool { return u.ID == id })
}

func (r *memoryUserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	return r.get(func(u *model.User) bool { return u.Phone == phone })
}

func (r *memoryUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.get(func(u *model.User) bool { return u.Email != nil && *u.Email == email })
}

func (r *memoryUserRepository) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return r.get(func(u *model.User) bool { return u.ReferralCode == code })
}

func (r *memoryUserRepository) list(match func(u *model.User) bool) []*model.User {
	users := make([]*model.User, 0)
	r.s.read(func(d *memoryData) {
		for _, u := range d.users {
			if match(u) {
				users = append(users, copyUser(u))
			}
		}
	})
	return users
}

func (r *memoryUserRepository) ListAll(ctx context.Context) ([]*model.User, error) {
	return r.list(func(*model.User) bool { return true }), nil
}

func (r *memoryUserRepository) ListByReferrer(ctx context.Context, referrerID int64) ([]*model.User, error) {
	return r.list(func(u *model.User) bool {
		return u.ReferrerID != nil && *u.ReferrerID == referrerID
	}), nil
}

func (r *memoryUserRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	r.s.read(func(d *memoryData) {
		total = int64(len(d.users))
	})
	return total, nil
}

func (r *memoryUserRepository) mutate(id int64, fn func(u *model.User) error) error {
	err := ErrUserNotFound
	r.s.write(func(d *memoryData) {
		u := r.find(d, func(u *model.User) bool { return u.ID == id })
		if u == nil {
			return
		}
		if err = fn(u); err == nil {
			u.UpdatedAt = time.Now()
		}
	})
	return err
}

func (r *memoryUserRepository) Credit(ctx context.Context, id int64, amount int64) error {
	return r.mutate(id, func(u *model.User) error {
		u.Balance += amount
		u.TotalEarned += amount
		return nil
	})
}

func (r *memoryUserRepository) Increase(ctx context.Context, id int64, amount int64) error {
	return r.mutate(id, func(u *model.User) error {
		u.Balance += amount
		return nil
	})
}

func (r *memoryUserRepository) Deduct(ctx context.Context, id int64, amount int64) error {
	return r.mutate(id, func(u *model.User) error {
		if u.Balance < amount {
			return ErrBalanceNotEnough
		}
		u.Balance -= amount
		return nil
	})
}

// ============================================================================
// 流水
// ============================================================================

type memoryTransactionRepository struct {
	s *MemoryStore
}

func (r *memoryTransactionRepository) Create(ctx context.Context, trans *model.Transaction) error {
	r.s.write(func(d *memoryData) {
		now := time.Now()
		if trans.CreatedAt.IsZero() {
			trans.CreatedAt = now
		}
		trans.UpdatedAt = now
		d.transactions = append(d.transactions, copyTransaction(trans))
	})
	return nil
}

func (r *memoryTransactionRepository) GetByID(ctx context.Context, id int64) (*model.Transaction, error) {
	var found *model.Transaction
	r.s.read(func(d *memoryData) {
		for _, t := range d.transactions {
			if t.ID == id {
				found = copyTransaction(t)
				return
			}
		}
	})
	if found == nil {
		return nil, ErrTransactionNotFound
	}
	return found, nil
}

func (r *memoryTransactionRepository) list(match func(t *model.Transaction) bool) []*model.Transaction {
	transactions := make([]*model.Transaction, 0)
	r.s.read(func(d *memoryData) {
		for _, t := range d.transactions {
			if match(t) {
				transactions = append(transactions, copyTransaction(t))
			}
		}
	})
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].ID > transactions[j].ID
	})
	return transactions
}

func (r *memoryTransactionRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.Transaction, error) {
	return r.list(func(t *model.Transaction) bool { return t.UserID == userID }), nil
}

func (r *memoryTransactionRepository) ListAll(ctx context.Context) ([]*model.Transaction, error) {
	return r.list(func(*model.Transaction) bool { return true }), nil
}

func (r *memoryTransactionRepository) ListByTypeAndStatus(ctx context.Context, txType, status string) ([]*model.Transaction, error) {
	return r.list(func(t *model.Transaction) bool {
		return t.Type == txType && t.Status == status
	}), nil
}

func (r *memoryTransactionRepository) UpdateStatus(ctx context.Context, id int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrTransactionStatusInvalid
	}

	err := ErrTransactionStatusInvalid
	r.s.write(func(d *memoryData) {
		for _, t := range d.transactions {
			if t.ID == id && t.Status == fromStatus {
				t.Status = toStatus
				t.UpdatedAt = time.Now()
				err = nil
				return
			}
		}
	})
	return err
}

// ============================================================================
// 本地消息表
// ============================================================================

type memoryOutboxRepository struct {
	s *MemoryStore
}

func (r *memoryOutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	r.s.write(func(d *memoryData) {
		msg.ID = d.nextOutboxID
		d.nextOutboxID++
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		now := time.Now()
		msg.CreatedAt = now
		msg.UpdatedAt = now
		cp := *msg
		d.outbox = append(d.outbox, &cp)
	})
	return nil
}

func (r *memoryOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	messages := make([]*model.OutboxMessage, 0)
	r.s.read(func(d *memoryData) {
		for _, m := range d.outbox {
			if len(messages) >= limit {
				return
			}
			if m.Status == model.OutboxStatusPending {
				cp := *m
				messages = append(messages, &cp)
			}
		}
	})
	return messages, nil
}

func (r *memoryOutboxRepository) mutate(id int64, fn func(m *model.OutboxMessage)) {
	r.s.write(func(d *memoryData) {
		for _, m := range d.outbox {
			if m.ID == id {
				fn(m)
				m.UpdatedAt = time.Now()
				return
			}
		}
	})
}

func (r *memoryOutboxRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	r.mutate(id, func(m *model.OutboxMessage) { m.Status = status })
	return nil
}

func (r *memoryOutboxRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	r.mutate(id, func(m *model.OutboxMessage) { m.RetryCount++ })
	return nil
}

func (r *memoryOutboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	r.mutate(id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusFailed })
	return nil
}
