package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"earnlink/internal/config"
	"earnlink/internal/infrastructure/lock"
	"earnlink/internal/model"
	"earnlink/internal/repository"
	"earnlink/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store      *repository.MemoryStore
	registry   *RegistryService
	ledger     *LedgerService
	withdrawal *WithdrawalService
	referral   *ReferralService
	sessions   *SessionService
	admin      *AdminService
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{AdminKey: "secret"},
		Pricing: config.DefaultPricing(),
		Business: config.BusinessConfig{
			ReferralCodeAttempts: 10,
		},
		Kafka: config.KafkaConfig{Topic: config.KafkaTopicConfig{
			UserRegistered:   "user.registered",
			WithdrawalResult: "withdrawal.result",
		}},
	}
}

func newTestEnv(t *testing.T, syncer ProfileSyncer) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	return newTestEnvOn(t, store, store, syncer)
}

// newTestEnvOn 服务跑在 backing 上，mem 是其底层内存存储，用于直接断言
func newTestEnvOn(t *testing.T, mem *repository.MemoryStore, backing repository.Store, syncer ProfileSyncer) *testEnv {
	t.Helper()
	cfg := testConfig()
	deps := Dependencies{
		Store:    backing,
		Locker:   lock.NewLocalLocker(),
		Sessions: session.NewMemoryStore(time.Hour),
		Syncer:   syncer,
	}
	ledger := NewLedgerService(deps)
	return &testEnv{
		store:      mem,
		registry:   NewRegistryService(deps, cfg, NewRewardService(cfg.Pricing, ledger)),
		ledger:     ledger,
		withdrawal: NewWithdrawalService(deps, cfg, ledger),
		referral:   NewReferralService(deps),
		sessions:   NewSessionService(deps, cfg.Server.AdminKey),
		admin:      NewAdminService(deps),
	}
}

func (e *testEnv) signUp(t *testing.T, username, phone, code string) *model.User {
	t.Helper()
	user, err := e.registry.SignUp(context.Background(), &SignUpRequest{
		Username:     username,
		Phone:        phone,
		ReferralCode: code,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) user(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := e.registry.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *testEnv) assertReconciled(t *testing.T) {
	t.Helper()
	discrepancies, err := e.ledger.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestScenario_TwoLevelReferralAndDeniedWithdrawal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a := env.signUp(t, "Alice", "0700000001", "")
	assert.Equal(t, int64(50), a.Balance)
	assert.Equal(t, int64(50), a.TotalEarned)
	assert.Nil(t, a.ReferrerID)

	b := env.signUp(t, "Bob", "0700000002", a.ReferralCode)
	assert.Equal(t, int64(50), b.Balance)
	require.NotNil(t, b.ReferrerID)
	assert.Equal(t, a.ID, *b.ReferrerID)
	a = env.user(t, a.ID)
	assert.Equal(t, int64(150), a.Balance)
	assert.Equal(t, int64(150), a.TotalEarned)

	c := env.signUp(t, "Carol", "0700000003", b.ReferralCode)
	assert.Equal(t, int64(50), c.Balance)
	assert.Equal(t, int64(150), env.user(t, b.ID).Balance)
	assert.Equal(t, int64(200), env.user(t, a.ID).Balance)

	trans, err := env.withdrawal.RequestWithdrawal(ctx, a.ID, 200, a.Phone)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPending, trans.Status)
	assert.Equal(t, "M-Pesa Withdrawal", trans.Description)
	assert.Equal(t, int64(0), env.user(t, a.ID).Balance)
	env.assertReconciled(t)

	denied, err := env.withdrawal.Deny(ctx, trans.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, denied.Status)
	a = env.user(t, a.ID)
	assert.Equal(t, int64(200), a.Balance)
	assert.Equal(t, int64(200), a.TotalEarned)
	env.assertReconciled(t)
}

func TestSignUp_RewardDescriptionsAndPhones(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a := env.signUp(t, "Alice", "0700000001", "")
	b := env.signUp(t, "Bob", "0700000002", a.ReferralCode)
	c := env.signUp(t, "Carol", "0700000003", b.ReferralCode)

	welcome, err := env.ledger.ListByUser(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, welcome, 1)
	assert.Equal(t, model.TransactionTypeTopUp, welcome[0].Type)
	assert.Equal(t, "Welcome Bonus", welcome[0].Description)

	bEntries, err := env.ledger.ListByUser(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, bEntries, 2)
	assert.Equal(t, "Direct referral: Carol", bEntries[0].Description)
	assert.Equal(t, c.Phone, bEntries[0].Phone)

	aEntries, err := env.ledger.ListByUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, aEntries, 3)
	assert.Equal(t, "Indirect referral from Bob", aEntries[0].Description)
	assert.Equal(t, int64(50), aEntries[0].Amount)
	assert.Equal(t, c.Phone, aEntries[0].Phone)
	assert.Equal(t, model.TransactionTypeReferral, aEntries[0].Type)
}

func TestSignUp_NoRewardBeyondTwoLevels(t *testing.T) {
	env := newTestEnv(t, nil)

	a := env.signUp(t, "a", "1", "")
	b := env.signUp(t, "b", "2", a.ReferralCode)
	c := env.signUp(t, "c", "3", b.ReferralCode)
	before := env.user(t, a.ID).Balance

	d := env.signUp(t, "d", "4", c.ReferralCode)
	env.signUp(t, "e", "5", d.ReferralCode)

	assert.Equal(t, before, env.user(t, a.ID).Balance)
	env.assertReconciled(t)
}

func TestSignUp_UnknownReferralCodeCreatesRoot(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.signUp(t, "Dan", "0711", "nosuchcode1234")
	assert.Nil(t, u.ReferrerID)
	assert.Equal(t, int64(50), u.Balance)
}

func TestSignUp_DuplicatePhoneLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	a := env.signUp(t, "Alice", "0700", "")

	_, err := env.registry.SignUp(ctx, &SignUpRequest{Username: "Mallory", Phone: "0700", ReferralCode: a.ReferralCode})
	assert.ErrorIs(t, err, ErrDuplicatePhone)

	users, err := env.registry.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	all, err := env.ledger.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, int64(50), env.user(t, a.ID).Balance)

	pending, err := env.store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSignUp_ConcurrentSamePhone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.registry.SignUp(ctx, &SignUpRequest{Username: "Same", Phone: "0722"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicatePhone)
	}
	assert.Equal(t, 1, succeeded)
	total, err := env.store.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSignUp_ReferralCodeFormat(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registry.suffix = func() int { return 4321 }

	u := env.signUp(t, "  Mary Jane\tW ", "0733", "")
	assert.Equal(t, "maryjanew4321", u.ReferralCode)

	found, err := env.registry.GetUserByCode(context.Background(), "maryjanew4321")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = env.registry.GetUserByCode(context.Background(), "MARYJANEW4321")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSignUp_ReferralCodeRedrawAndExhaustion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	draws := []int{1111, 1111, 2222}
	env.registry.suffix = func() int {
		n := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return n
	}
	first := env.signUp(t, "sam", "1", "")
	second := env.signUp(t, "sam", "2", "")
	assert.Equal(t, "sam1111", first.ReferralCode)
	assert.Equal(t, "sam2222", second.ReferralCode)

	env.registry.suffix = func() int { return 2222 }
	_, err := env.registry.SignUp(ctx, &SignUpRequest{Username: "Sam", Phone: "3"})
	assert.ErrorIs(t, err, ErrReferralCodeExhausted)

	total, err := env.store.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestSignUp_OptionalFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	email := "alice@example.com"
	blank := "  "

	u, err := env.registry.SignUp(ctx, &SignUpRequest{Username: "Alice", Phone: "1", Email: &email, Avatar: &blank})
	require.NoError(t, err)
	require.NotNil(t, u.Email)
	assert.Equal(t, email, *u.Email)
	assert.Nil(t, u.Avatar)

	found, err := env.registry.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
}

type fakeSyncer struct {
	synced chan *model.User
	err    error
}

func (f *fakeSyncer) SyncProfile(ctx context.Context, user *model.User) error {
	f.synced <- user
	return f.err
}

func TestSignUp_ProfileSyncFailureIsNotReturned(t *testing.T) {
	syncer := &fakeSyncer{synced: make(chan *model.User, 1), err: errors.New("remote down")}
	env := newTestEnv(t, syncer)

	u := env.signUp(t, "Alice", "1", "")

	select {
	case synced := <-syncer.synced:
		assert.Equal(t, u.ID, synced.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("profile sync was not scheduled")
	}
}

func TestSignUp_WritesOutboxEvent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	u := env.signUp(t, "Alice", "1", "")

	pending, err := env.store.Outbox().GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "user.registered", pending[0].Topic)
	assert.Equal(t, model.EventUserRegistered, pending[0].EventType)
	assert.Equal(t, u.ID, pending[0].AggregateID)
	assert.Contains(t, pending[0].Payload, u.ReferralCode)
}

// codeBlindStore 邀请码查询总是落空，相当于另一个注册事务尚未提交
type codeBlindStore struct {
	repository.Store
}

func (s codeBlindStore) Users() repository.UserRepository {
	return codeBlindUsers{s.Store.Users()}
}

func (s codeBlindStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(codeBlindStore{tx})
	})
}

type codeBlindUsers struct {
	repository.UserRepository
}

func (codeBlindUsers) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return nil, repository.ErrUserNotFound
}

func TestSignUp_ReferralCodeConflictIsNotDuplicatePhone(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	env := newTestEnvOn(t, mem, codeBlindStore{mem}, nil)

	draws := []int{1234, 1234, 5678}
	env.registry.suffix = func() int {
		n := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return n
	}

	first := env.signUp(t, "alice", "0700000001", "")
	assert.Equal(t, "alice1234", first.ReferralCode)

	second, err := env.registry.SignUp(ctx, &SignUpRequest{Username: "alice", Phone: "0700000002"})
	require.NoError(t, err)
	assert.Equal(t, "alice5678", second.ReferralCode)
	assert.Equal(t, int64(50), second.Balance)

	all, err := mem.Transactions().ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	env.assertReconciled(t)
}

func TestSignUp_PersistentCodeConflictExhausts(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	env := newTestEnvOn(t, mem, codeBlindStore{mem}, nil)
	env.registry.suffix = func() int { return 1234 }

	env.signUp(t, "alice", "0700000001", "")

	_, err := env.registry.SignUp(ctx, &SignUpRequest{Username: "alice", Phone: "0700000002"})
	assert.ErrorIs(t, err, ErrReferralCodeExhausted)
	assert.NotErrorIs(t, err, ErrDuplicatePhone)

	_, err = env.registry.SignUp(ctx, &SignUpRequest{Username: "bob", Phone: "0700000001"})
	assert.ErrorIs(t, err, ErrDuplicatePhone)

	total, err := mem.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
