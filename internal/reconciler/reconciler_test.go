// internal/reconciler/reconciler_test.go
package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thellex-wallet/internal/audit"
	"thellex-wallet/internal/domain"
	"thellex-wallet/internal/metrics"
	"thellex-wallet/internal/notify"
	"thellex-wallet/internal/provider"
	"thellex-wallet/internal/repository"
	"thellex-wallet/internal/syncer"
	"thellex-wallet/internal/util"
	"thellex-wallet/pkg/db"
)

// --- in-memory doubles -------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTx satisfies both db.TxController and repository.DBExecutor so the
// create path's type assertion on the transaction controller holds.
type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }
func (fakeTx) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return nil
}
func (fakeTx) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return nil
}
func (fakeTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (fakeTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

// fakeTxRepo keeps transactions in memory with the same uniqueness and
// compare-and-swap semantics the Postgres repository provides.
type fakeTxRepo struct {
	mu       sync.Mutex
	byExtID  map[string]*domain.Transaction
	byID     map[string]*domain.Transaction
	unsynced []domain.Transaction

	// missNextGet makes GetByExternalID report not-found once even when the
	// row exists, to open the creation race window.
	missNextGet bool
	// failNextCAS makes AdvanceStatus lose its next compare-and-swap.
	failNextCAS bool
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{
		byExtID: make(map[string]*domain.Transaction),
		byID:    make(map[string]*domain.Transaction),
	}
}

func extKey(providerID, externalTxID string) string {
	return providerID + ":" + externalTxID
}

func (r *fakeTxRepo) CreateTransaction(_ context.Context, _ repository.DBExecutor, txn *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := extKey(txn.ProviderID, txn.ExternalTxID)
	if _, exists := r.byExtID[key]; exists {
		return fmt.Errorf("%w: transaction %s", util.ErrDuplicateEntry, key)
	}
	cp := *txn
	r.byExtID[key] = &cp
	r.byID[txn.ID] = &cp
	return nil
}

func (r *fakeTxRepo) GetByExternalID(_ context.Context, _ repository.DBExecutor, providerID, externalTxID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missNextGet {
		r.missNextGet = false
		return nil, util.ErrNotFound
	}
	txn, ok := r.byExtID[extKey(providerID, externalTxID)]
	if !ok {
		return nil, util.ErrNotFound
	}
	cp := *txn
	return &cp, nil
}

func (r *fakeTxRepo) ExistsByExternalID(_ context.Context, _ repository.DBExecutor, providerID, externalTxID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byExtID[extKey(providerID, externalTxID)]
	return ok, nil
}

func (r *fakeTxRepo) AdvanceStatus(_ context.Context, _ repository.DBExecutor, id string, expected, next domain.PaymentStatus, failureReason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNextCAS {
		r.failNextCAS = false
		return false, nil
	}
	txn, ok := r.byID[id]
	if !ok || txn.PaymentStatus != expected {
		return false, nil
	}
	txn.PaymentStatus = next
	if failureReason != nil {
		txn.FailureReason = failureReason
	}
	txn.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *fakeTxRepo) SetSettlement(_ context.Context, _ repository.DBExecutor, id string, blockchainTxID *string, settledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byID[id]
	if !ok {
		return util.ErrNotFound
	}
	txn.BlockchainTx = blockchainTxID
	txn.SettledAt = &settledAt
	return nil
}

func (r *fakeTxRepo) SumCompletedOutboundSince(_ context.Context, _ repository.DBExecutor, userID int64, assetCode string, since time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, txn := range r.byID {
		if txn.UserID == userID && txn.AssetCode == assetCode &&
			txn.Direction == domain.DirectionOutbound &&
			txn.PaymentStatus == domain.PaymentStatusComplete &&
			!txn.UpdatedAt.Before(since) {
			sum = sum.Add(txn.Amount)
		}
	}
	return sum, nil
}

func (r *fakeTxRepo) ListStuck(_ context.Context, _ repository.DBExecutor, types []domain.TransactionType, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	return nil, nil
}

func (r *fakeTxRepo) ListUnsyncedComplete(_ context.Context, _ repository.DBExecutor, limit int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.unsynced
	r.unsynced = nil
	return out, nil
}

func (r *fakeTxRepo) GetTransactionsByWalletID(_ context.Context, _ repository.DBExecutor, walletID int64, limit, offset int) ([]domain.Transaction, int64, error) {
	return nil, 0, nil
}

func (r *fakeTxRepo) get(t *testing.T, providerID, externalTxID string) *domain.Transaction {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.byExtID[extKey(providerID, externalTxID)]
	require.True(t, ok, "transaction %s/%s not stored", providerID, externalTxID)
	cp := *txn
	return &cp
}

type fakeWalletRepo struct {
	mu       sync.Mutex
	byID     map[int64]*domain.Wallet
	byRef    map[string]*domain.Wallet
	balances map[string]decimal.Decimal
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{
		byID:     make(map[int64]*domain.Wallet),
		byRef:    make(map[string]*domain.Wallet),
		balances: make(map[string]decimal.Decimal),
	}
}

func (r *fakeWalletRepo) add(w *domain.Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[w.ID] = w
	r.byRef[w.Provider+":"+w.AccountRef] = w
}

func (r *fakeWalletRepo) CreateWallet(_ context.Context, _ repository.DBExecutor, w *domain.Wallet) error {
	r.add(w)
	return nil
}

func (r *fakeWalletRepo) GetWalletByID(_ context.Context, _ repository.DBExecutor, id int64) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, util.ErrWalletNotFound
	}
	return w, nil
}

func (r *fakeWalletRepo) GetWalletByAccountRef(_ context.Context, _ repository.DBExecutor, provider, accountRef string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byRef[provider+":"+accountRef]
	if !ok {
		return nil, util.ErrNotFound
	}
	return w, nil
}

func (r *fakeWalletRepo) GetAssetBalance(_ context.Context, _ repository.DBExecutor, walletID int64, assetCode string) (*domain.AssetBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[fmt.Sprintf("%d:%s", walletID, assetCode)]
	if !ok {
		return nil, util.ErrNotFound
	}
	return &domain.AssetBalance{WalletID: walletID, AssetCode: assetCode, Balance: b}, nil
}

func (r *fakeWalletRepo) SetAssetBalance(_ context.Context, _ repository.DBExecutor, walletID int64, assetCode string, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[fmt.Sprintf("%d:%s", walletID, assetCode)] = balance
	return nil
}

func (r *fakeWalletRepo) balance(walletID int64, assetCode string) (decimal.Decimal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[fmt.Sprintf("%d:%s", walletID, assetCode)]
	return b, ok
}

type fakeUserRepo struct {
	users map[int64]*domain.User
}

func (r *fakeUserRepo) CreateUser(_ context.Context, _ repository.DBExecutor, u *domain.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, _ repository.DBExecutor, id int64) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, util.ErrUserNotFound
	}
	return u, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *fakeNotifier) all() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Event, len(n.events))
	copy(out, n.events)
	return out
}

type fakeTrail struct {
	mu      sync.Mutex
	dropped []audit.DroppedEvent
}

func (tr *fakeTrail) Record(_ context.Context, ev audit.DroppedEvent) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.dropped = append(tr.dropped, ev)
}

func (tr *fakeTrail) all() []audit.DroppedEvent {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]audit.DroppedEvent, len(tr.dropped))
	copy(out, tr.dropped)
	return out
}

type fakeProviderClient struct {
	mu          sync.Mutex
	id          string
	balance     decimal.Decimal
	balanceErr  error
	balanceGets int
}

func (c *fakeProviderClient) ID() string { return c.id }

func (c *fakeProviderClient) GetTransaction(context.Context, string) (*provider.Txn, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeProviderClient) GetBalance(_ context.Context, _, _ string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceGets++
	if c.balanceErr != nil {
		return decimal.Zero, c.balanceErr
	}
	return c.balance, nil
}

func (c *fakeProviderClient) InitiatePayout(context.Context, provider.PayoutRequest) (*provider.Txn, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeProviderClient) gets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceGets
}

// --- harness -----------------------------------------------------------------

type harness struct {
	rec      *Reconciler
	txRepo   *fakeTxRepo
	wallets  *fakeWalletRepo
	users    *fakeUserRepo
	notifier *fakeNotifier
	trail    *fakeTrail
	client   *fakeProviderClient
	clock    *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	txRepo := newFakeTxRepo()
	wallets := newFakeWalletRepo()
	users := &fakeUserRepo{users: map[int64]*domain.User{
		7: {ID: 7, Username: "ada", Tier: "basic"},
	}}
	wallets.add(&domain.Wallet{ID: 42, UserID: 7, Provider: provider.IDCircle, AccountRef: "0xdeadbeef"})

	client := &fakeProviderClient{id: provider.IDCircle, balance: decimal.RequireFromString("421.77")}
	registry := provider.Registry{provider.IDCircle: client}

	m := metrics.NewWith(prometheus.NewRegistry())
	logger := slog.Default()
	clk := newFakeClock()

	policy := domain.TierPolicy{
		"basic": {
			Tier:              "basic",
			SingleTxCeiling:   decimal.RequireFromString("1000"),
			DailyDebitCeiling: decimal.RequireFromString("3000"),
			SettlementFeeBps:  200,
		},
	}

	notifier := &fakeNotifier{}
	trail := &fakeTrail{}

	beginTx := func(ctx context.Context, _ db.DBTxBeginner) (db.TxController, error) {
		return fakeTx{}, nil
	}
	commitTx := func(tx db.TxController) error { return tx.Commit() }
	rollbackTx := func(tx db.TxController) { _ = tx.Rollback() }

	rec := NewReconciler(
		nil, fakeTx{},
		users, wallets, txRepo,
		beginTx, commitTx, rollbackTx,
		NewLimitChecker(policy, txRepo, clk),
		syncer.NewBalanceSyncer(registry, wallets, fakeTx{}, m, logger),
		notifier, trail, m, logger,
		[]string{"NGN", "USD"},
	)

	return &harness{
		rec: rec, txRepo: txRepo, wallets: wallets, users: users,
		notifier: notifier, trail: trail, client: client, clock: clk,
	}
}

func inboundEvent(eventID, txID string, status domain.CanonicalStatus) *domain.TransactionEvent {
	dest := "0xdeadbeef"
	return &domain.TransactionEvent{
		ProviderID:            provider.IDCircle,
		ExternalEventID:       eventID,
		ExternalTransactionID: txID,
		Direction:             domain.DirectionInbound,
		AssetCode:             "USDC",
		Amount:                decimal.RequireFromString("25.50"),
		Status:                status,
		OccurredAt:            time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC),
		DestinationAddress:    &dest,
	}
}

func outboundEvent(eventID, txID, amount string) *domain.TransactionEvent {
	src := "0xdeadbeef"
	dst := "0xrecipient"
	return &domain.TransactionEvent{
		ProviderID:            provider.IDCircle,
		ExternalEventID:       eventID,
		ExternalTransactionID: txID,
		Direction:             domain.DirectionOutbound,
		AssetCode:             "USDC",
		Amount:                decimal.RequireFromString(amount),
		Status:                domain.CanonicalStatusAccepted,
		OccurredAt:            time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC),
		SourceAddress:         &src,
		DestinationAddress:    &dst,
	}
}

func waitForNotifications(t *testing.T, n *fakeNotifier, want int) []notify.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(n.all()) >= want
	}, 2*time.Second, 10*time.Millisecond)
	return n.all()
}

// --- tests -------------------------------------------------------------------

func TestApplyCreatesThenAdvancesThroughLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	outcome, err := h.rec.Apply(ctx, inboundEvent("evt-1", "tx-1", domain.CanonicalStatusAccepted))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-1")
	assert.Equal(t, domain.PaymentStatusAccepted, txn.PaymentStatus)
	assert.Equal(t, domain.TransactionTypeCryptoDeposit, txn.Type)
	assert.Equal(t, int64(42), txn.WalletID)
	assert.Equal(t, int64(7), txn.UserID)
	assert.True(t, txn.Amount.Equal(decimal.RequireFromString("25.50")))

	outcome, err = h.rec.Apply(ctx, inboundEvent("evt-2", "tx-1", domain.CanonicalStatusProcessing))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdvanced, outcome)

	outcome, err = h.rec.Apply(ctx, inboundEvent("evt-3", "tx-1", domain.CanonicalStatusComplete))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	txn = h.txRepo.get(t, provider.IDCircle, "tx-1")
	assert.Equal(t, domain.PaymentStatusComplete, txn.PaymentStatus)

	events := waitForNotifications(t, h.notifier, 1)
	assert.Equal(t, notify.KindPaymentCompleted, events[0].Kind)
	assert.Equal(t, txn.ID, events[0].TransactionID)
}

func TestApplyCompleteArrivingFirstCreatesAndCompletes(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.rec.Apply(context.Background(), inboundEvent("evt-9", "tx-9", domain.CanonicalStatusComplete))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-9")
	assert.Equal(t, domain.PaymentStatusComplete, txn.PaymentStatus)
}

func TestApplyRejectsBackwardTransitionAfterComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rec.Apply(ctx, inboundEvent("evt-1", "tx-1", domain.CanonicalStatusComplete))
	require.NoError(t, err)

	outcome, err := h.rec.Apply(ctx, inboundEvent("evt-2", "tx-1", domain.CanonicalStatusProcessing))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOutOfOrder, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-1")
	assert.Equal(t, domain.PaymentStatusComplete, txn.PaymentStatus, "terminal state must stand")

	dropped := h.trail.all()
	require.Len(t, dropped, 1)
	assert.Equal(t, "out_of_order", dropped[0].Reason)
	assert.Equal(t, "evt-2", dropped[0].ExternalEventID)
}

func TestApplyIgnoresDuplicateStatusReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rec.Apply(ctx, inboundEvent("evt-1", "tx-1", domain.CanonicalStatusAccepted))
	require.NoError(t, err)

	outcome, err := h.rec.Apply(ctx, inboundEvent("evt-1b", "tx-1", domain.CanonicalStatusAccepted))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
}

func TestApplyBalanceIsProvidersAuthoritativeValue(t *testing.T) {
	h := newHarness(t)

	// The provider reports a balance unrelated to the event amount; the
	// stored balance must be that value, not old balance plus amount.
	_, err := h.rec.Apply(context.Background(), inboundEvent("evt-1", "tx-1", domain.CanonicalStatusComplete))
	require.NoError(t, err)

	balance, ok := h.wallets.balance(42, "USDC")
	require.True(t, ok)
	assert.True(t, balance.Equal(decimal.RequireFromString("421.77")),
		"got %s, want the provider's authoritative 421.77", balance)
	assert.Equal(t, 1, h.client.gets())
}

func TestApplySingleTransactionCeilingRoutesToFailed(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.rec.Apply(context.Background(), outboundEvent("evt-1", "tx-1", "1500"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLimitRejected, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-1")
	assert.Equal(t, domain.PaymentStatusFailed, txn.PaymentStatus)
	require.NotNil(t, txn.FailureReason)
	assert.Contains(t, *txn.FailureReason, "single-transaction ceiling")

	// No balance write: the rejected debit never reached the provider.
	_, ok := h.wallets.balance(42, "USDC")
	assert.False(t, ok)
	assert.Equal(t, 0, h.client.gets())

	events := waitForNotifications(t, h.notifier, 1)
	assert.Equal(t, notify.KindPaymentFailed, events[0].Kind)
	assert.Contains(t, events[0].Reason, "ceiling")
}

func TestApplyDailyCeilingCountsSameDayCompletedDebits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Three completed debits of 800 leave 600 of the 3000 daily ceiling;
	// a further 700 must be rejected even though it clears the single
	// transaction ceiling.
	prior := outboundEvent("evt-0", "tx-0", "800")
	_, err := h.rec.Apply(ctx, prior)
	require.NoError(t, err)
	_, err = h.rec.Apply(ctx, inboundEventStatus("evt-0b", "tx-0", domain.CanonicalStatusComplete, prior))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ev := outboundEvent(fmt.Sprintf("evt-s%d", i), fmt.Sprintf("tx-s%d", i), "800")
		_, err = h.rec.Apply(ctx, ev)
		require.NoError(t, err)
		_, err = h.rec.Apply(ctx, inboundEventStatus(fmt.Sprintf("evt-s%db", i), fmt.Sprintf("tx-s%d", i), domain.CanonicalStatusComplete, ev))
		require.NoError(t, err)
	}

	outcome, err := h.rec.Apply(ctx, outboundEvent("evt-late", "tx-late", "700"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeLimitRejected, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-late")
	require.NotNil(t, txn.FailureReason)
	assert.Contains(t, *txn.FailureReason, "daily ceiling")
}

func TestApplyUnattributableEventIsDroppedWithAudit(t *testing.T) {
	h := newHarness(t)

	ev := inboundEvent("evt-1", "tx-1", domain.CanonicalStatusComplete)
	unknown := "0xunknown"
	ev.DestinationAddress = &unknown

	outcome, err := h.rec.Apply(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, util.IsError(err, util.ErrWalletNotFound))
	assert.Equal(t, OutcomeDropped, outcome)

	dropped := h.trail.all()
	require.Len(t, dropped, 1)
	assert.Equal(t, "normalization", dropped[0].Reason)
}

func TestApplyLostCreationRaceFallsThroughToAdvance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rec.Apply(ctx, inboundEvent("evt-1", "tx-1", domain.CanonicalStatusAccepted))
	require.NoError(t, err)

	// Simulate a concurrent delivery that read "not found" before the winner
	// committed: its insert hits the unique index and it must reload and
	// advance the winner's row instead of erroring.
	h.txRepo.missNextGet = true
	outcome, err := h.rec.Apply(ctx, inboundEvent("evt-2", "tx-1", domain.CanonicalStatusComplete))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-1")
	assert.Equal(t, domain.PaymentStatusComplete, txn.PaymentStatus)
}

func TestApplyLostCASRaceIsBenign(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rec.Apply(ctx, inboundEvent("evt-1", "tx-1", domain.CanonicalStatusAccepted))
	require.NoError(t, err)

	h.txRepo.failNextCAS = true
	outcome, err := h.rec.Apply(ctx, inboundEvent("evt-2", "tx-1", domain.CanonicalStatusProcessing))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOutOfOrder, outcome)
}

func TestApplyCompletionSurvivesSyncFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.client.balanceErr = errors.New("gateway timeout")

	outcome, err := h.rec.Apply(ctx, inboundEvent("evt-1", "tx-1", domain.CanonicalStatusComplete))
	require.NoError(t, err, "sync failure must not fail the committed transition")
	assert.Equal(t, OutcomeCompleted, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-1")
	assert.Equal(t, domain.PaymentStatusComplete, txn.PaymentStatus)
	_, ok := h.wallets.balance(42, "USDC")
	assert.False(t, ok, "no balance written while the provider is down")

	// The sweep repairs the gap once the provider recovers.
	h.client.balanceErr = nil
	h.txRepo.unsynced = []domain.Transaction{*txn}
	repaired, err := h.rec.RepairUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	balance, ok := h.wallets.balance(42, "USDC")
	require.True(t, ok)
	assert.True(t, balance.Equal(decimal.RequireFromString("421.77")))
}

func TestApplyProviderFailureNotifiesUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rec.Apply(ctx, inboundEvent("evt-1", "tx-1", domain.CanonicalStatusAccepted))
	require.NoError(t, err)

	outcome, err := h.rec.Apply(ctx, inboundEvent("evt-2", "tx-1", domain.CanonicalStatusFailed))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	txn := h.txRepo.get(t, provider.IDCircle, "tx-1")
	assert.Equal(t, domain.PaymentStatusFailed, txn.PaymentStatus)
	require.NotNil(t, txn.FailureReason)

	events := waitForNotifications(t, h.notifier, 1)
	assert.Equal(t, notify.KindPaymentFailed, events[0].Kind)
}

func TestClassifyDerivesTypeFromDirectionAndAsset(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		direction domain.Direction
		asset     string
		want      domain.TransactionType
	}{
		{domain.DirectionInbound, "USDC", domain.TransactionTypeCryptoDeposit},
		{domain.DirectionInbound, "NGN", domain.TransactionTypeFiatToCrypto},
		{domain.DirectionOutbound, "USDC", domain.TransactionTypeCryptoWithdrawal},
		{domain.DirectionOutbound, "NGN", domain.TransactionTypeCryptoToFiat},
	}
	for _, tc := range cases {
		got := h.rec.classify(&domain.TransactionEvent{Direction: tc.direction, AssetCode: tc.asset})
		assert.Equal(t, tc.want, got, "%s %s", tc.direction, tc.asset)
	}
}

// inboundEventStatus clones ev's identity with a new event id and status, for
// driving an existing transaction further along its lifecycle.
func inboundEventStatus(eventID, txID string, status domain.CanonicalStatus, ev *domain.TransactionEvent) *domain.TransactionEvent {
	next := *ev
	next.ExternalEventID = eventID
	next.ExternalTransactionID = txID
	next.Status = status
	return &next
}
