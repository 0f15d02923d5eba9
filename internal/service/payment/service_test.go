package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
	paymentrepo "restaurant-fulfillment/internal/repository/payment"
)

type memoryRepo struct {
	txs         map[string]*domain.CassoTransaction
	orders      map[string]*domain.Order
	stealClaims int
	recordErr   error
	matches     []paymentrepo.MatchInput
}

func newMemoryRepo(orders ...domain.Order) *memoryRepo {
	r := &memoryRepo{txs: map[string]*domain.CassoTransaction{}, orders: map[string]*domain.Order{}}
	for i := range orders {
		o := orders[i]
		r.orders[o.ID] = &o
	}
	return r
}

func (r *memoryRepo) Record(_ context.Context, tx domain.CassoTransaction) (*domain.CassoTransaction, bool, error) {
	if r.recordErr != nil {
		return nil, false, r.recordErr
	}
	if existing, ok := r.txs[tx.CassoID]; ok {
		existing.DeliveryCount++
		cp := *existing
		return &cp, false, nil
	}
	tx.DeliveryCount = 1
	r.txs[tx.CassoID] = &tx
	cp := tx
	return &cp, true, nil
}

func (r *memoryRepo) Get(_ context.Context, id string) (*domain.CassoTransaction, error) {
	tx, ok := r.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *memoryRepo) Candidates(_ context.Context, amount int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.orders {
		if o.Payment.Status == domain.PaymentAwaiting && o.Pricing.Total == amount {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *memoryRepo) Match(_ context.Context, in paymentrepo.MatchInput) error {
	tx := r.txs[in.CassoID]
	if tx.MatchStatus != domain.MatchPending && tx.MatchStatus != domain.MatchUnmatched {
		return domain.ErrAlreadyMatched
	}
	o := r.orders[in.OrderID]
	if r.stealClaims > 0 {
		r.stealClaims--
		o.Payment.Status = domain.PaymentPaid
	}
	if o.Payment.Status != domain.PaymentAwaiting {
		return domain.Conflictf("order %s already paid", o.OrderNumber)
	}
	o.Payment.Status = domain.PaymentPaid
	o.Payment.TransactionID = in.CassoID
	tx.MatchStatus = domain.MatchMatched
	tx.Processed = true
	tx.OrderID = in.OrderID
	tx.OrderNumber = in.OrderNumber
	r.matches = append(r.matches, in)
	return nil
}

func (r *memoryRepo) MarkUnmatched(_ context.Context, id string) error {
	if tx := r.txs[id]; tx.MatchStatus == domain.MatchPending {
		tx.MatchStatus = domain.MatchUnmatched
		tx.Processed = true
	}
	return nil
}

func (r *memoryRepo) ListUnmatched(_ context.Context, _, _ int) ([]domain.CassoTransaction, error) {
	var out []domain.CassoTransaction
	for _, tx := range r.txs {
		if tx.MatchStatus == domain.MatchUnmatched {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

type stubGuard struct {
	held map[string]bool
	err  error
}

func (g *stubGuard) Claim(_ context.Context, id string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.held[id] {
		return false, nil
	}
	g.held[id] = true
	return true, nil
}

func awaiting(id, number string, total int64) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: number,
		Pricing:     domain.OrderPricing{Subtotal: total, Total: total},
		Payment:     domain.Payment{Method: domain.PaymentBankTransfer, Status: domain.PaymentAwaiting},
		Status:      domain.StatusPending,
	}
}

func hook(entries ...WebhookEntry) Webhook {
	return Webhook{Data: entries}
}

func entry(id string, amount string, desc string) WebhookEntry {
	return WebhookEntry{ID: json.Number(id), TID: "TF" + id, Amount: json.Number(amount), Description: desc, When: "2026-10-15 10:00:00"}
}

func newService(repo *memoryRepo, opts Options) *Service {
	svc := New(repo, repo, zerolog.Nop(), opts)
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC) }
	return svc
}

func TestIngestSingleCandidateMatches(t *testing.T) {
	repo := newMemoryRepo(awaiting("o1", "ORD261015AAAAAA", 246000))
	svc := newService(repo, Options{})

	res, err := svc.Ingest(context.Background(), hook(entry("1001", "246000", "thanh toan don hang")))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.MatchMatched, res[0].Status)
	assert.Equal(t, "o1", res[0].OrderID)
	assert.Equal(t, domain.PaymentPaid, repo.orders["o1"].Payment.Status)

	require.Len(t, repo.matches, 1)
	require.Len(t, repo.matches[0].Tasks, 1)
	var ev domain.OrderEvent
	require.NoError(t, json.Unmarshal(repo.matches[0].Tasks[0].Payload, &ev))
	assert.Equal(t, domain.PaymentPaid, ev.PaymentStatus)

	stored := repo.txs["1001"]
	assert.Equal(t, time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC), stored.When)
}

func TestIngestDuplicateDeliveryMatchesOnce(t *testing.T) {
	repo := newMemoryRepo(awaiting("o1", "ORD261015AAAAAA", 246000))
	svc := newService(repo, Options{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, hook(entry("1001", "246000", "")))
	require.NoError(t, err)
	res, err := svc.Ingest(ctx, hook(entry("1001", "246000", "")))
	require.NoError(t, err)

	assert.Equal(t, domain.MatchDuplicate, res[0].Status)
	assert.Equal(t, "o1", res[0].OrderID)
	assert.Len(t, repo.matches, 1)
	assert.Equal(t, 2, repo.txs["1001"].DeliveryCount)
	assert.Equal(t, domain.MatchMatched, repo.txs["1001"].MatchStatus)
}

func TestIngestAmbiguousResolvedByDescription(t *testing.T) {
	repo := newMemoryRepo(
		awaiting("o1", "ORD261015AAAAAA", 100000),
		awaiting("o2", "ORD261015BBBBBB", 100000),
	)
	svc := newService(repo, Options{})

	res, err := svc.Ingest(context.Background(), hook(entry("2001", "100000", "CK ord-261015 bbbbbb cam on")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchMatched, res[0].Status)
	assert.Equal(t, "o2", res[0].OrderID)
	assert.Equal(t, domain.PaymentAwaiting, repo.orders["o1"].Payment.Status)
}

func TestIngestAmbiguousWithoutReferenceIsUnmatched(t *testing.T) {
	repo := newMemoryRepo(
		awaiting("o1", "ORD261015AAAAAA", 100000),
		awaiting("o2", "ORD261015BBBBBB", 100000),
	)
	svc := newService(repo, Options{})

	res, err := svc.Ingest(context.Background(), hook(entry("2002", "100000", "chuyen tien")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchUnmatched, res[0].Status)
	assert.Equal(t, domain.MatchUnmatched, repo.txs["2002"].MatchStatus)
	assert.Equal(t, domain.PaymentAwaiting, repo.orders["o1"].Payment.Status)
	assert.Equal(t, domain.PaymentAwaiting, repo.orders["o2"].Payment.Status)

	res, err = svc.Ingest(context.Background(), hook(entry("2003", "100000", "ORD261015AAAAAA ORD261015BBBBBB")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchUnmatched, res[0].Status)
}

func TestIngestNoCandidateIsUnmatched(t *testing.T) {
	repo := newMemoryRepo(awaiting("o1", "ORD261015AAAAAA", 246000))
	svc := newService(repo, Options{})

	res, err := svc.Ingest(context.Background(), hook(entry("3001", "245999", "")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchUnmatched, res[0].Status)
	assert.Equal(t, domain.PaymentAwaiting, repo.orders["o1"].Payment.Status)
}

func TestIngestRetriesLostClaimThenGivesUp(t *testing.T) {
	repo := newMemoryRepo(
		awaiting("o1", "ORD261015AAAAAA", 50000),
		awaiting("o2", "ORD261015BBBBBB", 70000),
	)
	repo.stealClaims = 1
	svc := newService(repo, Options{})

	res, err := svc.Ingest(context.Background(), hook(entry("4001", "50000", "")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchUnmatched, res[0].Status, "the only candidate was paid by someone else")
	assert.Empty(t, repo.matches)
}

func TestIngestEachTransactionIndependently(t *testing.T) {
	repo := newMemoryRepo(awaiting("o1", "ORD261015AAAAAA", 50000))
	svc := newService(repo, Options{})

	res, err := svc.Ingest(context.Background(), hook(entry("5001", "50000", ""), entry("5002", "1", "")))
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, domain.MatchMatched, res[0].Status)
	assert.Equal(t, domain.MatchUnmatched, res[1].Status)
}

func TestIngestStoreErrorIsReported(t *testing.T) {
	repo := newMemoryRepo()
	repo.recordErr = errors.New("db down")
	svc := newService(repo, Options{})

	res, err := svc.Ingest(context.Background(), hook(entry("6001", "50000", "")))
	require.Error(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.MatchPending, res[0].Status)
}

func TestIngestRejectsMalformedPayload(t *testing.T) {
	svc := newService(newMemoryRepo(), Options{})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, Webhook{Error: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Ingest(ctx, hook(entry("", "100", "")))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Ingest(ctx, hook(entry("7001", "-5", "")))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Ingest(ctx, hook(entry("7002", "10.5", "")))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestInterruptedRecordIsResumedOnce(t *testing.T) {
	repo := newMemoryRepo(awaiting("o1", "ORD261015AAAAAA", 80000))
	repo.txs["8001"] = &domain.CassoTransaction{CassoID: "8001", Amount: 80000, MatchStatus: domain.MatchPending, DeliveryCount: 1}
	guard := &stubGuard{held: map[string]bool{}}
	svc := newService(repo, Options{Guard: guard})

	res, err := svc.Ingest(context.Background(), hook(entry("8001", "80000", "")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchMatched, res[0].Status)

	repo.txs["8002"] = &domain.CassoTransaction{CassoID: "8002", Amount: 1, MatchStatus: domain.MatchPending}
	guard.held["8002"] = true
	res, err = svc.Ingest(context.Background(), hook(entry("8002", "1", "")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchDuplicate, res[0].Status)
	assert.Equal(t, domain.MatchPending, repo.txs["8002"].MatchStatus)
}

func TestGuardFailureFailsOpen(t *testing.T) {
	repo := newMemoryRepo(awaiting("o1", "ORD261015AAAAAA", 80000))
	svc := newService(repo, Options{Guard: &stubGuard{err: errors.New("redis down")}})

	res, err := svc.Ingest(context.Background(), hook(entry("9001", "80000", "")))
	require.NoError(t, err)
	assert.Equal(t, domain.MatchMatched, res[0].Status)
}

func TestVerifyToken(t *testing.T) {
	open := newService(newMemoryRepo(), Options{})
	assert.True(t, open.VerifyToken(""))

	locked := newService(newMemoryRepo(), Options{SecureToken: "s3cret"})
	assert.True(t, locked.VerifyToken("s3cret"))
	assert.False(t, locked.VerifyToken("s3cre"))
	assert.False(t, locked.VerifyToken(""))
}

func TestManualMatch(t *testing.T) {
	repo := newMemoryRepo(awaiting("o1", "ORD261015AAAAAA", 90000), awaiting("o2", "ORD261015BBBBBB", 91000))
	svc := newService(repo, Options{})
	ctx := context.Background()
	manager := auth.Actor{ID: "m1", Role: auth.RoleManager}
	staff := auth.Actor{ID: "s1", Role: auth.RoleStaff}

	res, err := svc.Ingest(ctx, hook(entry("10001", "90000", ""), entry("10002", "90000", "")))
	require.NoError(t, err)
	require.Equal(t, domain.MatchMatched, res[0].Status)
	require.Equal(t, domain.MatchUnmatched, res[1].Status)

	_, err = svc.ManualMatch(ctx, "10002", "o2", staff)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.ManualMatch(ctx, "10002", "o2", manager)
	assert.ErrorIs(t, err, domain.ErrValidation, "amount differs from order total")

	_, err = svc.ManualMatch(ctx, "10002", "o1", manager)
	assert.ErrorIs(t, err, domain.ErrConflict, "order already paid")

	_, err = svc.ManualMatch(ctx, "10001", "o2", manager)
	assert.ErrorIs(t, err, domain.ErrAlreadyMatched)

	repo.orders["o2"].Pricing.Total = 90000
	got, err := svc.ManualMatch(ctx, "10002", "o2", manager)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchMatched, got.Status)
	assert.Equal(t, domain.PaymentPaid, repo.orders["o2"].Payment.Status)

	unmatched, err := svc.FindUnmatched(ctx, 10, 0, manager)
	require.NoError(t, err)
	assert.Empty(t, unmatched)

	_, err = svc.FindUnmatched(ctx, 10, 0, staff)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestPick(t *testing.T) {
	a := awaiting("o1", "ORD261015AAAAAA", 1)
	b := awaiting("o2", "ORD261015BBBBBB", 1)

	got, _ := pick([]domain.Order{a}, "")
	require.NotNil(t, got)
	assert.Equal(t, "o1", got.ID)

	got, reason := pick(nil, "ORD261015AAAAAA")
	assert.Nil(t, got)
	assert.NotEmpty(t, reason)

	got, _ = pick([]domain.Order{a, b}, "pay ord261015aaaaaa")
	require.NotNil(t, got)
	assert.Equal(t, "o1", got.ID)
}
