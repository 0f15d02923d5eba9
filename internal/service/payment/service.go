package payment

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"restaurant-fulfillment/internal/auth"
	"restaurant-fulfillment/internal/domain"
	paymentrepo "restaurant-fulfillment/internal/repository/payment"
	ordersvc "restaurant-fulfillment/internal/service/order"
)

const defaultMatchAttempts = 3

type orderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type Service struct {
	repo        paymentrepo.Repository
	orders      orderReader
	guard       Guard
	secureToken string
	attempts    int
	logger      zerolog.Logger
	now         func() time.Time
}

type Options struct {
	// SecureToken is compared against the Secure-Token header. Empty disables the check.
	SecureToken string
	// Guard is optional.
	Guard Guard
	// MatchAttempts bounds the candidate search when order claims are lost. Defaults to 3.
	MatchAttempts int
}

func New(repo paymentrepo.Repository, orders orderReader, logger zerolog.Logger, opts Options) *Service {
	attempts := opts.MatchAttempts
	if attempts <= 0 {
		attempts = defaultMatchAttempts
	}
	return &Service{
		repo:        repo,
		orders:      orders,
		guard:       opts.Guard,
		secureToken: opts.SecureToken,
		attempts:    attempts,
		logger:      logger,
		now:         time.Now,
	}
}

// VerifyToken checks the webhook's Secure-Token header.
func (s *Service) VerifyToken(header string) bool {
	if s.secureToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(header), []byte(s.secureToken)) == 1
}

// Ingest records and matches every transaction in a webhook delivery. Each
// transaction is handled on its own; the returned error joins the ones that
// Casso should retry.
func (s *Service) Ingest(ctx context.Context, hook Webhook) ([]domain.MatchResult, error) {
	if hook.Error != 0 {
		return nil, domain.Validationf("casso reported error %d", hook.Error)
	}
	now := s.now()
	txs := make([]domain.CassoTransaction, 0, len(hook.Data))
	for _, entry := range hook.Data {
		tx, err := entry.transaction(now)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	results := make([]domain.MatchResult, 0, len(txs))
	var errs []error
	for _, tx := range txs {
		res, err := s.ingestOne(ctx, tx)
		if err != nil {
			s.logger.Error().Err(err).Str("casso_id", tx.CassoID).Msg("payment: ingest failed")
			errs = append(errs, fmt.Errorf("transaction %s: %w", tx.CassoID, err))
			res = domain.MatchResult{CassoID: tx.CassoID, Status: domain.MatchPending, Reason: "processing failed"}
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (s *Service) ingestOne(ctx context.Context, tx domain.CassoTransaction) (domain.MatchResult, error) {
	stored, created, err := s.repo.Record(ctx, tx)
	if err != nil {
		return domain.MatchResult{}, err
	}
	if !created {
		// A record still pending was interrupted before matching finished and is
		// picked up again; anything else is a plain redelivery.
		if stored.MatchStatus != domain.MatchPending || !s.claim(ctx, tx.CassoID) {
			s.logger.Info().Str("casso_id", tx.CassoID).Int("deliveries", stored.DeliveryCount).Msg("payment: duplicate delivery")
			return domain.MatchResult{
				CassoID:     stored.CassoID,
				Status:      domain.MatchDuplicate,
				OrderID:     stored.OrderID,
				OrderNumber: stored.OrderNumber,
				Reason:      "already received as " + string(stored.MatchStatus),
			}, nil
		}
	} else {
		s.claim(ctx, tx.CassoID)
	}
	return s.match(ctx, *stored)
}

// claim fails open: without Redis the database constraints still hold.
func (s *Service) claim(ctx context.Context, cassoID string) bool {
	if s.guard == nil {
		return true
	}
	ok, err := s.guard.Claim(ctx, cassoID)
	if err != nil {
		s.logger.Warn().Err(err).Str("casso_id", cassoID).Msg("payment: dedupe guard unavailable")
		return true
	}
	return ok
}

func (s *Service) match(ctx context.Context, tx domain.CassoTransaction) (domain.MatchResult, error) {
	reason := ""
	for attempt := 1; attempt <= s.attempts; attempt++ {
		candidates, err := s.repo.Candidates(ctx, tx.Amount)
		if err != nil {
			return domain.MatchResult{}, err
		}
		order, why := pick(candidates, tx.Description)
		if order == nil {
			reason = why
			break
		}

		err = s.settle(ctx, tx, order)
		switch {
		case err == nil:
			s.logger.Info().Str("casso_id", tx.CassoID).Str("order_number", order.OrderNumber).Int64("amount", tx.Amount).Msg("payment: matched")
			return domain.MatchResult{CassoID: tx.CassoID, Status: domain.MatchMatched, OrderID: order.ID, OrderNumber: order.OrderNumber}, nil
		case errors.Is(err, domain.ErrAlreadyMatched):
			current, gerr := s.repo.Get(ctx, tx.CassoID)
			if gerr != nil {
				return domain.MatchResult{}, gerr
			}
			return domain.MatchResult{CassoID: tx.CassoID, Status: domain.MatchDuplicate, OrderID: current.OrderID, OrderNumber: current.OrderNumber, Reason: "matched concurrently"}, nil
		case errors.Is(err, domain.ErrConflict):
			s.logger.Debug().Str("casso_id", tx.CassoID).Str("order_number", order.OrderNumber).Int("attempt", attempt).Msg("payment: order claimed concurrently, retrying")
			reason = "order claimed concurrently"
			continue
		default:
			return domain.MatchResult{}, err
		}
	}

	if err := s.repo.MarkUnmatched(ctx, tx.CassoID); err != nil {
		return domain.MatchResult{}, err
	}
	s.logger.Warn().Str("casso_id", tx.CassoID).Int64("amount", tx.Amount).Str("reason", reason).Msg("payment: unmatched")
	return domain.MatchResult{CassoID: tx.CassoID, Status: domain.MatchUnmatched, Reason: reason}, nil
}

// settle claims the order and marks the transaction matched, queueing the
// paid event in the same database transaction.
func (s *Service) settle(ctx context.Context, tx domain.CassoTransaction, order *domain.Order) error {
	now := s.now().UTC()
	paid := *order
	paid.Payment.Status = domain.PaymentPaid
	paid.Payment.TransactionID = tx.CassoID
	paid.Payment.PaidAt = &now
	paid.UpdatedAt = now
	event, err := ordersvc.EventTask(&paid, now)
	if err != nil {
		return err
	}
	return s.repo.Match(ctx, paymentrepo.MatchInput{
		CassoID:     tx.CassoID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		MatchedAt:   now,
		Tasks:       []domain.NewTask{event},
	})
}

// pick chooses the order a transaction pays for. With several orders of the
// same total the description must name exactly one of them.
func pick(candidates []domain.Order, description string) (*domain.Order, string) {
	switch len(candidates) {
	case 0:
		return nil, "no order awaiting this amount"
	case 1:
		return &candidates[0], ""
	}
	ref := domain.NormalizeReference(description)
	var hit *domain.Order
	for i := range candidates {
		number := domain.NormalizeReference(candidates[i].OrderNumber)
		if number == "" || !strings.Contains(ref, number) {
			continue
		}
		if hit != nil {
			return nil, "description names more than one order"
		}
		hit = &candidates[i]
	}
	if hit == nil {
		return nil, fmt.Sprintf("%d orders await this amount and the description names none", len(candidates))
	}
	return hit, ""
}

// ManualMatch lets an operator settle an unmatched transaction by hand.
func (s *Service) ManualMatch(ctx context.Context, cassoID, orderID string, actor auth.Actor) (domain.MatchResult, error) {
	if !actor.Can(auth.PermPaymentsReconcile) {
		return domain.MatchResult{}, fmt.Errorf("%w: %s may not reconcile payments", domain.ErrForbidden, actor.Role)
	}
	tx, err := s.repo.Get(ctx, cassoID)
	if err != nil {
		return domain.MatchResult{}, err
	}
	switch tx.MatchStatus {
	case domain.MatchUnmatched:
	case domain.MatchMatched:
		return domain.MatchResult{}, fmt.Errorf("%w: transaction %s paid order %s", domain.ErrAlreadyMatched, tx.CassoID, tx.OrderNumber)
	default:
		return domain.MatchResult{}, domain.Conflictf("transaction %s is %s", tx.CassoID, tx.MatchStatus)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return domain.MatchResult{}, err
	}
	if order.Payment.Status != domain.PaymentAwaiting {
		return domain.MatchResult{}, domain.Conflictf("order %s payment is %s", order.OrderNumber, order.Payment.Status)
	}
	if order.Pricing.Total != tx.Amount {
		return domain.MatchResult{}, domain.Validationf("transaction amount %d does not equal order total %d", tx.Amount, order.Pricing.Total)
	}

	if err := s.settle(ctx, *tx, order); err != nil {
		return domain.MatchResult{}, err
	}
	s.logger.Info().Str("casso_id", tx.CassoID).Str("order_number", order.OrderNumber).Str("actor", actor.Name()).Msg("payment: matched manually")
	return domain.MatchResult{CassoID: tx.CassoID, Status: domain.MatchMatched, OrderID: order.ID, OrderNumber: order.OrderNumber}, nil
}

func (s *Service) FindUnmatched(ctx context.Context, limit, offset int, actor auth.Actor) ([]domain.CassoTransaction, error) {
	if !actor.Can(auth.PermPaymentsReconcile) {
		return nil, fmt.Errorf("%w: %s may not reconcile payments", domain.ErrForbidden, actor.Role)
	}
	return s.repo.ListUnmatched(ctx, limit, offset)
}
