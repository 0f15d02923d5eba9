package features

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"restaurant-fulfillment/internal/domain"
	orderrepo "restaurant-fulfillment/internal/repository/order"
	paymentrepo "restaurant-fulfillment/internal/repository/payment"
)

// memoryStore stands in for Postgres: orders, bank transactions and the
// outbox share one lock so a write and its tasks land together.
type memoryStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	txs    map[string]*domain.CassoTransaction
	tasks  []*domain.Task
	paid   int
	seq    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{orders: map[string]*domain.Order{}, txs: map[string]*domain.CassoTransaction{}}
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	cp.Timeline = append([]domain.TimelineEntry(nil), o.Timeline...)
	return &cp
}

func (s *memoryStore) enqueue(tasks []domain.NewTask, now time.Time) {
	for _, t := range tasks {
		s.seq++
		attempts := t.MaxAttempts
		if attempts <= 0 {
			attempts = 8
		}
		s.tasks = append(s.tasks, &domain.Task{
			ID:          "task-" + strconv.Itoa(s.seq),
			Kind:        t.Kind,
			OrderID:     t.OrderID,
			Payload:     t.Payload,
			Status:      domain.TaskPending,
			MaxAttempts: attempts,
			NextRunAt:   now,
			CreatedAt:   now,
		})
	}
}

func (s *memoryStore) Create(_ context.Context, o *domain.Order, tasks []domain.NewTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return domain.ErrAlreadyExists
		}
	}
	s.orders[o.ID] = cloneOrder(o)
	s.enqueue(tasks, time.Now())
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *memoryStore) GetByNumber(_ context.Context, number string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memoryStore) List(_ context.Context, f orderrepo.ListFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) ApplyTransition(_ context.Context, in orderrepo.TransitionInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[in.OrderID]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != in.From {
		return domain.Conflictf("order %s is %s, not %s", o.OrderNumber, o.Status, in.From)
	}
	o.Status = in.To
	o.Timeline = append(o.Timeline, in.Entry)
	o.UpdatedAt = in.Entry.Timestamp
	if in.PaymentStatus != "" {
		o.Payment.Status = in.PaymentStatus
	}
	if in.ActualCompletionTime != nil {
		o.ActualCompletionTime = in.ActualCompletionTime
		o.TotalTime = in.TotalTime
	}
	s.enqueue(in.Tasks, in.Entry.Timestamp)
	return nil
}

func (s *memoryStore) Record(_ context.Context, tx domain.CassoTransaction) (*domain.CassoTransaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.txs[tx.CassoID]; ok {
		existing.DeliveryCount++
		cp := *existing
		return &cp, false, nil
	}
	tx.DeliveryCount = 1
	if tx.MatchStatus == "" {
		tx.MatchStatus = domain.MatchPending
	}
	s.txs[tx.CassoID] = &tx
	cp := tx
	return &cp, true, nil
}

func (s *memoryStore) Get(_ context.Context, cassoID string) (*domain.CassoTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[cassoID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *memoryStore) Candidates(_ context.Context, amount int64) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Payment.Status == domain.PaymentAwaiting && o.Pricing.Total == amount {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, nil
}

func (s *memoryStore) Match(_ context.Context, in paymentrepo.MatchInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[in.CassoID]
	if !ok {
		return domain.ErrNotFound
	}
	if tx.MatchStatus == domain.MatchMatched {
		return domain.ErrAlreadyMatched
	}
	o, ok := s.orders[in.OrderID]
	if !ok || o.Payment.Status != domain.PaymentAwaiting {
		return domain.Conflictf("order %s no longer awaiting payment", in.OrderNumber)
	}
	paidAt := in.MatchedAt
	o.Payment.Status = domain.PaymentPaid
	o.Payment.TransactionID = in.CassoID
	o.Payment.PaidAt = &paidAt
	tx.MatchStatus = domain.MatchMatched
	tx.Processed = true
	tx.OrderID = in.OrderID
	tx.OrderNumber = in.OrderNumber
	tx.MatchedAt = &paidAt
	s.paid++
	s.enqueue(in.Tasks, in.MatchedAt)
	return nil
}

func (s *memoryStore) MarkUnmatched(_ context.Context, cassoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.txs[cassoID]; ok && tx.MatchStatus == domain.MatchPending {
		tx.MatchStatus = domain.MatchUnmatched
		tx.Processed = true
	}
	return nil
}

func (s *memoryStore) ListUnmatched(_ context.Context, _, _ int) ([]domain.CassoTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CassoTransaction
	for _, tx := range s.txs {
		if tx.MatchStatus == domain.MatchUnmatched {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (s *memoryStore) Claim(_ context.Context, now time.Time, limit int, lease time.Duration) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if len(out) >= limit {
			break
		}
		if t.Status != domain.TaskPending || t.NextRunAt.After(now) {
			continue
		}
		t.Attempts++
		t.NextRunAt = now.Add(lease)
		out = append(out, *t)
	}
	return out, nil
}

func (s *memoryStore) task(id string) *domain.Task {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *memoryStore) Complete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.task(id); t != nil {
		t.Status = domain.TaskDone
	}
	return nil
}

func (s *memoryStore) Retry(_ context.Context, id string, nextRunAt time.Time, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.task(id); t != nil {
		t.NextRunAt = nextRunAt
		t.LastError = lastErr
	}
	return nil
}

func (s *memoryStore) Bury(_ context.Context, id string, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.task(id); t != nil {
		t.Status = domain.TaskDead
		t.LastError = lastErr
	}
	return nil
}

func (s *memoryStore) tasksOf(kind domain.TaskKind) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Kind == kind {
			out = append(out, *t)
		}
	}
	return out
}
