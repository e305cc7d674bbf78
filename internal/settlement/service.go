package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fleetline/fleetline/internal/observability"
	"github.com/fleetline/fleetline/internal/shared"
)

// OrderSource supplies order facts for settlement math. Implemented by the
// integration adapter over the orders repository.
type OrderSource interface {
	FactsByDriver(ctx context.Context, driverID int64, from, to *time.Time) ([]OrderFact, error)
}

// SummaryCache caches computed earnings summaries. Satisfied by Cache.
type SummaryCache interface {
	Get(ctx context.Context, driverID int64, scope string) (*EarningsSummary, error)
	Set(ctx context.Context, driverID int64, scope string, summary EarningsSummary) error
	InvalidateDriver(ctx context.Context, driverID int64) error
}

// ApprovalSink records the boss payment approval trail. Satisfied by
// shared.ApprovalRecorder.
type ApprovalSink interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// AuditSink records settlement mutations. Satisfied by shared.AuditLogger.
type AuditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const (
	approvalModule  = "boss_payments"
	minReasonLength = 5
)

// Service computes driver earnings and runs the payment workflows.
type Service struct {
	repo      RepositoryPort
	orders    OrderSource
	cache     SummaryCache
	approvals ApprovalSink
	audit     AuditSink
	metrics   *observability.Metrics
	group     singleflight.Group
	now       func() time.Time
}

func NewService(
	repo RepositoryPort,
	orders OrderSource,
	cache SummaryCache,
	approvals ApprovalSink,
	audit AuditSink,
	metrics *observability.Metrics,
) *Service {
	return &Service{
		repo:      repo,
		orders:    orders,
		cache:     cache,
		approvals: approvals,
		audit:     audit,
		metrics:   metrics,
		now:       time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// DriverEarnings returns the driver's settlement summary. An empty or "all"
// period covers the full history; day/week/month scope the sales figures to
// the period containing date while HoldingAmount stays all-time.
func (s *Service) DriverEarnings(ctx context.Context, driverID int64, period string, date time.Time) (EarningsSummary, error) {
	if driverID <= 0 {
		return EarningsSummary{}, fmt.Errorf("%w: invalid driver id", shared.ErrValidation)
	}

	scope := ScopeAllTime
	var from, to *time.Time
	if period != "" && period != ScopeAllTime {
		start, end, err := shared.PeriodRange(period, date)
		if err != nil {
			return EarningsSummary{}, err
		}
		from, to = &start, &end
		scope = fmt.Sprintf("%s:%s", period, start.Format("2006-01-02"))
	}

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, driverID, scope); err == nil && cached != nil {
			return *cached, nil
		}
	}

	key := fmt.Sprintf("%d:%s", driverID, scope)
	v, err, _ := s.group.Do(key, func() (any, error) {
		summary, err := s.computeScoped(ctx, driverID, scope, from, to)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, driverID, scope, summary)
		}
		return summary, nil
	})
	if err != nil {
		return EarningsSummary{}, err
	}
	return v.(EarningsSummary), nil
}

func (s *Service) computeScoped(ctx context.Context, driverID int64, scope string, from, to *time.Time) (EarningsSummary, error) {
	allTime, err := s.computeAllTime(ctx, driverID)
	if err != nil {
		return EarningsSummary{}, err
	}

	summary := allTime
	if from != nil {
		facts, err := s.orders.FactsByDriver(ctx, driverID, from, to)
		if err != nil {
			return EarningsSummary{}, err
		}
		direct, err := s.repo.DirectPaymentSum(ctx, driverID, from, to)
		if err != nil {
			return EarningsSummary{}, err
		}
		summary = ComputeEarnings(facts, direct, allTime.ApprovedBossPayments)
		// cash on hand does not reset with the reporting window
		summary.HoldingAmount = allTime.HoldingAmount
	}

	summary.DriverID = driverID
	summary.Scope = scope
	summary.GeneratedAt = s.now().UTC()
	return summary, nil
}

func (s *Service) computeAllTime(ctx context.Context, driverID int64) (EarningsSummary, error) {
	facts, err := s.orders.FactsByDriver(ctx, driverID, nil, nil)
	if err != nil {
		return EarningsSummary{}, err
	}
	direct, err := s.repo.DirectPaymentSum(ctx, driverID, nil, nil)
	if err != nil {
		return EarningsSummary{}, err
	}
	approved, err := s.repo.ApprovedBossPaymentSum(ctx, driverID)
	if err != nil {
		return EarningsSummary{}, err
	}
	return ComputeEarnings(facts, direct, approved), nil
}

// RequestPayment opens a pending boss payment for the driver. The amount
// plus all already-pending payments must fit within the current holding.
func (s *Service) RequestPayment(ctx context.Context, actorID, driverID int64, amount decimal.Decimal, reason string) (BossPayment, error) {
	payment, err := s.submitPayment(ctx, driverID, amount, reason, PaymentPending)
	if err != nil {
		return BossPayment{}, err
	}
	s.recordApproval(ctx, actorID, payment.ID, shared.ApprovalSubmit, reason)
	s.recordAudit(ctx, actorID, "boss_payment.request", payment)
	return payment, nil
}

// AdminSubmitPayment records a payment the owner already received; it lands
// approved without a pending step but under the same holding ceiling.
func (s *Service) AdminSubmitPayment(ctx context.Context, actorID, driverID int64, amount decimal.Decimal, reason string) (BossPayment, error) {
	payment, err := s.submitPayment(ctx, driverID, amount, reason, PaymentApproved)
	if err != nil {
		return BossPayment{}, err
	}
	s.recordApproval(ctx, actorID, payment.ID, shared.ApprovalSubmit, reason)
	s.recordApproval(ctx, actorID, payment.ID, shared.ApprovalApprove, "recorded as received")
	s.recordAudit(ctx, actorID, "boss_payment.admin_submit", payment)
	if s.metrics != nil {
		s.metrics.PaymentApproved()
	}
	s.invalidate(ctx, driverID)
	return payment, nil
}

func (s *Service) submitPayment(ctx context.Context, driverID int64, amount decimal.Decimal, reason string, status PaymentStatus) (BossPayment, error) {
	if driverID <= 0 {
		return BossPayment{}, fmt.Errorf("%w: invalid driver id", shared.ErrValidation)
	}
	if !amount.IsPositive() {
		return BossPayment{}, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return BossPayment{}, fmt.Errorf("%w: reason must be at least %d characters", shared.ErrValidation, minReasonLength)
	}

	var payment BossPayment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockDriver(ctx, driverID); err != nil {
			return err
		}
		allTime, err := s.computeAllTime(ctx, driverID)
		if err != nil {
			return err
		}
		pending, err := s.repo.PendingBossPaymentSum(ctx, driverID)
		if err != nil {
			return err
		}
		if amount.Add(pending).GreaterThan(allTime.HoldingAmount) {
			return fmt.Errorf("%w: holding %s, pending %s, requested %s",
				shared.ErrInsufficientHolding, allTime.HoldingAmount, pending, amount)
		}
		payment, err = tx.InsertBossPayment(ctx, BossPayment{
			DriverID: driverID,
			Amount:   amount,
			Reason:   strings.TrimSpace(reason),
			Status:   status,
		})
		return err
	})
	if err != nil {
		return BossPayment{}, err
	}
	return payment, nil
}

// ApprovePayment moves a pending payment to APPROVED, reducing the driver's
// holding amount.
func (s *Service) ApprovePayment(ctx context.Context, actorID, id int64) (BossPayment, error) {
	payment, err := s.resolvePayment(ctx, id, PaymentApproved)
	if err != nil {
		return BossPayment{}, err
	}
	s.recordApproval(ctx, actorID, payment.ID, shared.ApprovalApprove, "")
	s.recordAudit(ctx, actorID, "boss_payment.approve", payment)
	if s.metrics != nil {
		s.metrics.PaymentApproved()
	}
	s.invalidate(ctx, payment.DriverID)
	return payment, nil
}

// CancelPayment voids a pending payment. Approved and cancelled payments are
// terminal.
func (s *Service) CancelPayment(ctx context.Context, actorID, id int64) (BossPayment, error) {
	payment, err := s.resolvePayment(ctx, id, PaymentCancelled)
	if err != nil {
		return BossPayment{}, err
	}
	s.recordApproval(ctx, actorID, payment.ID, shared.ApprovalReject, "")
	s.recordAudit(ctx, actorID, "boss_payment.cancel", payment)
	return payment, nil
}

func (s *Service) resolvePayment(ctx context.Context, id int64, target PaymentStatus) (BossPayment, error) {
	var payment BossPayment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBossPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// hold the driver lock so a concurrent request sees a consistent
		// holding and pending sum
		if err := tx.LockDriver(ctx, current.DriverID); err != nil {
			return err
		}
		if current.Status != PaymentPending {
			return fmt.Errorf("%w: payment %d is %s", shared.ErrInvalidState, id, current.Status)
		}
		if err := tx.UpdateBossPaymentStatus(ctx, id, target); err != nil {
			return err
		}
		current.Status = target
		if target == PaymentApproved {
			now := s.now()
			current.ApprovedAt = &now
		}
		payment = current
		return nil
	})
	if err != nil {
		return BossPayment{}, err
	}
	return payment, nil
}

// AddDirectPayment records a signed earnings adjustment for the driver.
func (s *Service) AddDirectPayment(ctx context.Context, actorID, driverID int64, amount decimal.Decimal, paymentType, reason string) (DirectPayment, error) {
	if driverID <= 0 {
		return DirectPayment{}, fmt.Errorf("%w: invalid driver id", shared.ErrValidation)
	}
	if amount.IsZero() {
		return DirectPayment{}, fmt.Errorf("%w: amount cannot be zero", shared.ErrValidation)
	}
	payment, err := s.repo.InsertDirectPayment(ctx, DirectPayment{
		DriverID:    driverID,
		Amount:      amount,
		PaymentType: paymentType,
		Reason:      reason,
		CreatedBy:   actorID,
	})
	if err != nil {
		return DirectPayment{}, err
	}
	s.recordAudit(ctx, actorID, "direct_payment.add", payment)
	s.invalidate(ctx, driverID)
	return payment, nil
}

// DeleteDirectPayment removes an adjustment and recomputes downstream.
func (s *Service) DeleteDirectPayment(ctx context.Context, actorID, id int64) error {
	payment, err := s.repo.DeleteDirectPayment(ctx, id)
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "direct_payment.delete", payment)
	s.invalidate(ctx, payment.DriverID)
	return nil
}

func (s *Service) ListDirectPayments(ctx context.Context, driverID int64) ([]DirectPayment, error) {
	return s.repo.ListDirectPayments(ctx, driverID, nil, nil)
}

// ListDirectPaymentsByPeriod lists adjustments created inside the period
// containing date.
func (s *Service) ListDirectPaymentsByPeriod(ctx context.Context, driverID int64, period string, date time.Time) ([]DirectPayment, error) {
	from, to, err := shared.PeriodRange(period, date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDirectPayments(ctx, driverID, &from, &to)
}

func (s *Service) GetBossPayment(ctx context.Context, id int64) (BossPayment, error) {
	return s.repo.GetBossPayment(ctx, id)
}

func (s *Service) ListBossPayments(ctx context.Context, driverID *int64, status *PaymentStatus) ([]BossPayment, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", shared.ErrValidation, *status)
	}
	return s.repo.ListBossPayments(ctx, BossPaymentFilter{DriverID: driverID, Status: status})
}

// PendingPayments lists remittances awaiting approval, optionally for one
// driver.
func (s *Service) PendingPayments(ctx context.Context, driverID *int64) ([]BossPayment, error) {
	status := PaymentPending
	return s.repo.ListBossPayments(ctx, BossPaymentFilter{DriverID: driverID, Status: &status})
}

// ApprovedPayments lists approved remittances for a driver inside the period
// containing date.
func (s *Service) ApprovedPayments(ctx context.Context, driverID int64, period string, date time.Time) ([]BossPayment, error) {
	from, to, err := shared.PeriodRange(period, date)
	if err != nil {
		return nil, err
	}
	status := PaymentApproved
	return s.repo.ListBossPayments(ctx, BossPaymentFilter{DriverID: &driverID, Status: &status, From: &from, To: &to})
}

// PaymentHistory lists every remittance for a driver regardless of status.
func (s *Service) PaymentHistory(ctx context.Context, driverID int64) ([]BossPayment, error) {
	return s.repo.ListBossPayments(ctx, BossPaymentFilter{DriverID: &driverID})
}

// InvalidateDriver drops cached earnings for the driver. The orders module
// calls this through its EarningsInvalidator port.
func (s *Service) InvalidateDriver(ctx context.Context, driverID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateDriver(ctx, driverID)
}

func (s *Service) invalidate(ctx context.Context, driverID int64) {
	_ = s.InvalidateDriver(ctx, driverID)
}

func (s *Service) recordApproval(ctx context.Context, actorID, refID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  approvalModule,
		RefID:   refID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now().UTC(),
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entity any) {
	if s.audit == nil {
		return
	}
	var entityID string
	switch e := entity.(type) {
	case BossPayment:
		entityID = fmt.Sprintf("%d", e.ID)
	case DirectPayment:
		entityID = fmt.Sprintf("%d", e.ID)
	default:
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "settlement",
		EntityID: entityID,
		At:       s.now().UTC(),
	})
}
