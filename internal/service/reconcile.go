package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/fibpay/internal/domain"
	"github.com/utafrali/fibpay/internal/repository"
)

// StatusChecker is the single operation the reconciler drives.
type StatusChecker interface {
	CheckPaymentStatus(ctx context.Context, fibPaymentID string) (*domain.Payment, error)
}

// Reconciler periodically re-checks payments stuck in PENDING against the
// gateway. Callbacks can be lost; the sweep guarantees stale payments
// eventually converge on the gateway's view.
type Reconciler struct {
	repo     repository.PaymentRepository
	checker  StatusChecker
	interval time.Duration
	minAge   time.Duration
	logger   *slog.Logger
}

// NewReconciler creates a reconciliation sweep. interval controls how often
// the sweep runs; minAge is how old a PENDING payment must be before it is
// re-checked.
func NewReconciler(
	repo repository.PaymentRepository,
	checker StatusChecker,
	interval, minAge time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		repo:     repo,
		checker:  checker,
		interval: interval,
		minAge:   minAge,
		logger:   logger,
	}
}

// Run executes the sweep on a fixed interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started",
		slog.Duration("interval", r.interval),
		slog.Duration("min_age", r.minAge),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Sweep re-checks every PENDING payment older than minAge. Individual check
// failures are logged and skipped so one unreachable payment does not stall
// the rest.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.minAge)

	stale, err := r.repo.ListStaleByStatus(ctx, []string{domain.PaymentStatusPending}, cutoff)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	r.logger.Info("reconciling stale payments", slog.Int("count", len(stale)))

	for _, p := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.checker.CheckPaymentStatus(ctx, p.FIBPaymentID); err != nil {
			r.logger.Warn("failed to reconcile payment",
				slog.String("fib_payment_id", p.FIBPaymentID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
