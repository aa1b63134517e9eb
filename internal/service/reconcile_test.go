package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/fibpay/internal/domain"
)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) CheckPaymentStatus(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	args := m.Called(ctx, fibPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func newTestReconciler(repo *mockRepository, checker *mockChecker) *Reconciler {
	return NewReconciler(repo, checker, time.Minute, 5*time.Minute, newTestLogger())
}

func TestSweep_ChecksEveryStalePayment(t *testing.T) {
	repo := new(mockRepository)
	checker := new(mockChecker)
	r := newTestReconciler(repo, checker)

	stale := []domain.Payment{
		{FIBPaymentID: "fib-1", Status: domain.PaymentStatusPending},
		{FIBPaymentID: "fib-2", Status: domain.PaymentStatusPending},
	}
	repo.On("ListStaleByStatus", mock.Anything, []string{domain.PaymentStatusPending}, mock.AnythingOfType("time.Time")).
		Return(stale, nil)
	checker.On("CheckPaymentStatus", mock.Anything, "fib-1").Return(&domain.Payment{Status: domain.PaymentStatusPaid}, nil)
	checker.On("CheckPaymentStatus", mock.Anything, "fib-2").Return(&domain.Payment{Status: domain.PaymentStatusExpired}, nil)

	err := r.Sweep(context.Background())

	require.NoError(t, err)
	checker.AssertExpectations(t)
}

func TestSweep_ToleratesPerPaymentFailures(t *testing.T) {
	repo := new(mockRepository)
	checker := new(mockChecker)
	r := newTestReconciler(repo, checker)

	stale := []domain.Payment{
		{FIBPaymentID: "fib-1", Status: domain.PaymentStatusPending},
		{FIBPaymentID: "fib-2", Status: domain.PaymentStatusPending},
	}
	repo.On("ListStaleByStatus", mock.Anything, mock.Anything, mock.Anything).Return(stale, nil)
	checker.On("CheckPaymentStatus", mock.Anything, "fib-1").Return(nil, errors.New("gateway down"))
	checker.On("CheckPaymentStatus", mock.Anything, "fib-2").Return(&domain.Payment{Status: domain.PaymentStatusPaid}, nil)

	err := r.Sweep(context.Background())

	require.NoError(t, err)
	checker.AssertCalled(t, "CheckPaymentStatus", mock.Anything, "fib-2")
}

func TestSweep_ListFailurePropagates(t *testing.T) {
	repo := new(mockRepository)
	checker := new(mockChecker)
	r := newTestReconciler(repo, checker)

	repo.On("ListStaleByStatus", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Payment{}, errors.New("db down"))

	err := r.Sweep(context.Background())

	require.Error(t, err)
	checker.AssertNotCalled(t, "CheckPaymentStatus", mock.Anything, mock.Anything)
}

func TestSweep_NothingStale(t *testing.T) {
	repo := new(mockRepository)
	checker := new(mockChecker)
	r := newTestReconciler(repo, checker)

	repo.On("ListStaleByStatus", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Payment{}, nil)

	require.NoError(t, r.Sweep(context.Background()))
	checker.AssertNotCalled(t, "CheckPaymentStatus", mock.Anything, mock.Anything)
}
