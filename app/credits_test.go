package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// newMockDB swaps the package db for a sqlmock instance for one test.
func newMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	d, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	prev := db
	db = d
	t.Cleanup(func() {
		db = prev
		d.Close()
	})
	return mock
}

func TestCanAffordNoProfile(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectQuery(`FROM user_profiles\s+WHERE id`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, err := CanAfford(context.Background(), "user-1", 1)
	if err != nil {
		t.Fatalf("CanAfford error = %v", err)
	}
	if ok {
		t.Fatalf("CanAfford with no profile = true, want false")
	}
}

func TestCanAfford(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectQuery(`FROM user_profiles\s+WHERE id`).
		WithArgs("user-1").
		WillReturnRows(profileRows("user-1", 30))

	ok, err := CanAfford(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("CanAfford error = %v", err)
	}
	if !ok {
		t.Fatalf("CanAfford(30 credits, 10) = false, want true")
	}
}

func profileRows(userID string, credits int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "stripe_customer_id", "stripe_subscription_id",
		"plan", "subscription_status", "credits", "current_period_end",
	}).AddRow(userID, "user@example.test", nil, nil, nil, nil, credits, nil)
}

func creditRows(credits int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"credits"}).AddRow(credits)
}

func TestDeductCreditsSuccess(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits\s+FROM user_profiles`).
		WithArgs("user-1").
		WillReturnRows(creditRows(30))
	mock.ExpectExec(`UPDATE user_profiles SET`).
		WithArgs(20, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := DeductCredits(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("DeductCredits error = %v", err)
	}
	if !ok {
		t.Fatalf("DeductCredits(30, 10) = false, want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductCreditsInsufficient(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits\s+FROM user_profiles`).
		WithArgs("user-1").
		WillReturnRows(creditRows(5))
	mock.ExpectRollback()

	ok, err := DeductCredits(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("DeductCredits error = %v", err)
	}
	if ok {
		t.Fatalf("DeductCredits(5, 10) = true, want false")
	}
	// No UPDATE was expected: an insufficient balance must not mutate.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeductCreditsMissingProfile(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits\s+FROM user_profiles`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"credits"}))
	mock.ExpectRollback()

	ok, err := DeductCredits(context.Background(), "ghost", 1)
	if err != nil {
		t.Fatalf("DeductCredits error = %v", err)
	}
	if ok {
		t.Fatalf("DeductCredits for missing profile = true, want false")
	}
}

// Two deductions of 10 against a balance of 10, issued at the same instant:
// exactly one may succeed and the final balance is 0, never negative.
func TestDeductCreditsConcurrent(t *testing.T) {
	mock := newMockDB(t)

	// The per-user lock serializes the two transactions; whichever handler
	// wins sees 10 and spends it, the loser sees 0 and declines.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits\s+FROM user_profiles`).
		WithArgs("user-1").
		WillReturnRows(creditRows(10))
	mock.ExpectExec(`UPDATE user_profiles SET`).
		WithArgs(0, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits\s+FROM user_profiles`).
		WithArgs("user-1").
		WillReturnRows(creditRows(0))
	mock.ExpectRollback()

	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ok, err := DeductCredits(context.Background(), "user-1", 10)
			if err != nil {
				t.Errorf("DeductCredits error = %v", err)
			}
			results <- ok
		}()
	}

	succeeded := 0
	for i := 0; i < 2; i++ {
		if <-results {
			succeeded++
		}
	}

	if succeeded != 1 {
		t.Fatalf("concurrent deducts: %d succeeded, want exactly 1", succeeded)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// Negative amounts are a programming error; they must fail loudly instead of
// reporting a successful no-op.
func TestDeductCreditsNegativeAmount(t *testing.T) {
	newMockDB(t)
	ok, err := DeductCredits(context.Background(), "user-1", -5)
	if err == nil {
		t.Fatalf("DeductCredits(-5) = %v, want error", ok)
	}
	if ok {
		t.Fatalf("DeductCredits(-5) reported success")
	}
}

func TestAddCreditsNegativeAmount(t *testing.T) {
	newMockDB(t)
	if err := AddCredits(context.Background(), "user-1", -5); err == nil {
		t.Fatalf("AddCredits(-5) = nil, want error")
	}
}

func TestAddCredits(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT credits\s+FROM user_profiles`).
		WithArgs("user-1").
		WillReturnRows(creditRows(5))
	mock.ExpectExec(`UPDATE user_profiles SET`).
		WithArgs(15, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := AddCredits(context.Background(), "user-1", 10); err != nil {
		t.Fatalf("AddCredits error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReconcileFromSubscriptionIdempotent(t *testing.T) {
	t.Setenv("STRIPE_STARTER_PRICE_ID", "price_starter")
	t.Setenv("STRIPE_PROFESSIONAL_PRICE_ID", "price_pro")

	periodEnd := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	snap := SubscriptionSnapshot{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		Status:         "active",
		PriceID:        "price_pro",
		PeriodEnd:      &periodEnd,
	}

	mock := newMockDB(t)
	// Applying the same snapshot twice issues the identical overwrite twice.
	for i := 0; i < 2; i++ {
		mock.ExpectExec(`UPDATE user_profiles SET`).
			WithArgs("cus_1", "sub_1", "professional", "active", 100, periodEnd, "user-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for i := 0; i < 2; i++ {
		result, err := ReconcileFromSubscription(context.Background(), "user-1", snap)
		if err != nil {
			t.Fatalf("ReconcileFromSubscription error = %v", err)
		}
		if result.Plan != "professional" || result.Credits != 100 || result.Status != "active" {
			t.Fatalf("ReconcileFromSubscription result = %+v", result)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReconcileUnknownPriceDefaultsToStarter(t *testing.T) {
	t.Setenv("STRIPE_STARTER_PRICE_ID", "price_starter")
	t.Setenv("STRIPE_PROFESSIONAL_PRICE_ID", "price_pro")

	mock := newMockDB(t)
	mock.ExpectExec(`UPDATE user_profiles SET`).
		WithArgs("sub_9", "starter", "active", 30, nil, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := ReconcileFromSubscription(context.Background(), "user-1", SubscriptionSnapshot{
		SubscriptionID: "sub_9",
		Status:         "active",
		PriceID:        "price_unknown",
	})
	if err != nil {
		t.Fatalf("ReconcileFromSubscription error = %v", err)
	}
	if result.Plan != "starter" || result.Credits != 30 {
		t.Fatalf("unknown price id reconciled to %+v, want starter/30", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCancelSubscription(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectExec(`UPDATE user_profiles SET`).
		WithArgs(nil, "canceled", 0, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := CancelSubscription(context.Background(), "user-1"); err != nil {
		t.Fatalf("CancelSubscription error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
