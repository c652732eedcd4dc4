// Package app enforces the credit ledger for paid generation actions.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"example/staging-api/app/config"
	"example/staging-api/app/models"
)

// Per-user locks serializing in-process credit mutations. Row locks below
// cover concurrent instances; this covers concurrent handlers in one process.
var (
	creditMu    sync.Mutex
	creditLocks = map[string]*sync.Mutex{}
)

func userLock(userID string) *sync.Mutex {
	creditMu.Lock()
	defer creditMu.Unlock()
	lock, ok := creditLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		creditLocks[userID] = lock
	}
	return lock
}

// SubscriptionSnapshot is the slice of a Stripe subscription the ledger
// needs to derive billing state.
type SubscriptionSnapshot struct {
	SubscriptionID string
	CustomerID     string
	Status         string
	PriceID        string
	PeriodEnd      *time.Time
}

// ReconcileResult reports the state written by a reconciliation.
type ReconcileResult struct {
	UserID  string      `json:"userId"`
	Plan    models.Plan `json:"plan"`
	Credits int         `json:"credits"`
	Status  string      `json:"subscriptionStatus"`
}

// CanAfford reports whether the user's stored balance covers amount.
// Pure read, no side effect. A missing profile affords nothing.
func CanAfford(ctx context.Context, userID string, amount int) (bool, error) {
	if db == nil {
		return false, nil
	}
	profile, err := getProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.Credits >= amount, nil
}

// DeductCredits atomically spends amount from the user's balance. It returns
// false with no mutation when the balance is insufficient; a false return
// means the paid action must not proceed. The balance can never go negative.
func DeductCredits(ctx context.Context, userID string, amount int) (bool, error) {
	if db == nil {
		return false, errors.New("db not initialized")
	}
	if amount < 0 {
		return false, fmt.Errorf("negative credit amount %d", amount)
	}

	lock := userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	credits, err := getCreditsForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			return false, nil
		}
		return false, err
	}

	if credits < amount {
		return false, nil
	}

	newCredits := credits - amount
	if err := applyProfileUpdate(ctx, tx, userID, profileUpdate{credits: &newCredits}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// AddCredits grants amount on top of the current balance.
func AddCredits(ctx context.Context, userID string, amount int) error {
	if db == nil {
		return errors.New("db not initialized")
	}
	if amount < 0 {
		return fmt.Errorf("negative credit amount %d", amount)
	}

	lock := userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	credits, err := getCreditsForUpdate(ctx, tx, userID)
	if err != nil {
		return err
	}

	newCredits := credits + amount
	if err := applyProfileUpdate(ctx, tx, userID, profileUpdate{credits: &newCredits}); err != nil {
		return err
	}

	return tx.Commit()
}

// ReconcileFromSubscription overwrites the user's billing state from a
// subscription snapshot. Overwrite-not-increment keeps the operation
// idempotent under duplicated or reordered webhook deliveries: a refill
// always resets the balance to the plan's full allotment, intentionally
// discarding credits already spent this period.
func ReconcileFromSubscription(ctx context.Context, userID string, snap SubscriptionSnapshot) (ReconcileResult, error) {
	if db == nil {
		return ReconcileResult{}, errors.New("db not initialized")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return ReconcileResult{}, err
	}

	plan := PlanForPriceID(cfg, snap.PriceID)
	credits := CreditsForPlan(plan)

	upd := profileUpdate{
		stripeSubscriptionID: &snap.SubscriptionID,
		plan:                 &sql.NullString{String: string(plan), Valid: true},
		subscriptionStatus:   &sql.NullString{String: snap.Status, Valid: snap.Status != ""},
		credits:              &credits,
		currentPeriodEnd:     &sql.NullTime{},
	}
	if snap.CustomerID != "" {
		upd.stripeCustomerID = &snap.CustomerID
	}
	if snap.PeriodEnd != nil {
		upd.currentPeriodEnd = &sql.NullTime{Time: *snap.PeriodEnd, Valid: true}
	}

	lock := userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := applyProfileUpdate(ctx, db, userID, upd); err != nil {
		return ReconcileResult{}, err
	}

	return ReconcileResult{
		UserID:  userID,
		Plan:    plan,
		Credits: credits,
		Status:  snap.Status,
	}, nil
}

// refillForPlan resets the balance to the plan's full allotment and marks the
// subscription active. Used by the invoice-paid webhook; setting rather than
// incrementing keeps redelivery safe.
func refillForPlan(ctx context.Context, userID string, plan models.Plan) (int, error) {
	credits := CreditsForPlan(plan)

	lock := userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	err := applyProfileUpdate(ctx, db, userID, profileUpdate{
		credits:            &credits,
		subscriptionStatus: &sql.NullString{String: models.StatusActive, Valid: true},
	})
	if err != nil {
		return 0, err
	}
	return credits, nil
}

// CancelSubscription is the terminal transition: no plan, no credits. The
// user has to go through checkout again to regain a plan.
func CancelSubscription(ctx context.Context, userID string) error {
	if db == nil {
		return errors.New("db not initialized")
	}

	zero := 0
	upd := profileUpdate{
		plan:               &sql.NullString{},
		subscriptionStatus: &sql.NullString{String: models.StatusCanceled, Valid: true},
		credits:            &zero,
	}

	lock := userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return applyProfileUpdate(ctx, db, userID, upd)
}

func getCreditsForUpdate(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	var credits int
	err := tx.QueryRowContext(ctx, `
		SELECT credits
		FROM user_profiles
		WHERE id = $1
		FOR UPDATE;
	`, userID).Scan(&credits)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errProfileNotFound
		}
		return 0, err
	}
	return credits, nil
}
