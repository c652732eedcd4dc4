// Package app provides billing profile persistence for authenticated users.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"example/staging-api/app/models"
	"example/staging-api/auth"
)

var errProfileNotFound = errors.New("profile not found")

// UpsertProfileFromClaims creates a billing profile row if it does not
// already exist. New users start with no plan and zero credits.
func UpsertProfileFromClaims(ctx context.Context, claims *auth.Claims) error {
	if db == nil {
		return nil
	}
	if claims == nil || claims.Subject == "" {
		return nil
	}

	const q = `
		INSERT INTO user_profiles (id, email, credits)
		VALUES ($1, $2, 0)
		ON CONFLICT (id) DO NOTHING;
	`

	_, err := db.ExecContext(ctx, q, claims.Subject, nullIfEmpty(claims.Email))
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

const profileColumns = `
	id, email, stripe_customer_id, stripe_subscription_id,
	plan, subscription_status, credits, current_period_end
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (models.Profile, error) {
	var (
		p          models.Profile
		email      sql.NullString
		customerID sql.NullString
		subID      sql.NullString
		plan       sql.NullString
		status     sql.NullString
		periodEnd  sql.NullTime
	)
	err := row.Scan(
		&p.UserID,
		&email,
		&customerID,
		&subID,
		&plan,
		&status,
		&p.Credits,
		&periodEnd,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, errProfileNotFound
		}
		return models.Profile{}, err
	}
	p.Email = email.String
	p.StripeCustomerID = customerID.String
	p.StripeSubscriptionID = subID.String
	if plan.Valid {
		pl := models.Plan(plan.String)
		p.Plan = &pl
	}
	if status.Valid {
		s := status.String
		p.SubscriptionStatus = &s
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		p.CurrentPeriodEnd = &t
	}
	return p, nil
}

func getProfileByUserID(ctx context.Context, userID string) (models.Profile, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles
		WHERE id = $1;
	`, userID)
	return scanProfile(row)
}

// getProfileByEmail is only used when no Stripe customer id is known yet.
func getProfileByEmail(ctx context.Context, email string) (models.Profile, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles
		WHERE email = $1;
	`, email)
	return scanProfile(row)
}

func getProfileByStripeCustomer(ctx context.Context, customerID string) (models.Profile, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles
		WHERE stripe_customer_id = $1;
	`, customerID)
	return scanProfile(row)
}

func getProfileByStripeSubscription(ctx context.Context, subscriptionID string) (models.Profile, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM user_profiles
		WHERE stripe_subscription_id = $1;
	`, subscriptionID)
	return scanProfile(row)
}

// profileUpdate is a partial write against a user_profiles row. Nil fields
// are untouched; non-nil Null* fields with Valid=false write SQL NULL.
type profileUpdate struct {
	stripeCustomerID     *string
	stripeSubscriptionID *string
	plan                 *sql.NullString
	subscriptionStatus   *sql.NullString
	credits              *int
	currentPeriodEnd     *sql.NullTime
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// applyProfileUpdate is the single write primitive for user_profiles. Every
// credit/plan/subscription mutation in the package goes through it.
func applyProfileUpdate(ctx context.Context, ex execer, userID string, upd profileUpdate) error {
	sets := []string{"updated_at = now()"}
	args := []any{}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.stripeCustomerID != nil {
		add("stripe_customer_id", *upd.stripeCustomerID)
	}
	if upd.stripeSubscriptionID != nil {
		add("stripe_subscription_id", *upd.stripeSubscriptionID)
	}
	if upd.plan != nil {
		add("plan", *upd.plan)
	}
	if upd.subscriptionStatus != nil {
		add("subscription_status", *upd.subscriptionStatus)
	}
	if upd.credits != nil {
		add("credits", *upd.credits)
	}
	if upd.currentPeriodEnd != nil {
		add("current_period_end", *upd.currentPeriodEnd)
	}

	args = append(args, userID)
	q := fmt.Sprintf(
		"UPDATE user_profiles SET %s WHERE id = $%d;",
		strings.Join(sets, ", "),
		len(args),
	)

	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return errProfileNotFound
	}
	return nil
}
