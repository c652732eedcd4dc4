// Package models defines plan, billing profile and generation job types.
package models

import "time"

type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Subscription statuses we set ourselves. Statuses copied from Stripe
// (past_due, unpaid, ...) are stored verbatim.
const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
)

// Profile is the per-user billing record. Plan and SubscriptionStatus are
// NULL until the first successful checkout; Credits never goes below zero.
type Profile struct {
	UserID               string     `db:"id"`
	Email                string     `db:"email"`
	StripeCustomerID     string     `db:"stripe_customer_id"`
	StripeSubscriptionID string     `db:"stripe_subscription_id"`
	Plan                 *Plan      `db:"plan"`
	SubscriptionStatus   *string    `db:"subscription_status"`
	Credits              int        `db:"credits"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end"`
}

// HasPlan reports whether the profile currently carries a paid plan.
func (p Profile) HasPlan() bool {
	return p.Plan != nil && *p.Plan != ""
}
