package app

import (
	"context"
	"errors"
	"log"
	"time"

	"example/staging-api/app/config"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
)

// InitStripe wires the Stripe API key from the environment.
func InitStripe() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for stripe: %v", err)
	}
	stripe.Key = cfg.Stripe.SecretKey
}

// Stripe API calls behind package vars so handler tests can stub them.
var (
	retrieveSubscription = func(subscriptionID string) (*stripe.Subscription, error) {
		return subscription.Get(subscriptionID, nil)
	}
	retrieveCheckoutSession = func(sessionID string) (*stripe.CheckoutSession, error) {
		return session.Get(sessionID, nil)
	}
	newCheckoutSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return session.New(params)
	}
	newStripeCustomer = func(params *stripe.CustomerParams) (*stripe.Customer, error) {
		return customer.New(params)
	}
	findCustomerByEmail = func(email string) (*stripe.Customer, error) {
		params := &stripe.CustomerListParams{
			Email: stripe.String(email),
		}
		params.Limit = stripe.Int64(1)
		iter := customer.List(params)
		if iter.Next() {
			return iter.Customer(), nil
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	latestSubscriptionForCustomer = func(customerID string) (*stripe.Subscription, error) {
		params := &stripe.SubscriptionListParams{
			Customer: stripe.String(customerID),
			Status:   stripe.String("all"),
		}
		params.Limit = stripe.Int64(1)
		iter := subscription.List(params)
		if iter.Next() {
			return iter.Subscription(), nil
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
)

// ensureStripeCustomer finds or creates a Stripe Customer for the given user.
// It uses user_profiles.stripe_customer_id when present, otherwise creates a
// customer tagged with metadata user_id = <userID> and persists the link.
func ensureStripeCustomer(ctx context.Context, userID, email string) (string, error) {
	if db == nil {
		return "", errors.New("db not initialized")
	}
	if userID == "" {
		return "", errors.New("missing user id")
	}

	profile, err := getProfileByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.StripeCustomerID != "" {
		return profile.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	cust, err := newStripeCustomer(params)
	if err != nil {
		return "", err
	}

	if err := applyProfileUpdate(ctx, db, userID, profileUpdate{stripeCustomerID: &cust.ID}); err != nil {
		return "", err
	}

	return cust.ID, nil
}

// snapshotFromSubscription maps a Stripe subscription onto the slice of
// state the ledger reconciles from.
func snapshotFromSubscription(sub *stripe.Subscription) SubscriptionSnapshot {
	snap := SubscriptionSnapshot{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		snap.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		snap.PeriodEnd = &t
	}
	return snap
}
