package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"example/staging-api/app/config"
	"example/staging-api/app/models"
	"example/staging-api/auth"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CreateCheckoutSession starts a Stripe Checkout Session for the
// authenticated user. The session metadata carries the internal user id;
// that tag is the only reliable linkage the webhook handler has back to the
// user, so it is always set.
func CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing priceId"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("checkout config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if cfg.Stripe.SecretKey == "" || frontendURL == "" {
		log.Printf("missing Stripe config: secret_key=%t frontend_url=%t",
			cfg.Stripe.SecretKey != "", frontendURL != "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("ensureStripeCustomer failed for user=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(stripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/dashboard?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(frontendURL + "/?canceled=true"),
		Metadata: map[string]string{
			"user_id": claims.Subject,
		},
	}

	sess, err := newCheckoutSession(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkoutUrl": sess.URL})
}

// FinalizeCheckoutSession reconciles a user's billing state right after they
// return from checkout. The webhook is asynchronous and may lag or never
// arrive; calling this alongside it is safe because reconciliation
// overwrites rather than increments.
func FinalizeCheckoutSession(c *gin.Context) {
	var req models.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sessionId"})
		return
	}

	sess, err := retrieveCheckoutSession(req.SessionID)
	if err != nil {
		log.Printf("finalize: session retrieve failed id=%s: %v", req.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve session"})
		return
	}

	userID := sess.Metadata["user_id"]
	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}
	if userID == "" || subscriptionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session"})
		return
	}

	sub, err := retrieveSubscription(subscriptionID)
	if err != nil {
		log.Printf("finalize: subscription retrieve failed id=%s: %v", subscriptionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve subscription"})
		return
	}

	snap := snapshotFromSubscription(sub)
	snap.Status = models.StatusActive
	if sess.Customer != nil && snap.CustomerID == "" {
		snap.CustomerID = sess.Customer.ID
	}

	if _, err := ReconcileFromSubscription(c.Request.Context(), userID, snap); err != nil {
		log.Printf("finalize: reconcile failed user=%s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update billing state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StripeWebhook handles Stripe billing events and keeps user credit state
// consistent. Signature verification runs before any lookup. Events whose
// user linkage cannot be resolved are logged and acknowledged: Stripe would
// otherwise retry forever and there is no recovery without the linkage.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe webhook config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	endpointSecret := cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		err = handleCheckoutCompleted(c.Request.Context(), event)
	case "invoice.payment_succeeded":
		err = handleInvoicePaid(c.Request.Context(), event)
	case "customer.subscription.updated":
		err = handleSubscriptionUpdated(c.Request.Context(), event)
	case "customer.subscription.deleted":
		err = handleSubscriptionDeleted(c.Request.Context(), event)
	default:
		// Intentionally ignore unhandled events.
	}

	if err != nil {
		log.Printf("stripe webhook handler failed type=%s: %v", event.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return err
	}

	userID := sess.Metadata["user_id"]
	if userID == "" {
		// No linkage back to an internal user; ack and drop.
		log.Printf("checkout.session.completed missing user_id metadata session=%s", sess.ID)
		return nil
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		log.Printf("checkout.session.completed missing subscription session=%s", sess.ID)
		return nil
	}

	sub, err := retrieveSubscription(sess.Subscription.ID)
	if err != nil {
		return err
	}

	snap := snapshotFromSubscription(sub)
	snap.Status = models.StatusActive
	if sess.Customer != nil && snap.CustomerID == "" {
		snap.CustomerID = sess.Customer.ID
	}

	result, err := ReconcileFromSubscription(ctx, userID, snap)
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			log.Printf("checkout.session.completed: no profile for user=%s", userID)
			return nil
		}
		return err
	}

	log.Printf("user %s subscribed to %s with %d credits", userID, result.Plan, result.Credits)
	return nil
}

func handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return err
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return nil
	}

	profile, err := getProfileByStripeSubscription(ctx, inv.Subscription.ID)
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			log.Printf("invoice.payment_succeeded: no profile for subscription=%s", inv.Subscription.ID)
			return nil
		}
		return err
	}

	plan := models.PlanStarter
	if profile.Plan != nil {
		plan = *profile.Plan
	}

	credits, err := refillForPlan(ctx, profile.UserID, plan)
	if err != nil {
		return err
	}

	log.Printf("credits recharged for user %s: %d credits", profile.UserID, credits)
	return nil
}

func handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}

	profile, err := getProfileByStripeCustomer(ctx, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			log.Printf("customer.subscription.updated: no profile for customer=%s", sub.Customer.ID)
			return nil
		}
		return err
	}

	// Status and period end only; credits are untouched here.
	snap := snapshotFromSubscription(&sub)
	status := sql.NullString{String: snap.Status, Valid: snap.Status != ""}
	periodEnd := sql.NullTime{}
	if snap.PeriodEnd != nil {
		periodEnd = sql.NullTime{Time: *snap.PeriodEnd, Valid: true}
	}
	upd := profileUpdate{
		subscriptionStatus: &status,
		currentPeriodEnd:   &periodEnd,
	}
	return applyProfileUpdate(ctx, db, profile.UserID, upd)
}

func handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil
	}

	profile, err := getProfileByStripeCustomer(ctx, sub.Customer.ID)
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			log.Printf("customer.subscription.deleted: no profile for customer=%s", sub.Customer.ID)
			return nil
		}
		return err
	}

	if err := CancelSubscription(ctx, profile.UserID); err != nil {
		return err
	}

	log.Printf("subscription canceled for user %s", profile.UserID)
	return nil
}

// CreatePortalSession creates a Stripe Customer Portal session for the
// authenticated user.
func CreatePortalSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	profile, err := getProfileByUserID(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("portal lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if profile.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("portal config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(profile.StripeCustomerID),
		ReturnURL: stripe.String(frontendURL + "/settings/billing"),
	}

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("stripe portal session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}
