// Package app exposes the manual reconciliation entry point for support/ops.
package app

import (
	"errors"
	"log"
	"net/http"

	"example/staging-api/app/config"
	"example/staging-api/app/models"

	"github.com/gin-gonic/gin"
)

// AdminRepair re-derives a user's billing state from Stripe's current
// subscription. Drift between webhooks and the store is an expected
// operational occurrence; this is the manual fix.
func AdminRepair(c *gin.Context) {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("admin repair config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "repair not configured"})
		return
	}
	if cfg.Admin.RepairToken == "" {
		log.Printf("admin repair token missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "repair not configured"})
		return
	}

	if c.GetHeader("Authorization") != "Bearer "+cfg.Admin.RepairToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.UserID == "" && req.Email == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide userId or email"})
		return
	}

	ctx := c.Request.Context()

	var profile models.Profile
	if req.UserID != "" {
		profile, err = getProfileByUserID(ctx, req.UserID)
	} else {
		profile, err = getProfileByEmail(ctx, req.Email)
	}
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		log.Printf("admin repair profile lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	customerID := profile.StripeCustomerID
	if customerID == "" && profile.Email != "" {
		// Link missing; try to find the customer in Stripe by email.
		cust, err := findCustomerByEmail(profile.Email)
		if err != nil {
			log.Printf("admin repair customer search failed user=%s: %v", profile.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search customer"})
			return
		}
		if cust != nil {
			customerID = cust.ID
			if err := applyProfileUpdate(ctx, db, profile.UserID, profileUpdate{stripeCustomerID: &customerID}); err != nil {
				log.Printf("admin repair customer link persist failed user=%s: %v", profile.UserID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist customer link"})
				return
			}
		}
	}
	if customerID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stripe customer found"})
		return
	}

	sub, err := latestSubscriptionForCustomer(customerID)
	if err != nil {
		log.Printf("admin repair subscription lookup failed customer=%s: %v", customerID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no subscription found for customer"})
		return
	}

	snap := snapshotFromSubscription(sub)
	if snap.CustomerID == "" {
		snap.CustomerID = customerID
	}

	result, err := ReconcileFromSubscription(ctx, profile.UserID, snap)
	if err != nil {
		log.Printf("admin repair reconcile failed user=%s: %v", profile.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"userId":             result.UserID,
		"plan":               result.Plan,
		"credits":            result.Credits,
		"subscriptionStatus": result.Status,
	})
}
