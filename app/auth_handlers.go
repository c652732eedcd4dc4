// Package app provides public health and authenticated identity endpoints.
package app

import (
	"errors"
	"net/http"

	"example/staging-api/auth"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the billing summary for the authenticated user.
func Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	if db == nil {
		c.JSON(http.StatusOK, gin.H{
			"plan":               nil,
			"credits":            0,
			"subscriptionStatus": nil,
			"currentPeriodEnd":   nil,
		})
		return
	}

	profile, err := getProfileByUserID(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, errProfileNotFound) {
			_ = UpsertProfileFromClaims(c.Request.Context(), claims)
			profile, err = getProfileByUserID(c.Request.Context(), claims.Subject)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"plan":               profile.Plan,
		"credits":            profile.Credits,
		"subscriptionStatus": profile.SubscriptionStatus,
		"currentPeriodEnd":   profile.CurrentPeriodEnd,
	})
}
