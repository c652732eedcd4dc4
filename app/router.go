// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"example/staging-api/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter() (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	// Authenticated by Stripe's signature, not by a user token.
	router.POST("/api/stripe/webhook", StripeWebhook)
	// Authenticated by its own static bearer token.
	router.POST("/api/admin/repair", AdminRepair)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return UpsertProfileFromClaims(c.Request.Context(), claims)
		},
	}))
	protected.GET("/me", Me)
	protected.POST("/api/billing/checkout", CreateCheckoutSession)
	protected.POST("/api/billing/finalize", FinalizeCheckoutSession)
	protected.POST("/api/billing/portal", CreatePortalSession)
	protected.POST("/api/generate/image", GenerateImage)
	protected.POST("/api/generate/video", GenerateVideo)
	protected.GET("/jobs/:jobid", GetJobStatus)

	return router, nil
}
