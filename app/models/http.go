package models

// CheckoutRequest starts a subscription checkout for the authenticated user.
type CheckoutRequest struct {
	PriceID string `json:"priceId"`
}

// FinalizeRequest resolves a returned checkout session synchronously,
// covering the window before the webhook lands.
type FinalizeRequest struct {
	SessionID string `json:"sessionId"`
}

// RepairRequest identifies the user to reconcile; one of the two is required.
type RepairRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// GenerateRequest is the body shared by the image and video endpoints.
type GenerateRequest struct {
	Prompt          string   `json:"prompt"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}
