// Package app wires billing, credits and generation endpoints.
package app

import (
	"log"

	"example/staging-api/app/config"
	"example/staging-api/app/models"
)

// Monthly credit allotments per plan. Enterprise is effectively unlimited.
var planCredits = map[models.Plan]int{
	models.PlanStarter:      30,
	models.PlanProfessional: 100,
	models.PlanEnterprise:   999999,
}

// CreditsForPlan returns the monthly allotment for a plan. The plan enum is
// closed, so an unknown value is a programming error; we still return the
// starter allotment rather than 0 to avoid zeroing a paying user.
func CreditsForPlan(plan models.Plan) int {
	if credits, ok := planCredits[plan]; ok {
		return credits
	}
	log.Printf("CreditsForPlan: unknown plan %q, using starter allotment", plan)
	return planCredits[models.PlanStarter]
}

// PlanForPriceID maps a Stripe price id to a plan. Unrecognized ids fall back
// to starter: a misconfigured or future price id must not fail the event, but
// the fallback is logged so drift is operator-visible.
func PlanForPriceID(cfg *config.Config, priceID string) models.Plan {
	switch {
	case priceID != "" && priceID == cfg.Stripe.PriceIDStarter:
		return models.PlanStarter
	case priceID != "" && priceID == cfg.Stripe.PriceIDProfessional:
		return models.PlanProfessional
	case priceID != "" && priceID == cfg.Stripe.PriceIDEnterprise:
		return models.PlanEnterprise
	}
	log.Printf("PlanForPriceID: unrecognized price id %q, defaulting to starter", priceID)
	return models.PlanStarter
}
