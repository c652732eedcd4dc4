package app

import (
	"context"
	"errors"
	"testing"

	"example/staging-api/app/models"
	"example/staging-api/auth"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestGetProfileByUserID(t *testing.T) {
	mock := newMockDB(t)
	rows := sqlmock.NewRows([]string{
		"id", "email", "stripe_customer_id", "stripe_subscription_id",
		"plan", "subscription_status", "credits", "current_period_end",
	}).AddRow("user-1", "user@example.test", "cus_1", "sub_1", "professional", "active", 42, nil)

	mock.ExpectQuery(`FROM user_profiles\s+WHERE id`).
		WithArgs("user-1").
		WillReturnRows(rows)

	profile, err := getProfileByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("getProfileByUserID error = %v", err)
	}
	if profile.Credits != 42 || profile.StripeCustomerID != "cus_1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if profile.Plan == nil || *profile.Plan != models.PlanProfessional {
		t.Fatalf("unexpected plan: %v", profile.Plan)
	}
	if profile.SubscriptionStatus == nil || *profile.SubscriptionStatus != "active" {
		t.Fatalf("unexpected status: %v", profile.SubscriptionStatus)
	}
}

func TestGetProfileByEmailNotFound(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectQuery(`FROM user_profiles\s+WHERE email`).
		WithArgs("ghost@example.test").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := getProfileByEmail(context.Background(), "ghost@example.test")
	if !errors.Is(err, errProfileNotFound) {
		t.Fatalf("expected errProfileNotFound, got %v", err)
	}
}

func TestApplyProfileUpdateMissingRow(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectExec(`UPDATE user_profiles SET`).
		WithArgs(7, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	credits := 7
	err := applyProfileUpdate(context.Background(), db, "ghost", profileUpdate{credits: &credits})
	if !errors.Is(err, errProfileNotFound) {
		t.Fatalf("expected errProfileNotFound, got %v", err)
	}
}

func TestUpsertProfileFromClaims(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO user_profiles`).
		WithArgs("user-1", "user@example.test").
		WillReturnResult(sqlmock.NewResult(0, 1))

	claims := &auth.Claims{
		Subject: "user-1",
		Email:   "user@example.test",
	}
	if err := UpsertProfileFromClaims(context.Background(), claims); err != nil {
		t.Fatalf("UpsertProfileFromClaims error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertProfileFromClaimsNilClaims(t *testing.T) {
	newMockDB(t)
	if err := UpsertProfileFromClaims(context.Background(), nil); err != nil {
		t.Fatalf("nil claims should be a no-op, got %v", err)
	}
}
