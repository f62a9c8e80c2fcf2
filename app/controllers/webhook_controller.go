package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/app/repository"
	"github.com/permitradar/permitradar/internal/pkg/billing"
	"github.com/permitradar/permitradar/internal/pkg/database"
	"github.com/permitradar/permitradar/internal/pkg/env"
	"github.com/permitradar/permitradar/internal/pkg/leads"
	"github.com/permitradar/permitradar/internal/pkg/mail"
	"github.com/permitradar/permitradar/internal/pkg/metrics/counter"
)

// Delivery hooks are best-effort; swapped out in tests.
var (
	sendAssignmentMail      = mail.SendAssignmentNotification
	recordShortfall         = counter.AddAssignmentShortfall
	markAssignmentDelivered = func(id uint) error {
		return repository.GetGlobalFactory().GetAssignmentRepository().MarkDelivered(id)
	}
)

// HandleStripeWebhook receives billing events from Stripe. Every payload is
// persisted before processing; duplicates and operator-alert conditions are
// acknowledged with 200 so Stripe stops retrying, storage trouble returns
// 500 so it retries later.
func HandleStripeWebhook(c *fiber.Ctx) error {
	return stripeWebhook(c, billing.NewServiceFromDB(database.GetDB()))
}

func stripeWebhook(c *fiber.Ctx, svc *billing.Service) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var eventID, eventType string
	event, parseErr := billing.ParseEvent(rawBody)
	if parseErr == nil {
		eventID = event.ID
		eventType = event.Type
	}

	signatureValid := billing.VerifyStripeWebhookSignature(rawBody, signature, secret, billing.DefaultSignatureTolerance)
	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		log.Printf("stripe webhook: persist failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// Only a delivery that fully processed is a true duplicate. A
		// redelivery after a 500 (or after a forged payload squatted on the
		// event id) must run the pipeline again, otherwise the lead grant
		// for this event is lost forever.
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
		log.Printf("stripe webhook: reprocessing event %s after failed delivery", stored.ProviderEventID)
	}
	if !signatureValid {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	switch event.Type {
	case billing.EventCheckoutCompleted:
		return handleCheckoutCompleted(c, ctx, svc, stored.ID, event)
	case billing.EventSubscriptionUpdated:
		return handleSubscriptionUpdated(c, ctx, svc, stored.ID, event)
	default:
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}
}

func handleCheckoutCompleted(c *fiber.Ctx, ctx context.Context, svc *billing.Service, eventID uint, event *billing.Event) error {
	session, err := billing.ParseCheckoutSession(event.Data.Object)
	if err != nil {
		_ = svc.MarkWebhookProcessed(ctx, eventID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	assignment, err := svc.ProcessCheckoutCompleted(ctx, session)
	if err != nil {
		return finishAssignmentError(c, ctx, svc, eventID, err, "checkout "+session.ID)
	}

	_ = svc.MarkWebhookProcessed(ctx, eventID, nil)
	finishAssignmentSuccess(svc, assignment, session.CustomerDetails.Email)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "assignment": assignment.PublicID})
}

func handleSubscriptionUpdated(c *fiber.Ctx, ctx context.Context, svc *billing.Service, eventID uint, event *billing.Event) error {
	sub, err := billing.ParseSubscriptionObject(event.Data.Object)
	if err != nil {
		_ = svc.MarkWebhookProcessed(ctx, eventID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !sub.IsActive() {
		_ = svc.MarkWebhookProcessed(ctx, eventID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	assignment, err := svc.ProcessRenewal(ctx, sub.ID)
	if err != nil {
		return finishAssignmentError(c, ctx, svc, eventID, err, sub.String())
	}

	email := ""
	if stored, lookupErr := svc.GetSubscriptionByProviderID(sub.ID); lookupErr == nil {
		email = stored.Email
	}

	_ = svc.MarkWebhookProcessed(ctx, eventID, nil)
	finishAssignmentSuccess(svc, assignment, email)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "assignment": assignment.PublicID})
}

// finishAssignmentError maps assignment failures to webhook responses.
// Permanent conditions (missing city, unknown subscription, empty pool) are
// acknowledged and logged loudly for an operator; anything else is storage
// trouble and gets a 500 so Stripe retries.
func finishAssignmentError(c *fiber.Ctx, ctx context.Context, svc *billing.Service, eventID uint, err error, what string) error {
	_ = svc.MarkWebhookProcessed(ctx, eventID, err)

	var noLeads *leads.NoLeadsAvailableError
	switch {
	case errors.Is(err, billing.ErrMissingCity):
		log.Printf("ALERT stripe webhook: %s has no city metadata, leads not assigned", what)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "alert": "missing_city"})
	case errors.Is(err, billing.ErrUnknownSubscription):
		log.Printf("ALERT stripe webhook: renewal for unknown %s, leads not assigned", what)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "alert": "unknown_subscription"})
	case errors.As(err, &noLeads):
		log.Printf("ALERT stripe webhook: lead pool exhausted for %s (%s)", noLeads.City, what)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "alert": "no_leads_available"})
	default:
		log.Printf("stripe webhook: assignment for %s failed: %v", what, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "assignment_failed"})
	}
}

// finishAssignmentSuccess handles the best-effort tail of an assignment:
// shortfall metrics and the notification email.
func finishAssignmentSuccess(svc *billing.Service, assignment *models.LeadAssignment, email string) {
	if missing := svc.Ledger().BatchSize() - assignment.LeadCount; missing > 0 {
		if err := recordShortfall(assignment.City, missing); err != nil {
			log.Printf("stripe webhook: shortfall counter failed: %v", err)
		}
	}

	if email == "" {
		log.Printf("stripe webhook: no email on record for assignment %s, skipping notification", assignment.PublicID)
		return
	}
	if err := sendAssignmentMail(email, assignment); err != nil {
		log.Printf("stripe webhook: notification for assignment %s failed: %v", assignment.PublicID, err)
		return
	}
	if err := markAssignmentDelivered(assignment.ID); err != nil {
		log.Printf("stripe webhook: could not mark assignment %s delivered: %v", assignment.PublicID, err)
	}
}
