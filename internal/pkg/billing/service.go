package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/app/repository"
	"github.com/permitradar/permitradar/internal/pkg/leads"
	"gorm.io/gorm"
)

// ErrMissingCity means a checkout session arrived without the city metadata
// that binds the purchase to a lead market. Silently defaulting a city would
// assign leads for the wrong market, so this is a permanent operator-alert
// condition.
var ErrMissingCity = errors.New("checkout session metadata missing city")

// ErrUnknownSubscription means a renewal referenced a subscription this
// portal has never recorded, so the subscription-to-city association cannot
// be resolved.
var ErrUnknownSubscription = errors.New("subscription not found")

// Service processes billing events: it persists webhook payloads
// idempotently, mirrors customer/subscription state and drives the lead
// ledger on purchases and renewals.
type Service struct {
	repo   Repository
	ledger *leads.Ledger
}

// NewService creates a billing service from an injected repository and ledger.
func NewService(repo Repository, ledger *leads.Ledger) *Service {
	return &Service{repo: repo, ledger: ledger}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), leads.NewLedger(repository.NewLeadRepository(db)))
}

// Ledger exposes the lead ledger driving assignments.
func (s *Service) Ledger() *leads.Ledger {
	return s.ledger
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// GetSubscriptionByProviderID returns the locally mirrored subscription row.
func (s *Service) GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	return s.repo.GetSubscriptionByProviderID(strings.TrimSpace(providerSubscriptionID))
}

// ProcessCheckoutCompleted mirrors the purchase locally and grants the
// initial lead batch: upsert the customer, record the subscription with its
// city, then claim a batch through the ledger.
func (s *Service) ProcessCheckoutCompleted(ctx context.Context, session *CheckoutSession) (*models.LeadAssignment, error) {
	city := session.City()
	if city == "" {
		return nil, ErrMissingCity
	}
	email := strings.ToLower(strings.TrimSpace(session.CustomerDetails.Email))

	customer := &models.Customer{
		ProviderCustomerID: session.Customer,
		Email:              email,
	}
	if err := s.repo.UpsertCustomer(customer); err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ProviderSubscriptionID: session.Subscription,
		ProviderCustomerID:     session.Customer,
		Email:                  email,
		City:                   city,
		Status:                 models.SubscriptionStatusActive,
	}
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, err
	}

	return s.ledger.AssignLeads(ctx, session.Customer, city, session.Subscription)
}

// ProcessRenewal grants a fresh lead batch for a still-active subscription,
// resolving its city from the locally recorded subscription row. A renewal
// for a subscription this portal never saw is ErrUnknownSubscription: the
// city association is unknowable and guessing is worse than alerting.
func (s *Service) ProcessRenewal(ctx context.Context, providerSubscriptionID string) (*models.LeadAssignment, error) {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return nil, errors.New("provider subscription id is required")
	}

	sub, err := s.repo.GetSubscriptionByProviderID(providerSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownSubscription
		}
		return nil, err
	}

	return s.ledger.AssignLeads(ctx, sub.ProviderCustomerID, sub.City, sub.ProviderSubscriptionID)
}
