package billing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/internal/pkg/leads"
	"gorm.io/gorm"
)

type fakeRepo struct {
	customers     map[string]*models.Customer
	subscriptions map[string]*models.Subscription
	events        map[string]*models.WebhookEvent
	processed     map[uint]string
	nextEventID   uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		customers:     make(map[string]*models.Customer),
		subscriptions: make(map[string]*models.Subscription),
		events:        make(map[string]*models.WebhookEvent),
		processed:     make(map[uint]string),
	}
}

func (r *fakeRepo) UpsertCustomer(c *models.Customer) error {
	if existing, ok := r.customers[c.ProviderCustomerID]; ok {
		existing.Email = c.Email
		*c = *existing
		return nil
	}
	c.ID = uint(len(r.customers) + 1)
	stored := *c
	r.customers[c.ProviderCustomerID] = &stored
	return nil
}

func (r *fakeRepo) UpsertSubscription(s *models.Subscription) error {
	if existing, ok := r.subscriptions[s.ProviderSubscriptionID]; ok {
		existing.City = s.City
		existing.Status = s.Status
		existing.Email = s.Email
		*s = *existing
		return nil
	}
	s.ID = uint(len(r.subscriptions) + 1)
	stored := *s
	r.subscriptions[s.ProviderSubscriptionID] = &stored
	return nil
}

func (r *fakeRepo) GetSubscriptionByProviderID(id string) (*models.Subscription, error) {
	sub, ok := r.subscriptions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + ":" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		return false, stored, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	r.events[key] = event
	return true, event, nil
}

func (r *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	r.processed[id] = processingError
	return nil
}

// fixedStore hands out a synthetic batch without real storage.
type fixedStore struct {
	lastReq leads.ClaimRequest
	err     error
}

func (s *fixedStore) ClaimBatch(_ context.Context, req leads.ClaimRequest) (*models.LeadAssignment, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]uint, 0, req.BatchSize)
	for i := 0; i < req.BatchSize; i++ {
		ids = append(ids, uint(i+1))
	}
	assignment := &models.LeadAssignment{
		PublicID:       "asg_test",
		CustomerID:     req.CustomerID,
		City:           req.City,
		SubscriptionID: req.SubscriptionID,
		AssignedAt:     time.Now(),
	}
	if err := assignment.SetLeadIDs(ids); err != nil {
		return nil, err
	}
	return assignment, nil
}

func checkoutSession(city string) *CheckoutSession {
	s := &CheckoutSession{
		ID:           "cs_1",
		Customer:     "cus_1",
		Subscription: "sub_1",
	}
	s.CustomerDetails.Email = "Buyer@Example.com"
	if city != "" {
		s.Metadata = map[string]string{"city": city}
	}
	return s
}

func TestProcessCheckoutCompleted(t *testing.T) {
	repo := newFakeRepo()
	store := &fixedStore{}
	svc := NewService(repo, leads.NewLedger(store))

	assignment, err := svc.ProcessCheckoutCompleted(context.Background(), checkoutSession("Austin"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assignment.LeadCount != leads.DefaultBatchSize {
		t.Fatalf("got %d leads, want %d", assignment.LeadCount, leads.DefaultBatchSize)
	}
	if store.lastReq.City != "austin" {
		t.Fatalf("expected normalized city, got %q", store.lastReq.City)
	}

	customer, ok := repo.customers["cus_1"]
	if !ok {
		t.Fatalf("expected customer to be mirrored")
	}
	if customer.Email != "buyer@example.com" {
		t.Fatalf("expected lowercased email, got %q", customer.Email)
	}

	sub, ok := repo.subscriptions["sub_1"]
	if !ok {
		t.Fatalf("expected subscription to be mirrored")
	}
	if sub.City != "austin" || sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("unexpected subscription row: city=%q status=%q", sub.City, sub.Status)
	}
}

func TestProcessCheckoutCompletedMissingCity(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, leads.NewLedger(&fixedStore{}))

	_, err := svc.ProcessCheckoutCompleted(context.Background(), checkoutSession(""))
	if !errors.Is(err, ErrMissingCity) {
		t.Fatalf("expected ErrMissingCity, got %v", err)
	}
	if len(repo.customers) != 0 || len(repo.subscriptions) != 0 {
		t.Fatalf("expected no rows mirrored on missing city")
	}
}

func TestProcessRenewal(t *testing.T) {
	repo := newFakeRepo()
	store := &fixedStore{}
	svc := NewService(repo, leads.NewLedger(store))

	if _, err := svc.ProcessCheckoutCompleted(context.Background(), checkoutSession("denver")); err != nil {
		t.Fatalf("checkout setup failed: %v", err)
	}

	assignment, err := svc.ProcessRenewal(context.Background(), "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assignment.City != "denver" {
		t.Fatalf("expected renewal to reuse the stored city, got %q", assignment.City)
	}
	if store.lastReq.CustomerID != "cus_1" {
		t.Fatalf("expected renewal to reuse the stored customer, got %q", store.lastReq.CustomerID)
	}
}

func TestProcessRenewalUnknownSubscription(t *testing.T) {
	svc := NewService(newFakeRepo(), leads.NewLedger(&fixedStore{}))

	_, err := svc.ProcessRenewal(context.Background(), "sub_never_seen")
	if !errors.Is(err, ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
}

func TestProcessRenewalPropagatesNoLeads(t *testing.T) {
	repo := newFakeRepo()
	store := &fixedStore{err: &leads.NoLeadsAvailableError{City: "denver"}}
	svc := NewService(repo, leads.NewLedger(store))

	if _, err := svc.ProcessCheckoutCompleted(context.Background(), checkoutSession("denver")); err == nil {
		t.Fatalf("expected checkout to surface NoLeadsAvailableError")
	} else {
		var noLeads *leads.NoLeadsAvailableError
		if !errors.As(err, &noLeads) {
			t.Fatalf("expected NoLeadsAvailableError, got %v", err)
		}
	}
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	svc := NewService(newFakeRepo(), leads.NewLedger(&fixedStore{}))
	in := WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "evt_1",
		EventType:       EventCheckoutCompleted,
		PayloadJSON:     `{"id":"evt_1"}`,
		SignatureValid:  true,
	}

	created, first, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("expected first record to create, got created=%v err=%v", created, err)
	}
	created, second, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("expected duplicate to be detected")
	}
	if first.ID != second.ID {
		t.Fatalf("expected stored event to be reused")
	}
}

func TestRecordWebhookEventHashFallback(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, leads.NewLedger(&fixedStore{}))

	created, stored, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:    models.BillingProviderStripe,
		PayloadJSON: `{"no":"id"}`,
	})
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	if !strings.HasPrefix(stored.ProviderEventID, "hash:") {
		t.Fatalf("expected hash fallback event id, got %q", stored.ProviderEventID)
	}
}
