package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/permitradar/permitradar/app/models"
)

// Stripe event types this portal reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
)

// Event is the outer Stripe webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes the webhook envelope.
func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.ID) == "" {
		return nil, errors.New("stripe event missing id")
	}
	if strings.TrimSpace(ev.Type) == "" {
		return nil, errors.New("stripe event missing type")
	}
	return &ev, nil
}

// CheckoutSession is the checkout.session.completed object reduced to the
// fields the assignment pipeline needs.
type CheckoutSession struct {
	ID              string `json:"id"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// ParseCheckoutSession decodes a checkout session object.
func ParseCheckoutSession(object json.RawMessage) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := json.Unmarshal(object, &session); err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.Customer) == "" {
		return nil, errors.New("checkout session missing customer")
	}
	if strings.TrimSpace(session.Subscription) == "" {
		return nil, errors.New("checkout session missing subscription")
	}
	return &session, nil
}

// City returns the normalized city slug from the session metadata. The city
// must be set on the Stripe product/checkout metadata; empty means the event
// cannot be processed.
func (s *CheckoutSession) City() string {
	return models.NormalizeCity(s.Metadata["city"])
}

// SubscriptionObject is the customer.subscription.* object reduced to the
// fields the renewal handler needs.
type SubscriptionObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// ParseSubscriptionObject decodes a subscription object.
func ParseSubscriptionObject(object json.RawMessage) (*SubscriptionObject, error) {
	var sub SubscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, errors.New("subscription object missing id")
	}
	return &sub, nil
}

// IsActive reports whether the subscription renewed into an active state.
func (s *SubscriptionObject) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), models.SubscriptionStatusActive)
}

func (s *SubscriptionObject) String() string {
	return fmt.Sprintf("subscription %s (customer %s, status %s)", s.ID, s.Customer, s.Status)
}
