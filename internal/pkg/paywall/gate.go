package paywall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPaymentWindow is how far back a succeeded one-off payment still
	// counts as entitlement when no active subscription exists.
	DefaultPaymentWindow = 30 * 24 * time.Hour

	// DefaultProviderTimeout bounds each billing-provider call so a hanging
	// provider surfaces as a ProviderError instead of a stuck request.
	DefaultProviderTimeout = 10 * time.Second
)

// ErrInvalidRequest marks a malformed access check (missing email). It is a
// client error, distinct from a denial.
var ErrInvalidRequest = errors.New("email is required")

// ErrCustomerNotFound is returned by Provider implementations when no
// customer exists for an email.
var ErrCustomerNotFound = errors.New("no customer found")

// ProviderError wraps a failed or timed-out billing-provider call. Callers
// must never treat it as "not entitled": conflating the two would lock out
// paying customers during provider outages.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("billing provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Customer is the provider's customer object reduced to what the gate needs.
type Customer struct {
	ID    string
	Email string
}

// Subscription is a provider subscription reduced to what the gate needs.
type Subscription struct {
	ID     string
	Status string
}

// Payment is a provider payment intent reduced to what the gate needs.
type Payment struct {
	ID        string
	Status    string
	CreatedAt time.Time
}

// Provider is the billing-provider lookup surface the gate depends on.
// The production implementation talks to Stripe; tests inject a fake.
type Provider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	ListRecentSucceededPayments(ctx context.Context, customerID string, since time.Time) ([]Payment, error)
}

// Decision is the outcome of an access check. Reason is set on denials and
// is safe to surface to the requester verbatim.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate answers "may this email download lead data right now?". It is a pure
// read-through check against the provider: no caching, no persistence of
// decisions.
type Gate struct {
	provider        Provider
	allowList       map[string]struct{}
	paymentWindow   time.Duration
	providerTimeout time.Duration
}

// NewGate builds a gate over a provider and an allow-list of trusted emails
// (operator/test accounts) that bypass all payment checks.
func NewGate(provider Provider, allowEmails []string) *Gate {
	allow := make(map[string]struct{}, len(allowEmails))
	for _, e := range allowEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			allow[e] = struct{}{}
		}
	}
	return &Gate{
		provider:        provider,
		allowList:       allow,
		paymentWindow:   DefaultPaymentWindow,
		providerTimeout: DefaultProviderTimeout,
	}
}

// WithPaymentWindow overrides the recent-payment fallback window.
func (g *Gate) WithPaymentWindow(window time.Duration) *Gate {
	if window > 0 {
		g.paymentWindow = window
	}
	return g
}

// WithProviderTimeout overrides the per-call provider timeout.
func (g *Gate) WithProviderTimeout(timeout time.Duration) *Gate {
	if timeout > 0 {
		g.providerTimeout = timeout
	}
	return g
}

// CheckAccess decides whether email may download lead data for city. The
// checks run in strict order and the first match wins: allow-list, customer
// lookup, active subscription, succeeded payment inside the window. The city
// does not influence entitlement; it is carried for logging only.
func (g *Gate) CheckAccess(ctx context.Context, email, city string) (Decision, error) {
	_ = city

	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return Decision{}, ErrInvalidRequest
	}

	// Trusted shortcut: must short-circuit before any provider call so
	// operator accounts keep working during provider outages.
	if _, ok := g.allowList[normalized]; ok {
		return Decision{Allowed: true}, nil
	}

	// Each provider call gets its own timeout budget. A slow first lookup
	// must not starve the later ones.
	customer, err := g.findCustomer(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return Decision{Allowed: false, Reason: "no customer found"}, nil
		}
		return Decision{}, &ProviderError{Op: "customer lookup", Err: err}
	}

	subs, err := g.listSubscriptions(ctx, customer.ID)
	if err != nil {
		return Decision{}, &ProviderError{Op: "subscription lookup", Err: err}
	}
	for _, sub := range subs {
		if strings.EqualFold(sub.Status, "active") {
			return Decision{Allowed: true}, nil
		}
	}

	since := time.Now().Add(-g.paymentWindow)
	payments, err := g.listPayments(ctx, customer.ID, since)
	if err != nil {
		return Decision{}, &ProviderError{Op: "payment lookup", Err: err}
	}
	for _, p := range payments {
		if strings.EqualFold(p.Status, "succeeded") && p.CreatedAt.After(since) {
			return Decision{Allowed: true}, nil
		}
	}

	return Decision{Allowed: false, Reason: "no active subscription or recent payment"}, nil
}

func (g *Gate) findCustomer(ctx context.Context, email string) (*Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()
	return g.provider.FindCustomerByEmail(ctx, email)
}

func (g *Gate) listSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()
	return g.provider.ListActiveSubscriptions(ctx, customerID)
}

func (g *Gate) listPayments(ctx context.Context, customerID string, since time.Time) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()
	return g.provider.ListRecentSucceededPayments(ctx, customerID, since)
}
