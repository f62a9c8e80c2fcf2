package paywall

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	customers     map[string]*Customer
	subscriptions map[string][]Subscription
	payments      map[string][]Payment

	err       error
	callCount int
}

func (f *fakeProvider) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	f.callCount++
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.customers[email]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

func (f *fakeProvider) ListActiveSubscriptions(_ context.Context, customerID string) ([]Subscription, error) {
	f.callCount++
	if f.err != nil {
		return nil, f.err
	}
	return f.subscriptions[customerID], nil
}

func (f *fakeProvider) ListRecentSucceededPayments(_ context.Context, customerID string, since time.Time) ([]Payment, error) {
	f.callCount++
	if f.err != nil {
		return nil, f.err
	}
	var out []Payment
	for _, p := range f.payments[customerID] {
		if p.CreatedAt.After(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestCheckAccessEmptyEmail(t *testing.T) {
	gate := NewGate(&fakeProvider{}, nil)
	_, err := gate.CheckAccess(context.Background(), "  ", "austin")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCheckAccessAllowListBypassesProvider(t *testing.T) {
	// Provider is broken; allow-listed emails must still pass without a call.
	provider := &fakeProvider{err: errors.New("provider down")}
	gate := NewGate(provider, []string{"Admin@Permits.com", "test@example.com"})

	decision, err := gate.CheckAccess(context.Background(), "ADMIN@permits.com", "austin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow-listed email to be allowed")
	}
	if provider.callCount != 0 {
		t.Fatalf("expected no provider calls, got %d", provider.callCount)
	}
}

func TestCheckAccessNoCustomer(t *testing.T) {
	gate := NewGate(&fakeProvider{customers: map[string]*Customer{}}, nil)

	decision, err := gate.CheckAccess(context.Background(), "nobody@example.com", "austin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected denial for unknown customer")
	}
	if decision.Reason != "no customer found" {
		t.Fatalf("unexpected reason: %q", decision.Reason)
	}
}

func TestCheckAccessActiveSubscription(t *testing.T) {
	provider := &fakeProvider{
		customers: map[string]*Customer{
			"paying@example.com": {ID: "cus_1", Email: "paying@example.com"},
		},
		subscriptions: map[string][]Subscription{
			"cus_1": {{ID: "sub_1", Status: "active"}},
		},
	}
	gate := NewGate(provider, nil)

	decision, err := gate.CheckAccess(context.Background(), "paying@example.com", "austin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected active subscription to allow access")
	}
}

func TestCheckAccessRecentPaymentWindow(t *testing.T) {
	tests := []struct {
		name      string
		createdAt time.Time
		want      bool
	}{
		{name: "payment 10 days ago", createdAt: time.Now().Add(-10 * 24 * time.Hour), want: true},
		{name: "payment 31 days ago", createdAt: time.Now().Add(-31 * 24 * time.Hour), want: false},
	}

	for _, tt := range tests {
		provider := &fakeProvider{
			customers: map[string]*Customer{
				"onetime@example.com": {ID: "cus_2", Email: "onetime@example.com"},
			},
			payments: map[string][]Payment{
				"cus_2": {{ID: "pi_1", Status: "succeeded", CreatedAt: tt.createdAt}},
			},
		}
		gate := NewGate(provider, nil)

		decision, err := gate.CheckAccess(context.Background(), "onetime@example.com", "austin")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if decision.Allowed != tt.want {
			t.Fatalf("%s: allowed=%v, want %v", tt.name, decision.Allowed, tt.want)
		}
		if !tt.want && decision.Reason != "no active subscription or recent payment" {
			t.Fatalf("%s: unexpected reason %q", tt.name, decision.Reason)
		}
	}
}

// slowProvider honors context cancellation and spends delay on every call.
type slowProvider struct {
	delay time.Duration
}

func (p *slowProvider) wait(ctx context.Context) error {
	select {
	case <-time.After(p.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *slowProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return &Customer{ID: "cus_slow", Email: email}, nil
}

func (p *slowProvider) ListActiveSubscriptions(ctx context.Context, _ string) ([]Subscription, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *slowProvider) ListRecentSucceededPayments(ctx context.Context, _ string, _ time.Time) ([]Payment, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func TestCheckAccessTimeoutIsPerCall(t *testing.T) {
	// Three lookups at 40ms each against a 60ms budget: only a per-call
	// deadline lets the later calls start with a full budget.
	provider := &slowProvider{delay: 40 * time.Millisecond}
	gate := NewGate(provider, nil).WithProviderTimeout(60 * time.Millisecond)

	decision, err := gate.CheckAccess(context.Background(), "slow@example.com", "austin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected denial, customer has no entitlement")
	}
}

func TestCheckAccessProviderErrorIsNotDenial(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection reset")}
	gate := NewGate(provider, nil)

	_, err := gate.CheckAccess(context.Background(), "paying@example.com", "austin")
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}
