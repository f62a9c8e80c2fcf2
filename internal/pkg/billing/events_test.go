package billing

import "testing"

func TestParseEvent(t *testing.T) {
	raw := []byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"data": { "object": { "id": "cs_1" } }
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.ID != "evt_123" || ev.Type != EventCheckoutCompleted {
		t.Fatalf("unexpected event: id=%q type=%q", ev.ID, ev.Type)
	}

	if _, err := ParseEvent([]byte(`{"type":"x"}`)); err == nil {
		t.Fatalf("expected missing id to fail")
	}
	if _, err := ParseEvent([]byte(`{"id":"evt_1"}`)); err == nil {
		t.Fatalf("expected missing type to fail")
	}
}

func TestParseCheckoutSession(t *testing.T) {
	raw := []byte(`{
		"id": "cs_1",
		"customer": "cus_9",
		"subscription": "sub_7",
		"customer_details": { "email": "Buyer@Example.com" },
		"metadata": { "city": "Austin" }
	}`)

	session, err := ParseCheckoutSession(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if session.Customer != "cus_9" || session.Subscription != "sub_7" {
		t.Fatalf("unexpected session ids: %q %q", session.Customer, session.Subscription)
	}
	if session.City() != "austin" {
		t.Fatalf("expected normalized city, got %q", session.City())
	}

	if _, err := ParseCheckoutSession([]byte(`{"id":"cs_2","subscription":"sub_1"}`)); err == nil {
		t.Fatalf("expected missing customer to fail")
	}
}

func TestParseSubscriptionObject(t *testing.T) {
	raw := []byte(`{"id":"sub_1","customer":"cus_1","status":"active"}`)
	sub, err := ParseSubscriptionObject(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !sub.IsActive() {
		t.Fatalf("expected active subscription")
	}

	inactive, err := ParseSubscriptionObject([]byte(`{"id":"sub_2","status":"past_due"}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if inactive.IsActive() {
		t.Fatalf("expected past_due to be inactive")
	}
}
