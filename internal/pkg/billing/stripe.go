package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/permitradar/permitradar/internal/pkg/env"
	"github.com/permitradar/permitradar/internal/pkg/paywall"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient is a thin client for the Stripe REST API covering the three
// lookups the access gate needs. It implements paywall.Provider.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FindCustomerByEmail resolves an email to the Stripe customer object.
// Returns paywall.ErrCustomerNotFound when no customer exists.
func (c *StripeClient) FindCustomerByEmail(ctx context.Context, email string) (*paywall.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("email is required")
	}

	q := url.Values{}
	q.Set("email", email)
	q.Set("limit", "1")

	var out struct {
		Data []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/customers", q, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, paywall.ErrCustomerNotFound
	}
	return &paywall.Customer{ID: out.Data[0].ID, Email: out.Data[0].Email}, nil
}

// ListActiveSubscriptions lists a customer's subscriptions with status active.
func (c *StripeClient) ListActiveSubscriptions(ctx context.Context, customerID string) ([]paywall.Subscription, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}

	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("status", "active")
	q.Set("limit", "20")

	var out struct {
		Data []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/subscriptions", q, &out); err != nil {
		return nil, err
	}

	subs := make([]paywall.Subscription, 0, len(out.Data))
	for _, s := range out.Data {
		subs = append(subs, paywall.Subscription{ID: s.ID, Status: s.Status})
	}
	return subs, nil
}

// ListRecentSucceededPayments lists a customer's succeeded payment intents
// created after since.
func (c *StripeClient) ListRecentSucceededPayments(ctx context.Context, customerID string, since time.Time) ([]paywall.Payment, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer id is required")
	}

	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("created[gte]", strconv.FormatInt(since.Unix(), 10))
	q.Set("limit", "100")

	var out struct {
		Data []struct {
			ID      string `json:"id"`
			Status  string `json:"status"`
			Created int64  `json:"created"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/payment_intents", q, &out); err != nil {
		return nil, err
	}

	var payments []paywall.Payment
	for _, p := range out.Data {
		if p.Status != "succeeded" {
			continue
		}
		payments = append(payments, paywall.Payment{
			ID:        p.ID,
			Status:    p.Status,
			CreatedAt: time.Unix(p.Created, 0),
		})
	}
	return payments, nil
}

func (c *StripeClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}

	u, err := url.Parse(strings.TrimRight(c.APIBaseURL, "/") + path)
	if err != nil {
		return fmt.Errorf("invalid STRIPE_API_BASE_URL: %w", err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe %s request failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, out)
}
