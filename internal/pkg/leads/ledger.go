package leads

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/permitradar/permitradar/app/models"
)

const (
	// DefaultBatchSize is the number of leads granted per billing event.
	DefaultBatchSize = 15

	// defaultMaxAttempts bounds claim retries after storage conflicts.
	defaultMaxAttempts = 4
)

// ErrClaimConflict is returned by Store implementations when a claim
// transaction lost a race (deadlock, lock timeout, or a concurrently
// claimed lead) and should be retried from a fresh read.
var ErrClaimConflict = errors.New("lead claim conflict")

// NoLeadsAvailableError means the city's unassigned pool is empty. It is
// terminal for the triggering billing event: inventory exhaustion needs an
// operator, not a retry.
type NoLeadsAvailableError struct {
	City string
}

func (e *NoLeadsAvailableError) Error() string {
	return "no unassigned leads available for " + e.City
}

// ClaimRequest describes one batch claim.
type ClaimRequest struct {
	CustomerID     string
	City           string
	SubscriptionID string
	BatchSize      int
}

// Store executes a single transactional claim attempt: select up to
// BatchSize unassigned leads for the city ordered by issued date descending
// (id descending as tie-break), mark them assigned to the customer and
// write the assignment record, all or nothing. Implementations return
// *NoLeadsAvailableError on an empty selection and ErrClaimConflict when
// the transaction must be retried.
type Store interface {
	ClaimBatch(ctx context.Context, req ClaimRequest) (*models.LeadAssignment, error)
}

// Ledger hands out batches of leads on billing events. It owns batch
// sizing, input validation and the bounded retry loop around the store's
// transactional claim; the store owns atomicity.
type Ledger struct {
	store       Store
	batchSize   int
	maxAttempts int
}

// NewLedger creates a ledger with the default batch size.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:       store,
		batchSize:   DefaultBatchSize,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithBatchSize overrides the per-event batch size.
func (l *Ledger) WithBatchSize(size int) *Ledger {
	if size > 0 {
		l.batchSize = size
	}
	return l
}

// BatchSize returns the configured per-event batch size.
func (l *Ledger) BatchSize() int {
	return l.batchSize
}

// AssignLeads reserves up to one batch of previously unassigned leads for
// the customer. A partial batch is a degraded success and is logged; an
// empty pool surfaces as *NoLeadsAvailableError. Storage conflicts are
// retried from a fresh read up to the attempt bound, then escalate.
func (l *Ledger) AssignLeads(ctx context.Context, customerID, city, subscriptionID string) (*models.LeadAssignment, error) {
	customerID = strings.TrimSpace(customerID)
	subscriptionID = strings.TrimSpace(subscriptionID)
	normalizedCity := models.NormalizeCity(city)
	if customerID == "" || normalizedCity == "" || subscriptionID == "" {
		return nil, errors.New("customer id, city and subscription id are required")
	}

	req := ClaimRequest{
		CustomerID:     customerID,
		City:           normalizedCity,
		SubscriptionID: subscriptionID,
		BatchSize:      l.batchSize,
	}

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		assignment, err := l.store.ClaimBatch(ctx, req)
		if err == nil {
			if assignment.LeadCount < l.batchSize {
				log.Printf("lead ledger: only %d of %d leads available for %s (subscription %s)",
					assignment.LeadCount, l.batchSize, normalizedCity, subscriptionID)
			}
			return assignment, nil
		}
		if errors.Is(err, ErrClaimConflict) {
			lastErr = err
			log.Printf("lead ledger: claim conflict for %s (attempt %d/%d), retrying", normalizedCity, attempt, l.maxAttempts)
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("lead claim for %s failed after %d attempts: %w", normalizedCity, l.maxAttempts, lastErr)
}
