package leads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/permitradar/permitradar/app/models"
)

// memStore is an in-memory Store honoring the claim contract: each
// ClaimBatch call is atomic with respect to the others.
type memStore struct {
	mu          sync.Mutex
	leads       map[uint]*models.Lead
	assignments []*models.LeadAssignment
}

func newMemStore(leads ...*models.Lead) *memStore {
	s := &memStore{leads: make(map[uint]*models.Lead)}
	for _, l := range leads {
		s.leads[l.ID] = l
	}
	return s
}

func (s *memStore) ClaimBatch(_ context.Context, req ClaimRequest) (*models.LeadAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pool []*models.Lead
	for _, l := range s.leads {
		if l.Status == models.LeadStatusUnassigned && l.City == req.City {
			pool = append(pool, l)
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		if !pool[i].IssuedDate.Equal(pool[j].IssuedDate) {
			return pool[i].IssuedDate.After(pool[j].IssuedDate)
		}
		return pool[i].ID > pool[j].ID
	})
	if len(pool) == 0 {
		return nil, &NoLeadsAvailableError{City: req.City}
	}
	if len(pool) > req.BatchSize {
		pool = pool[:req.BatchSize]
	}

	now := time.Now()
	ids := make([]uint, 0, len(pool))
	for _, l := range pool {
		l.Status = models.LeadStatusAssigned
		l.AssignedTo = req.CustomerID
		l.AssignedDate = &now
		l.SubscriptionID = req.SubscriptionID
		ids = append(ids, l.ID)
	}

	assignment := &models.LeadAssignment{
		PublicID:       fmt.Sprintf("asg_%d", len(s.assignments)+1),
		CustomerID:     req.CustomerID,
		City:           req.City,
		SubscriptionID: req.SubscriptionID,
		AssignedAt:     now,
	}
	if err := assignment.SetLeadIDs(ids); err != nil {
		return nil, err
	}
	s.assignments = append(s.assignments, assignment)
	return assignment, nil
}

// conflictStore fails the first n claims with ErrClaimConflict.
type conflictStore struct {
	inner     Store
	conflicts int
	calls     int
}

func (s *conflictStore) ClaimBatch(ctx context.Context, req ClaimRequest) (*models.LeadAssignment, error) {
	s.calls++
	if s.calls <= s.conflicts {
		return nil, ErrClaimConflict
	}
	return s.inner.ClaimBatch(ctx, req)
}

func makePool(city string, n int) []*models.Lead {
	leads := make([]*models.Lead, 0, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		leads = append(leads, &models.Lead{
			ID:         uint(i + 1),
			PermitID:   fmt.Sprintf("%s-%04d", city, i+1),
			City:       city,
			IssuedDate: base.AddDate(0, 0, i%20),
			Status:     models.LeadStatusUnassigned,
		})
	}
	return leads
}

func TestAssignLeadsConcurrentNoOverlap(t *testing.T) {
	const customers = 4
	store := newMemStore(makePool("austin", customers*DefaultBatchSize)...)
	ledger := NewLedger(store)

	var wg sync.WaitGroup
	results := make([]*models.LeadAssignment, customers)
	errs := make([]error, customers)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ledger.AssignLeads(context.Background(),
				fmt.Sprintf("cus_%d", i), "austin", fmt.Sprintf("sub_%d", i))
		}(i)
	}
	wg.Wait()

	seen := make(map[uint]string)
	for i := 0; i < customers; i++ {
		if errs[i] != nil {
			t.Fatalf("customer %d: unexpected error: %v", i, errs[i])
		}
		if results[i].LeadCount != DefaultBatchSize {
			t.Fatalf("customer %d: got %d leads, want %d", i, results[i].LeadCount, DefaultBatchSize)
		}
		ids, err := results[i].LeadIDs()
		if err != nil {
			t.Fatalf("customer %d: decode lead ids: %v", i, err)
		}
		for _, id := range ids {
			if owner, dup := seen[id]; dup {
				t.Fatalf("lead %d assigned to both %s and %s", id, owner, results[i].CustomerID)
			}
			seen[id] = results[i].CustomerID
		}
	}
	if len(seen) != customers*DefaultBatchSize {
		t.Fatalf("expected full pool coverage, got %d of %d leads", len(seen), customers*DefaultBatchSize)
	}
	if len(store.assignments) != customers {
		t.Fatalf("expected %d assignment records, got %d", customers, len(store.assignments))
	}
}

func TestAssignLeadsEmptyPool(t *testing.T) {
	store := newMemStore(makePool("denver", 3)...)
	ledger := NewLedger(store)

	_, err := ledger.AssignLeads(context.Background(), "cus_1", "austin", "sub_1")
	var noLeads *NoLeadsAvailableError
	if !errors.As(err, &noLeads) {
		t.Fatalf("expected NoLeadsAvailableError, got %v", err)
	}
	if noLeads.City != "austin" {
		t.Fatalf("unexpected city in error: %q", noLeads.City)
	}
	if len(store.assignments) != 0 {
		t.Fatalf("expected no assignment records")
	}
	for _, l := range store.leads {
		if l.Status != models.LeadStatusUnassigned {
			t.Fatalf("lead %d mutated on failed claim", l.ID)
		}
	}
}

func TestAssignLeadsPartialBatch(t *testing.T) {
	store := newMemStore(makePool("austin", 5)...)
	ledger := NewLedger(store)

	assignment, err := ledger.AssignLeads(context.Background(), "cus_1", "austin", "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assignment.LeadCount != 5 {
		t.Fatalf("expected partial batch of 5, got %d", assignment.LeadCount)
	}
}

func TestAssignLeadsRoundTrip(t *testing.T) {
	store := newMemStore(makePool("austin", 20)...)
	ledger := NewLedger(store)

	assignment, err := ledger.AssignLeads(context.Background(), "cus_9", "Austin", "sub_9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, err := assignment.LeadIDs()
	if err != nil {
		t.Fatalf("decode lead ids: %v", err)
	}
	for _, id := range ids {
		lead := store.leads[id]
		if lead.Status != models.LeadStatusAssigned {
			t.Fatalf("lead %d: status %q, want assigned", id, lead.Status)
		}
		if lead.AssignedTo != "cus_9" {
			t.Fatalf("lead %d: assigned to %q, want cus_9", id, lead.AssignedTo)
		}
		if lead.SubscriptionID != "sub_9" {
			t.Fatalf("lead %d: subscription %q, want sub_9", id, lead.SubscriptionID)
		}
		if lead.AssignedDate == nil {
			t.Fatalf("lead %d: missing assigned date", id)
		}
	}
}

func TestAssignLeadsMostRecentFirst(t *testing.T) {
	store := newMemStore(makePool("austin", 20)...)
	ledger := NewLedger(store).WithBatchSize(5)

	assignment, err := ledger.AssignLeads(context.Background(), "cus_1", "austin", "sub_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, _ := assignment.LeadIDs()

	claimed := make(map[uint]bool, len(ids))
	for _, id := range ids {
		claimed[id] = true
	}
	var newestUnclaimed, oldestClaimed time.Time
	for _, l := range store.leads {
		if claimed[l.ID] {
			if oldestClaimed.IsZero() || l.IssuedDate.Before(oldestClaimed) {
				oldestClaimed = l.IssuedDate
			}
		} else if l.IssuedDate.After(newestUnclaimed) {
			newestUnclaimed = l.IssuedDate
		}
	}
	if newestUnclaimed.After(oldestClaimed) {
		t.Fatalf("claimed batch skipped a more recent lead: unclaimed %v > claimed %v", newestUnclaimed, oldestClaimed)
	}
}

func TestAssignLeadsRetriesConflicts(t *testing.T) {
	store := &conflictStore{inner: newMemStore(makePool("austin", 20)...), conflicts: 2}
	ledger := NewLedger(store)

	assignment, err := ledger.AssignLeads(context.Background(), "cus_1", "austin", "sub_1")
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if assignment.LeadCount != DefaultBatchSize {
		t.Fatalf("got %d leads, want %d", assignment.LeadCount, DefaultBatchSize)
	}
	if store.calls != 3 {
		t.Fatalf("expected 3 claim attempts, got %d", store.calls)
	}
}

func TestAssignLeadsRetriesExhausted(t *testing.T) {
	store := &conflictStore{inner: newMemStore(), conflicts: 100}
	ledger := NewLedger(store)

	_, err := ledger.AssignLeads(context.Background(), "cus_1", "austin", "sub_1")
	if err == nil || !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("expected exhausted-retries error wrapping ErrClaimConflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 4 attempts") {
		t.Fatalf("expected attempt count in error, got %q", err)
	}
}

func TestAssignLeadsValidatesInput(t *testing.T) {
	ledger := NewLedger(newMemStore())
	if _, err := ledger.AssignLeads(context.Background(), "", "austin", "sub_1"); err == nil {
		t.Fatalf("expected error for missing customer id")
	}
	if _, err := ledger.AssignLeads(context.Background(), "cus_1", "  ", "sub_1"); err == nil {
		t.Fatalf("expected error for missing city")
	}
	if _, err := ledger.AssignLeads(context.Background(), "cus_1", "austin", ""); err == nil {
		t.Fatalf("expected error for missing subscription id")
	}
}
