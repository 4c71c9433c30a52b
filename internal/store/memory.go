package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cymoe/Estimate-Wave-App-sub001/pkg/models"
)

// MemoryStore is an in-process Store. The job engine only depends on the
// Store contract, so it runs unchanged over this backend — used by tests and
// by any embedder that wants the engine without Postgres.
//
// All methods copy on the way in and out; callers never share memory with
// the store.
type MemoryStore struct {
	mu            sync.Mutex
	organizations map[uuid.UUID]*models.Organization
	apiKeys       map[uuid.UUID]*models.APIKey
	modes         map[uuid.UUID]*models.PricingMode
	items         map[uuid.UUID]*models.LineItem
	jobs          map[uuid.UUID]*models.PricingJob

	// itemOrder preserves insertion order for "all items" listings.
	itemOrder []uuid.UUID

	// WriteConflicts lists item ids whose price writes should be rejected
	// with ErrWriteConflict. Test hook for the runner's failure handling.
	WriteConflicts map[uuid.UUID]bool
}

// NewMemoryStore creates an empty MemoryStore with a seeded default organization.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		organizations:  make(map[uuid.UUID]*models.Organization),
		apiKeys:        make(map[uuid.UUID]*models.APIKey),
		modes:          make(map[uuid.UUID]*models.PricingMode),
		items:          make(map[uuid.UUID]*models.LineItem),
		jobs:           make(map[uuid.UUID]*models.PricingJob),
		WriteConflicts: make(map[uuid.UUID]bool),
	}
	now := time.Now().UTC()
	def := &models.Organization{ID: uuid.New(), Name: "default", CreatedAt: now, UpdatedAt: now}
	s.organizations[def.ID] = def
	return s
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// --- Organizations ---

func (s *MemoryStore) GetDefaultOrganization(_ context.Context) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.organizations {
		if o.Name == "default" {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetOrganization(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.organizations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// AddOrganization inserts an organization. Test seeding helper.
func (s *MemoryStore) AddOrganization(org *models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *org
	s.organizations[org.ID] = &cp
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	return keys, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.apiKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		k.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeys[key.ID]; ok {
		return ErrDuplicateKey
	}
	cp := *key
	s.apiKeys[key.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAPIKeys(_ context.Context, orgID uuid.UUID) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.OrganizationID == orgID && k.DeletedAt == nil {
			cp := *k
			keys = append(keys, &cp)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *MemoryStore) RevokeAPIKey(_ context.Context, id uuid.UUID, orgID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok || k.OrganizationID != orgID || k.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	k.UpdatedAt = now
	return nil
}

// --- Pricing Modes ---

func (s *MemoryStore) CreatePricingMode(_ context.Context, mode *models.PricingMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modes[mode.ID]; ok {
		return ErrDuplicateKey
	}
	cp := copyMode(mode)
	s.modes[mode.ID] = cp
	return nil
}

func (s *MemoryStore) GetPricingMode(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.PricingMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modes[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.IsPreset && (m.OrganizationID == nil || *m.OrganizationID != orgID) {
		return nil, ErrNotFound
	}
	return copyMode(m), nil
}

func (s *MemoryStore) ListPricingModes(_ context.Context, orgID uuid.UUID) ([]*models.PricingMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var modes []*models.PricingMode
	for _, m := range s.modes {
		if m.IsPreset || (m.OrganizationID != nil && *m.OrganizationID == orgID) {
			modes = append(modes, copyMode(m))
		}
	}
	sort.Slice(modes, func(i, j int) bool {
		if modes[i].IsPreset != modes[j].IsPreset {
			return modes[i].IsPreset
		}
		return modes[i].Name < modes[j].Name
	})
	return modes, nil
}

func (s *MemoryStore) RecordModeUsage(_ context.Context, id uuid.UUID, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.modes[id]; ok {
		m.UseCount++
		if success {
			m.SuccessCount++
		}
		m.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// --- Line Items ---

// AddLineItem inserts a line item. Test seeding helper.
func (s *MemoryStore) AddLineItem(item *models.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
	s.itemOrder = append(s.itemOrder, item.ID)
}

func (s *MemoryStore) ListLineItems(_ context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*models.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*models.LineItem
	if len(ids) == 0 {
		for _, id := range s.itemOrder {
			if it, ok := s.items[id]; ok && it.OrganizationID == orgID {
				cp := *it
				items = append(items, &cp)
			}
		}
		return items, nil
	}
	for _, id := range ids {
		if it, ok := s.items[id]; ok && it.OrganizationID == orgID {
			cp := *it
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (s *MemoryStore) GetLineItem(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *MemoryStore) SetLineItemPrice(_ context.Context, id uuid.UUID, orgID uuid.UUID, price float64, appliedModeID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteConflicts[id] {
		return ErrWriteConflict
	}
	it, ok := s.items[id]
	if !ok || it.OrganizationID != orgID {
		return ErrNotFound
	}
	it.Price = price
	it.AppliedModeID = appliedModeID
	it.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Pricing Jobs ---

func (s *MemoryStore) CreateJob(_ context.Context, job *models.PricingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	for _, j := range s.jobs {
		if j.OrganizationID == job.OrganizationID && !j.Terminal() {
			return ErrActiveJobExists
		}
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID, orgID uuid.UUID) (*models.PricingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return copyJob(j), nil
}

func (s *MemoryStore) GetLatestJob(_ context.Context, orgID uuid.UUID) (*models.PricingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.PricingJob
	for _, j := range s.jobs {
		if j.OrganizationID != orgID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copyJob(latest), nil
}

func (s *MemoryStore) ListActiveJobs(_ context.Context, orgID uuid.UUID) ([]*models.PricingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*models.PricingJob
	for _, j := range s.jobs {
		if j.OrganizationID == orgID && !j.Terminal() {
			jobs = append(jobs, copyJob(j))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

func (s *MemoryStore) ListUnfinishedJobs(_ context.Context) ([]*models.PricingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*models.PricingJob
	for _, j := range s.jobs {
		if !j.Terminal() {
			jobs = append(jobs, copyJob(j))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

func (s *MemoryStore) UpdateJobProgress(_ context.Context, id uuid.UUID, processed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	// Terminal jobs and backwards counters are silently ignored, matching
	// the guarded UPDATE in the Postgres store.
	if j.Terminal() || processed < j.ProcessedCount {
		return nil
	}
	j.ProcessedCount = processed
	j.TotalCount = total
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !transitionAllowed(j.Status, status) {
		return fmt.Errorf("invalid job status transition: %s -> %s", j.Status, status)
	}

	now := time.Now().UTC()
	j.Status = status
	j.UpdatedAt = now
	if status == models.JobStatusProcessing {
		j.StartedAt = &now
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		j.CompletedAt = &now
	}
	if params.ErrorMessage != nil {
		j.ErrorMessage = params.ErrorMessage
	}
	if params.Result != nil {
		cp := *params.Result
		cp.Failures = append([]models.ItemFailure(nil), params.Result.Failures...)
		j.Result = &cp
	}
	return nil
}

// --- copy helpers ---

func copyMode(m *models.PricingMode) *models.PricingMode {
	cp := *m
	cp.Adjustments = make(map[string]float64, len(m.Adjustments))
	for k, v := range m.Adjustments {
		cp.Adjustments[k] = v
	}
	return &cp
}

func copyJob(j *models.PricingJob) *models.PricingJob {
	cp := *j
	cp.TargetItemIDs = append([]uuid.UUID(nil), j.TargetItemIDs...)
	cp.Snapshot = append([]models.SnapshotEntry(nil), j.Snapshot...)
	if j.Result != nil {
		r := *j.Result
		r.Failures = append([]models.ItemFailure(nil), j.Result.Failures...)
		cp.Result = &r
	}
	return &cp
}
