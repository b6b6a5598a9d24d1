package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pulseline/broadcast-engine/internal/domain"
	"github.com/pulseline/broadcast-engine/internal/push"
)

// memDeliveryRepo mirrors the SQL repository's semantics in memory: unique
// (campaignID, recipientID), owner-scoped mutations, idempotent no-ops.
type memDeliveryRepo struct {
	mu      sync.Mutex
	records map[string]*domain.DeliveryRecord
	clock   time.Time

	failRecipients map[string]error
}

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{
		records: make(map[string]*domain.DeliveryRecord),
		clock:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memDeliveryRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *memDeliveryRepo) CreateIgnoreConflict(_ context.Context, d *domain.DeliveryRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failRecipients[d.RecipientID]; err != nil {
		return false, err
	}

	for _, existing := range r.records {
		if existing.CampaignID == d.CampaignID && existing.RecipientID == d.RecipientID {
			return false, nil
		}
	}

	stored := *d
	stored.CreatedAt = r.tick()
	stored.UpdatedAt = stored.CreatedAt
	r.records[stored.ID] = &stored
	*d = stored
	return true, nil
}

func (r *memDeliveryRepo) GetByID(_ context.Context, id string) (*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *memDeliveryRepo) ListInbox(_ context.Context, recipientID string, limit int) ([]domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.DeliveryRecord
	for _, record := range r.records {
		if record.RecipientID == recipientID && record.State == domain.DeliveryActive {
			out = append(out, *record)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDeliveryRepo) ListActive(_ context.Context) ([]domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.DeliveryRecord
	for _, record := range r.records {
		if record.State == domain.DeliveryActive {
			out = append(out, *record)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *memDeliveryRepo) MarkRead(_ context.Context, recipientID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok || record.RecipientID != recipientID {
		return domain.ErrNotFound
	}
	if record.State != domain.DeliveryActive {
		return nil
	}
	if !record.Read {
		record.Read = true
		at := r.tick()
		record.ReadAt = &at
	}
	return nil
}

func (r *memDeliveryRepo) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for _, record := range r.records {
		if record.RecipientID == recipientID && record.State == domain.DeliveryActive && !record.Read {
			record.Read = true
			at := r.tick()
			record.ReadAt = &at
			updated++
		}
	}
	return updated, nil
}

func (r *memDeliveryRepo) SoftDelete(_ context.Context, recipientID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok || record.RecipientID != recipientID {
		return domain.ErrNotFound
	}
	if record.State != domain.DeliveryActive {
		return nil
	}
	record.State = domain.DeliveryDeleted
	at := r.tick()
	record.DeletedAt = &at
	return nil
}

func (r *memDeliveryRepo) ClearAll(_ context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for _, record := range r.records {
		if record.RecipientID == recipientID && record.State == domain.DeliveryActive {
			record.State = domain.DeliveryDeleted
			at := r.tick()
			record.DeletedAt = &at
			removed++
		}
	}
	return removed, nil
}

func (r *memDeliveryRepo) CascadeDelete(_ context.Context, campaignID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for _, record := range r.records {
		if record.CampaignID == campaignID && record.State == domain.DeliveryActive {
			record.State = domain.DeliveryDeleted
			at := r.tick()
			record.DeletedAt = &at
			removed++
		}
	}
	return removed, nil
}

// seed inserts a record directly, bypassing fan-out, for legacy-row tests.
func (r *memDeliveryRepo) seed(record domain.DeliveryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.tick()
	}
	if record.State == "" {
		record.State = domain.DeliveryActive
	}
	stored := record
	r.records[stored.ID] = &stored
}

func sortNewestFirst(records []domain.DeliveryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

type memCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign

	createErr error
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (r *memCampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	stored := *c
	r.campaigns[stored.ID] = &stored
	return nil
}

func (r *memCampaignRepo) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (r *memCampaignRepo) Retire(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return domain.ErrNotFound
	}
	campaign.State = domain.CampaignRetired
	return nil
}

// allowAllLimiter never throttles.
type allowAllLimiter struct{}

func (allowAllLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (allowAllLimiter) Wait(context.Context, string) error { return nil }

// countingPusher records pushed messages.
type countingPusher struct {
	mu       sync.Mutex
	messages []push.Message

	err error
}

func (p *countingPusher) Push(_ context.Context, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *countingPusher) Close() error { return nil }

func (p *countingPusher) pushed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}
