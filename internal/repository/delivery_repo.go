package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pulseline/broadcast-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryRepository interface {
	// CreateIgnoreConflict inserts one delivery row. It reports created=false
	// without an error when the (campaignID, recipientID) pair already
	// exists, which makes a retried fan-out a no-op per recipient.
	CreateIgnoreConflict(ctx context.Context, d *domain.DeliveryRecord) (created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	ListInbox(ctx context.Context, recipientID string, limit int) ([]domain.DeliveryRecord, error)
	ListActive(ctx context.Context) ([]domain.DeliveryRecord, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	SoftDelete(ctx context.Context, recipientID, id string) error
	ClearAll(ctx context.Context, recipientID string) (int64, error)
	CascadeDelete(ctx context.Context, campaignID string) (int64, error)
}

type GormDeliveryRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db, now: time.Now}
}

func (r *GormDeliveryRepo) CreateIgnoreConflict(ctx context.Context, d *domain.DeliveryRecord) (bool, error) {
	model := deliveryModelFromDomain(d)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "recipient_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return true, nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) ListInbox(ctx context.Context, recipientID string, limit int) ([]domain.DeliveryRecord, error) {
	if limit < 1 {
		limit = domain.InboxSnapshotLimit
	}

	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND state = ?", recipientID, domain.DeliveryActive).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *GormDeliveryRepo) ListActive(ctx context.Context) ([]domain.DeliveryRecord, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("state = ?", domain.DeliveryActive).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *GormDeliveryRepo) MarkRead(ctx context.Context, recipientID, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND recipient_id = ? AND state = ?", id, recipientID, domain.DeliveryActive).
		Updates(map[string]any{
			"read":    true,
			"read_at": gorm.Expr("COALESCE(read_at, ?)", r.now().UTC()),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return r.classifyNoop(ctx, recipientID, id)
}

func (r *GormDeliveryRepo) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("recipient_id = ? AND state = ? AND read = ?", recipientID, domain.DeliveryActive, false).
		Updates(map[string]any{
			"read":    true,
			"read_at": r.now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *GormDeliveryRepo) SoftDelete(ctx context.Context, recipientID, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND recipient_id = ? AND state = ?", id, recipientID, domain.DeliveryActive).
		Updates(map[string]any{
			"state":      domain.DeliveryDeleted,
			"deleted_at": r.now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return r.classifyNoop(ctx, recipientID, id)
}

func (r *GormDeliveryRepo) ClearAll(ctx context.Context, recipientID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("recipient_id = ? AND state = ?", recipientID, domain.DeliveryActive).
		Updates(map[string]any{
			"state":      domain.DeliveryDeleted,
			"deleted_at": r.now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *GormDeliveryRepo) CascadeDelete(ctx context.Context, campaignID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("campaign_id = ? AND state = ?", campaignID, domain.DeliveryActive).
		Updates(map[string]any{
			"state":      domain.DeliveryDeleted,
			"deleted_at": r.now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// classifyNoop distinguishes "record gone or foreign owner" (an error) from
// "already in the requested state" (an idempotent no-op).
func (r *GormDeliveryRepo) classifyNoop(ctx context.Context, recipientID, id string) error {
	var model DeliveryModel
	err := r.db.WithContext(ctx).
		First(&model, "id = ? AND recipient_id = ?", id, recipientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
