package repository

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pulseline/broadcast-engine/internal/domain"
)

// CampaignModel is the persistence model for the campaigns table. The
// audience selector is flattened: kind and role as columns, explicit
// recipient ids as a JSON text column.
type CampaignModel struct {
	ID                 string               `gorm:"type:uuid;primaryKey"`
	Title              string               `gorm:"type:varchar(160);not null"`
	Body               string               `gorm:"type:text;not null"`
	Category           domain.Category      `gorm:"type:varchar(10);not null"`
	SelectorKind       domain.SelectorKind  `gorm:"type:varchar(10);not null"`
	SelectorRole       string               `gorm:"type:varchar(64)"`
	SelectorRecipients string               `gorm:"type:text"`
	CreatedBy          string               `gorm:"type:varchar(64);not null"`
	State              domain.CampaignState `gorm:"type:varchar(10);not null"`
	CreatedAt          time.Time
}

func (CampaignModel) TableName() string {
	return "campaigns"
}

// DeliveryModel is the persistence model for the deliveries table. The
// (campaign_id, recipient_id) pair carries a unique index; fan-out inserts
// rely on it for idempotency.
type DeliveryModel struct {
	ID          string               `gorm:"type:uuid;primaryKey"`
	CampaignID  string               `gorm:"type:uuid;not null;uniqueIndex:ux_deliveries_campaign_recipient"`
	RecipientID string               `gorm:"type:varchar(64);not null;uniqueIndex:ux_deliveries_campaign_recipient"`
	Title       string               `gorm:"type:varchar(160);not null"`
	Body        string               `gorm:"type:text;not null"`
	Category    domain.Category      `gorm:"type:varchar(10);not null"`
	SentBy      string               `gorm:"type:varchar(64);not null"`
	Read        bool                 `gorm:"not null;default:false"`
	ReadAt      *time.Time
	State       domain.DeliveryState `gorm:"type:varchar(10);not null"`
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

func campaignModelFromDomain(c *domain.Campaign) *CampaignModel {
	if c == nil {
		return nil
	}

	recipients := ""
	if len(c.Selector.RecipientIDs) > 0 {
		if encoded, err := json.Marshal(c.Selector.RecipientIDs); err == nil {
			recipients = string(encoded)
		}
	}

	return &CampaignModel{
		ID:                 c.ID,
		Title:              c.Title,
		Body:               c.Body,
		Category:           c.Category,
		SelectorKind:       c.Selector.Kind,
		SelectorRole:       c.Selector.Role,
		SelectorRecipients: recipients,
		CreatedBy:          c.CreatedBy,
		State:              c.State,
		CreatedAt:          c.CreatedAt,
	}
}

func campaignModelToDomain(m *CampaignModel) *domain.Campaign {
	if m == nil {
		return nil
	}

	var recipients []string
	if trimmed := strings.TrimSpace(m.SelectorRecipients); trimmed != "" {
		_ = json.Unmarshal([]byte(trimmed), &recipients)
	}

	return &domain.Campaign{
		ID:       m.ID,
		Title:    m.Title,
		Body:     m.Body,
		Category: m.Category,
		Selector: domain.AudienceSelector{
			Kind:         m.SelectorKind,
			Role:         m.SelectorRole,
			RecipientIDs: recipients,
		},
		CreatedBy: m.CreatedBy,
		State:     m.State,
		CreatedAt: m.CreatedAt,
	}
}

func deliveryModelFromDomain(d *domain.DeliveryRecord) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:          d.ID,
		CampaignID:  d.CampaignID,
		RecipientID: d.RecipientID,
		Title:       d.Title,
		Body:        d.Body,
		Category:    d.Category,
		SentBy:      d.SentBy,
		Read:        d.Read,
		ReadAt:      d.ReadAt,
		State:       d.State,
		DeletedAt:   d.DeletedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:          m.ID,
		CampaignID:  m.CampaignID,
		RecipientID: m.RecipientID,
		Title:       m.Title,
		Body:        m.Body,
		Category:    m.Category,
		SentBy:      m.SentBy,
		Read:        m.Read,
		ReadAt:      m.ReadAt,
		State:       m.State,
		DeletedAt:   m.DeletedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
