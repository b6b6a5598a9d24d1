package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryState is the soft-delete state of one recipient's copy. A record
// only ever transitions ACTIVE -> DELETED, never back, so concurrent
// writers (owner vs. admin cascade) cannot conflict destructively.
type DeliveryState string

const (
	DeliveryActive  DeliveryState = "ACTIVE"
	DeliveryDeleted DeliveryState = "DELETED"
)

func (s DeliveryState) String() string { return string(s) }

func (s DeliveryState) IsValid() bool {
	return s == DeliveryActive || s == DeliveryDeleted
}

func ParseDeliveryStateFromString(s string) (DeliveryState, error) {
	st := DeliveryState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery state %q", ErrValidation, s)
	}
	return st, nil
}

// DeliveryRecord is the per-recipient copy of a campaign. Title, body,
// category and sentBy are denormalized at fan-out time; the campaign is
// never re-read after that. One row per (CampaignID, RecipientID).
type DeliveryRecord struct {
	ID          string        `gorm:"type:uuid;primaryKey"`
	CampaignID  string        `gorm:"type:uuid;not null"`
	RecipientID string        `gorm:"type:varchar(64);not null"`
	Title       string        `gorm:"type:varchar(160);not null"`
	Body        string        `gorm:"type:text;not null"`
	Category    Category      `gorm:"type:varchar(10);not null"`
	SentBy      string        `gorm:"type:varchar(64);not null"`
	Read        bool          `gorm:"not null;default:false"`
	ReadAt      *time.Time
	State       DeliveryState `gorm:"type:varchar(10);not null"`
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d *DeliveryRecord) IsActive() bool {
	return d.State == DeliveryActive
}

// Snapshot caps: an inbox shows the most recent 50 live records, the admin
// feed the 50 most recently sent campaign groups.
const (
	InboxSnapshotLimit = 50
	AdminFeedLimit     = 50
)

// fallbackKeyMaxLen bounds the legacy grouping key derived from content.
const fallbackKeyMaxLen = 80

// GroupKey is the aggregation key for per-campaign statistics. It is the
// campaign id whenever one is present; rows imported from before campaign
// ids existed fall back to a bounded content-derived key. Every view that
// groups deliveries must use this one function.
func (d *DeliveryRecord) GroupKey() string {
	if id := strings.TrimSpace(d.CampaignID); id != "" {
		return id
	}
	return FallbackGroupKey(d.Title, d.Body)
}

// FallbackGroupKey derives a grouping key from content for legacy rows
// without a campaign id. Two distinct legacy campaigns with identical
// title and body collapse into one group; the fix is assigning campaign
// ids at fan-out, which this engine always does.
func FallbackGroupKey(title, body string) string {
	key := strings.TrimSpace(title) + "|" + strings.TrimSpace(body)
	if runes := []rune(key); len(runes) > fallbackKeyMaxLen {
		return string(runes[:fallbackKeyMaxLen])
	}
	return key
}

// CampaignSummary is one row of the admin aggregate view: live (non-deleted)
// reach and read counts for a single campaign group.
type CampaignSummary struct {
	GroupKey   string    `json:"groupKey"`
	CampaignID string    `json:"campaignId,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Category   Category  `json:"category"`
	TotalSent  int       `json:"totalSent"`
	ReadCount  int       `json:"readCount"`
	SentAt     time.Time `json:"sentAt"`
	SentBy     string    `json:"sentBy"`
}
