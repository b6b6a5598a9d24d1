package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category classifies a broadcast for client-side presentation.
type Category string

const (
	CategoryCritical Category = "CRITICAL"
	CategoryUrgent   Category = "URGENT"
	CategoryInfo     Category = "INFO"
	CategorySuccess  Category = "SUCCESS"
	CategoryGeneral  Category = "GENERAL"
	CategoryReminder Category = "REMINDER"
	CategoryEvent    Category = "EVENT"
)

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	switch c {
	case CategoryCritical, CategoryUrgent, CategoryInfo, CategorySuccess,
		CategoryGeneral, CategoryReminder, CategoryEvent:
		return true
	}
	return false
}

func ParseCategoryFromString(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid category %q", ErrValidation, s)
	}
	return c, nil
}

// SelectorKind discriminates the audience selector variants.
type SelectorKind string

const (
	SelectorAll      SelectorKind = "ALL"
	SelectorSegment  SelectorKind = "SEGMENT"
	SelectorExplicit SelectorKind = "EXPLICIT"
)

func (k SelectorKind) String() string { return string(k) }

func (k SelectorKind) IsValid() bool {
	switch k {
	case SelectorAll, SelectorSegment, SelectorExplicit:
		return true
	}
	return false
}

func ParseSelectorKindFromString(s string) (SelectorKind, error) {
	k := SelectorKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid selector kind %q", ErrValidation, s)
	}
	return k, nil
}

// AudienceSelector is the targeting intent recorded with a campaign.
// Role is set for SEGMENT, RecipientIDs for EXPLICIT.
type AudienceSelector struct {
	Kind         SelectorKind `json:"kind"`
	Role         string       `json:"role,omitempty"`
	RecipientIDs []string     `json:"recipientIds,omitempty"`
}

func (s AudienceSelector) Validate() error {
	if !s.Kind.IsValid() {
		return fmt.Errorf("%w: invalid selector kind %q", ErrValidation, s.Kind)
	}

	switch s.Kind {
	case SelectorSegment:
		if strings.TrimSpace(s.Role) == "" {
			return fmt.Errorf("%w: segment selector requires a role", ErrValidation)
		}
	case SelectorExplicit:
		if len(s.RecipientIDs) == 0 {
			return fmt.Errorf("%w: explicit selector requires recipient ids", ErrValidation)
		}
	}

	return nil
}

// CampaignState tracks whether a campaign is live or retired by an admin.
type CampaignState string

const (
	CampaignActive  CampaignState = "ACTIVE"
	CampaignRetired CampaignState = "RETIRED"
)

func (s CampaignState) String() string { return string(s) }

func (s CampaignState) IsValid() bool {
	return s == CampaignActive || s == CampaignRetired
}

// Content limits for a broadcast.
const (
	MaxTitleLen = 160
	MaxBodyLen  = 2000
)

// Campaign is a single admin-authored broadcast plus its targeting intent.
// Immutable once created; retirement is the only later state change.
type Campaign struct {
	ID        string           `gorm:"type:uuid;primaryKey"`
	Title     string           `gorm:"type:varchar(160);not null"`
	Body      string           `gorm:"type:text;not null"`
	Category  Category         `gorm:"type:varchar(10);not null"`
	Selector  AudienceSelector `gorm:"-"`
	CreatedBy string           `gorm:"type:varchar(64);not null"`
	State     CampaignState    `gorm:"type:varchar(10);not null"`
	CreatedAt time.Time
}

func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if strings.TrimSpace(c.CreatedBy) == "" {
		return fmt.Errorf("%w: createdBy is required", ErrValidation)
	}
	if !c.Category.IsValid() {
		return fmt.Errorf("%w: invalid category %q", ErrValidation, c.Category)
	}

	if titleLen := len([]rune(c.Title)); titleLen > MaxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLen, titleLen)
	}
	if bodyLen := len([]rune(c.Body)); bodyLen > MaxBodyLen {
		return fmt.Errorf("%w: body exceeds %d characters (got %d)", ErrValidation, MaxBodyLen, bodyLen)
	}

	return c.Selector.Validate()
}
