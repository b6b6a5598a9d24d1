package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pulseline/broadcast-engine/internal/directory"
	"github.com/pulseline/broadcast-engine/internal/domain"
)

// Resolution is the frozen audience of one fan-out: membership is computed
// exactly once, at send time, and never re-evaluated afterwards.
type Resolution struct {
	RecipientIDs []string
	Empty        bool
}

// AudienceResolver turns a campaign's selector into concrete recipient ids.
type AudienceResolver struct {
	directory directory.Directory
}

func NewAudienceResolver(dir directory.Directory) (*AudienceResolver, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory is required")
	}
	return &AudienceResolver{directory: dir}, nil
}

func (r *AudienceResolver) Resolve(ctx context.Context, selector domain.AudienceSelector) (Resolution, error) {
	if err := selector.Validate(); err != nil {
		return Resolution{}, err
	}

	var (
		ids []string
		err error
	)
	switch selector.Kind {
	case domain.SelectorAll:
		ids, err = r.directory.ListAll(ctx)
	case domain.SelectorSegment:
		ids, err = r.directory.ListByRole(ctx, selector.Role)
	case domain.SelectorExplicit:
		ids = selector.RecipientIDs
	default:
		return Resolution{}, fmt.Errorf("%w: invalid selector kind %q", domain.ErrValidation, selector.Kind)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to resolve audience: %w", err)
	}

	ids = dedupRecipients(ids)
	return Resolution{
		RecipientIDs: ids,
		Empty:        len(ids) == 0,
	}, nil
}

// dedupRecipients trims, drops empties, and keeps the first occurrence of
// each id so a recipient listed twice gets one delivery attempt.
func dedupRecipients(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
