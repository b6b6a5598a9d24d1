// Package directory is the port to the external profile/directory service.
// The engine never computes audience membership itself; it asks this port
// and freezes the answer at fan-out time.
package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Directory answers "who is currently in this audience".
type Directory interface {
	ListAll(ctx context.Context) ([]string, error)
	ListByRole(ctx context.Context, role string) ([]string, error)
}

// StaticDirectory is the in-memory Directory used in tests and seed
// environments.
type StaticDirectory struct {
	mu      sync.RWMutex
	byRole  map[string][]string
	everyID map[string]struct{}
}

var _ Directory = (*StaticDirectory)(nil)

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		byRole:  make(map[string][]string),
		everyID: make(map[string]struct{}),
	}
}

func (d *StaticDirectory) Add(recipientID string, roles ...string) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.everyID[recipientID] = struct{}{}
	for _, role := range roles {
		role = normalizeRole(role)
		if role == "" {
			continue
		}
		d.byRole[role] = append(d.byRole[role], recipientID)
	}
}

func (d *StaticDirectory) ListAll(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.everyID))
	for id := range d.everyID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *StaticDirectory) ListByRole(ctx context.Context, role string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.byRole[normalizeRole(role)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
