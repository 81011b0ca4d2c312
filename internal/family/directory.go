// Package family resolves author display names from the family member
// directory. The backend's publication payloads carry author identity
// inconsistently, so the directory is the fallback when a post arrives with a
// user id but no usable name.
package family

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harmonichat/hcsync/internal/api"
)

// ErrUnknownMember indicates the user id is not part of the loaded family.
var ErrUnknownMember = errors.New("family: unknown member")

const defaultRefreshInterval = 10 * time.Minute

// MemberFetcher fetches the member directory for one family.
type MemberFetcher interface {
	FamilyMembers(ctx context.Context, familyID string) ([]api.FamilyMember, error)
}

// DirectoryConfig describes the dependencies for member resolution.
type DirectoryConfig struct {
	Fetcher MemberFetcher
	// RefreshInterval bounds how long a cached directory is served before a
	// refresh is attempted. Zero selects the default.
	RefreshInterval time.Duration
	Clock           func() time.Time
}

// Directory caches the member roster of one family and resolves display
// names. A refresh failure keeps serving the previous roster.
type Directory struct {
	fetcher  MemberFetcher
	interval time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	familyID  string
	members   map[string]api.FamilyMember
	fetchedAt time.Time
}

// NewDirectory constructs the directory resolver.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("family: member fetcher required")
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Directory{
		fetcher:  cfg.Fetcher,
		interval: interval,
		now:      clock,
		members:  make(map[string]api.FamilyMember),
	}, nil
}

// Load fetches the roster for a family, replacing any previous scope.
func (d *Directory) Load(ctx context.Context, familyID string) error {
	members, err := d.fetcher.FamilyMembers(ctx, familyID)
	if err != nil {
		return fmt.Errorf("family: load members: %w", err)
	}

	roster := make(map[string]api.FamilyMember, len(members))
	for _, member := range members {
		if member.ID == "" {
			continue
		}
		roster[member.ID] = member
	}

	d.mu.Lock()
	d.familyID = familyID
	d.members = roster
	d.fetchedAt = d.now()
	d.mu.Unlock()
	return nil
}

// Resolve returns the display name for a member, refreshing the roster first
// when it has gone stale. An unknown id after a fresh roster is an error.
func (d *Directory) Resolve(ctx context.Context, userID string) (string, error) {
	d.mu.RLock()
	familyID := d.familyID
	member, ok := d.members[userID]
	stale := d.now().Sub(d.fetchedAt) > d.interval
	d.mu.RUnlock()

	if ok && !stale {
		return member.FullName(), nil
	}
	if familyID == "" {
		return "", ErrUnknownMember
	}

	// Refresh failures fall back to whatever the cache still holds.
	if err := d.Load(ctx, familyID); err != nil && !ok {
		return "", err
	}

	d.mu.RLock()
	member, ok = d.members[userID]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownMember, userID)
	}
	return member.FullName(), nil
}

// Members returns a copy of the current roster.
func (d *Directory) Members() []api.FamilyMember {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]api.FamilyMember, 0, len(d.members))
	for _, member := range d.members {
		out = append(out, member)
	}
	return out
}

// FamilyID reports the family scope currently loaded, empty before Load.
func (d *Directory) FamilyID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.familyID
}
