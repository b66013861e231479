package stores

import (
	"context"
	"sort"
	"time"

	"github.com/segmentio/ksuid"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

// PinStore vends the interface to interact with pin data. Implementations assign pin ID and creation time, and
// re-check pin ownership on every mutation regardless of what the caller had checked.
//
// All listings are ordered by creation time descending; ties are broken by pin ID ascending.
type PinStore interface {
	// Create persists a new pin owned by ownerID. Any rejection from the storage layer is returned as a
	// persistence error and never retried.
	Create(ctx context.Context, ownerID string, vp *md.ValidatedPin, imageURLs []string) (*md.Pin, *pe.PinErr)
	Get(ctx context.Context, pinID string) (*md.Pin, *pe.PinErr)
	UpdateText(ctx context.Context, pinID, ownerID, text string) (*md.Pin, *pe.PinErr)
	SetArchived(ctx context.Context, pinID, ownerID string, archived bool) (*md.Pin, *pe.PinErr)
	Delete(ctx context.Context, pinID, ownerID string) *pe.PinErr
	ListByOwner(ctx context.Context, ownerID string, includeArchived bool) ([]*md.Pin, *pe.PinErr)
	// ListAll returns the most recent pins across all users, capped at limit. A non-positive limit falls back
	// to the default cap.
	ListAll(ctx context.Context, limit int) ([]*md.Pin, *pe.PinErr)
	Close() *pe.PinErr
}

// ProfileStore vends read access to user profiles. Profiles are bootstrapped by the identity provider at
// registration time; Create exists for seeding.
type ProfileStore interface {
	Create(ctx context.Context, p *md.Profile) *pe.PinErr
	Get(ctx context.Context, userID string) (*md.Profile, *pe.PinErr)
	GetByUsername(ctx context.Context, username string) (*md.Profile, *pe.PinErr)
	// GetMany returns the profiles found for given user ids keyed by id. Unknown ids are simply absent.
	GetMany(ctx context.Context, userIDs []string) (map[string]*md.Profile, *pe.PinErr)
	Close() *pe.PinErr
}

// newPin assembles a pin from validated data. It generates the pin id and stamps the creation time.
func newPin(ownerID string, vp *md.ValidatedPin, imageURLs []string, now time.Time) (*md.Pin, *pe.PinErr) {
	pinKsuid, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		return nil, pe.NewServiceFailure("error generating pin id").WithCause(err)
	}
	urls := make([]string, len(imageURLs))
	copy(urls, imageURLs)
	return &md.Pin{
		ID:              pinKsuid.String(),
		OwnerID:         ownerID,
		TextContent:     vp.TextContent,
		ImageURLs:       urls,
		MusicLink:       vp.MusicLink,
		GifURL:          vp.GifURL,
		Sticker:         vp.Sticker,
		BackgroundColor: vp.BackgroundColor,
		CreatedAt:       now,
	}, nil
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return cst.DefaultDiscoveryLimit
	}
	return limit
}

// sortPins orders pins by creation time descending, then by id ascending
func sortPins(ps []*md.Pin) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.After(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

// cutAtLimit merges head with ties, the pins created at the oldest instant of head, and keeps the first limit
// pins in feed order
func cutAtLimit(head, ties []*md.Pin, limit int) []*md.Pin {
	seen := make(map[string]struct{}, len(head)+len(ties))
	merged := make([]*md.Pin, 0, len(head)+len(ties))
	for _, ps := range [][]*md.Pin{head, ties} {
		for _, p := range ps {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			merged = append(merged, p)
		}
	}
	sortPins(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func errPinNotFound(pinID string) *pe.PinErr {
	return pe.NewNotFound("pin " + pinID + " not found")
}

func errNotOwner() *pe.PinErr {
	return pe.NewForbidden("pin can only be changed by its owner")
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
