package pins

import (
	"context"
	"time"

	"github.com/bluele/gcache"
	"wuyrush.io/pinboard/common/logging"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	"wuyrush.io/pinboard/stores"
)

// FeedOptions tunes a FeedAssembler
type FeedOptions struct {
	// DiscoveryLimit caps the discovery feed. It may lower the default cap of 50 but never raise it
	DiscoveryLimit int
	// AuthorCacheSize is the number of usernames kept in memory. Zero disables the cache
	AuthorCacheSize int
	AuthorCacheTTL  time.Duration
	Window          EditWindow
	Clock           Clock
}

// FeedAssembler builds feeds by joining pins to the usernames of their authors
type FeedAssembler struct {
	pins     stores.PinStore
	profiles stores.ProfileStore
	opts     FeedOptions
	// userID -> username. Usernames never change after registration, so entries never go stale
	authors gcache.Cache
}

func NewFeedAssembler(pins stores.PinStore, profiles stores.ProfileStore, opts FeedOptions) *FeedAssembler {
	if opts.DiscoveryLimit <= 0 || opts.DiscoveryLimit > cst.DefaultDiscoveryLimit {
		opts.DiscoveryLimit = cst.DefaultDiscoveryLimit
	}
	if opts.Window.Window <= 0 {
		opts.Window = NewEditWindow(0)
	}
	f := &FeedAssembler{pins: pins, profiles: profiles, opts: opts}
	if opts.AuthorCacheSize > 0 {
		b := gcache.New(opts.AuthorCacheSize).LRU()
		if opts.AuthorCacheTTL > 0 {
			b = b.Expiration(opts.AuthorCacheTTL)
		}
		f.authors = b.Build()
	}
	return f
}

// OwnFeed lists pins of userID that are not archived, newest first
func (f *FeedAssembler) OwnFeed(ctx context.Context, userID string) ([]*md.FeedItem, *pe.PinErr) {
	if userID == "" {
		return nil, pe.NewUnauthorized("sign in to see your own feed")
	}
	ps, perr := f.pins.ListByOwner(ctx, userID, false)
	if perr != nil {
		return nil, perr
	}
	return f.assemble(ctx, ps, userID)
}

// DiscoveryFeed lists the most recent pins across all users. Pins whose author cannot be found are attributed
// to the anonymous author. viewerID may be empty for anonymous viewers; it only affects Editable of items.
func (f *FeedAssembler) DiscoveryFeed(ctx context.Context, viewerID string) ([]*md.FeedItem, *pe.PinErr) {
	ps, perr := f.pins.ListAll(ctx, f.opts.DiscoveryLimit)
	if perr != nil {
		return nil, perr
	}
	return f.assemble(ctx, ps, viewerID)
}

// ProfileFeed lists all pins, archived ones included, of the user named username
func (f *FeedAssembler) ProfileFeed(ctx context.Context, username, viewerID string) ([]*md.FeedItem, *pe.PinErr) {
	prof, perr := f.profiles.GetByUsername(ctx, username)
	if perr != nil {
		if perr.Code == pe.ErrCodeNotFound {
			return nil, pe.NewNotFound("user " + username + " not found").WithCause(perr)
		}
		return nil, perr
	}
	f.remember(prof.ID, prof.Username)
	ps, perr := f.pins.ListByOwner(ctx, prof.ID, true)
	if perr != nil {
		return nil, perr
	}
	return f.assemble(ctx, ps, viewerID)
}

// Item wraps a single pin as seen by viewerID
func (f *FeedAssembler) Item(ctx context.Context, p *md.Pin, viewerID string) (*md.FeedItem, *pe.PinErr) {
	items, perr := f.assemble(ctx, []*md.Pin{p}, viewerID)
	if perr != nil {
		return nil, perr
	}
	return items[0], nil
}

// assemble attributes authors and editability to ps, keeping the order of ps
func (f *FeedAssembler) assemble(ctx context.Context, ps []*md.Pin, viewerID string) ([]*md.FeedItem, *pe.PinErr) {
	ownerIDs := make([]string, len(ps))
	for i, p := range ps {
		ownerIDs[i] = p.OwnerID
	}
	names, perr := f.usernames(ctx, ownerIDs)
	if perr != nil {
		return nil, perr
	}
	now := f.opts.Clock.now()
	items := make([]*md.FeedItem, len(ps))
	for i, p := range ps {
		name, ok := names[p.OwnerID]
		if !ok {
			name = cst.AnonymousAuthor
		}
		items[i] = &md.FeedItem{
			Pin:            *p,
			AuthorUsername: name,
			Editable:       p.OwnedBy(viewerID) && f.opts.Window.CanMutate(p, now),
		}
	}
	return items, nil
}

// usernames resolves usernames of given users. Users without profile are absent from the result
func (f *FeedAssembler) usernames(ctx context.Context, userIDs []string) (map[string]string, *pe.PinErr) {
	names := make(map[string]string, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	var misses []string
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if name, ok := f.recall(id); ok {
			names[id] = name
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return names, nil
	}
	found, perr := f.profiles.GetMany(ctx, misses)
	if perr != nil {
		logging.WithFuncName().Error(perr.Trace())
		return nil, perr
	}
	for id, prof := range found {
		names[id] = prof.Username
		f.remember(id, prof.Username)
	}
	return names, nil
}

func (f *FeedAssembler) recall(userID string) (string, bool) {
	if f.authors == nil {
		return "", false
	}
	v, err := f.authors.Get(userID)
	if err != nil {
		return "", false
	}
	return v.(string), true
}

func (f *FeedAssembler) remember(userID, username string) {
	if f.authors == nil {
		return
	}
	if err := f.authors.Set(userID, username); err != nil {
		logging.WithFuncName().WithError(err).Warn("error caching username")
	}
}
