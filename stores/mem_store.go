package stores

import (
	"context"
	"sync"
	"time"

	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

// MemPinStore is a PinStore kept in process memory. It backs the memory store driver for local runs and tests;
// data does not survive restarts.
type MemPinStore struct {
	// Now stamps creation time of new pins. Defaults to time.Now
	Now func() time.Time

	mu   sync.RWMutex
	pins map[string]*md.Pin
}

func NewMemPinStore() *MemPinStore {
	return &MemPinStore{Now: time.Now, pins: map[string]*md.Pin{}}
}

func (s *MemPinStore) Create(ctx context.Context, ownerID string, vp *md.ValidatedPin, imageURLs []string) (*md.Pin, *pe.PinErr) {
	p, err := newPin(ownerID, vp, imageURLs, s.Now())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pins[p.ID]; ok {
		return nil, pe.NewPersistence("error saving pin").WithCause(pe.NewExisted("duplicate pin id " + p.ID))
	}
	s.pins[p.ID] = p
	return clonePin(p), nil
}

func (s *MemPinStore) Get(ctx context.Context, pinID string) (*md.Pin, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pins[pinID]
	if !ok {
		return nil, errPinNotFound(pinID)
	}
	return clonePin(p), nil
}

func (s *MemPinStore) UpdateText(ctx context.Context, pinID, ownerID, text string) (*md.Pin, *pe.PinErr) {
	return s.mutate(pinID, ownerID, func(p *md.Pin) { p.TextContent = text })
}

func (s *MemPinStore) SetArchived(ctx context.Context, pinID, ownerID string, archived bool) (*md.Pin, *pe.PinErr) {
	return s.mutate(pinID, ownerID, func(p *md.Pin) { p.IsArchived = archived })
}

func (s *MemPinStore) mutate(pinID, ownerID string, f func(*md.Pin)) (*md.Pin, *pe.PinErr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[pinID]
	if !ok {
		return nil, errPinNotFound(pinID)
	}
	if !p.OwnedBy(ownerID) {
		return nil, errNotOwner()
	}
	f(p)
	return clonePin(p), nil
}

func (s *MemPinStore) Delete(ctx context.Context, pinID, ownerID string) *pe.PinErr {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[pinID]
	if !ok {
		return errPinNotFound(pinID)
	}
	if !p.OwnedBy(ownerID) {
		return errNotOwner()
	}
	delete(s.pins, pinID)
	return nil
}

func (s *MemPinStore) ListByOwner(ctx context.Context, ownerID string, includeArchived bool) ([]*md.Pin, *pe.PinErr) {
	return s.list(0, func(p *md.Pin) bool {
		return p.OwnerID == ownerID && (includeArchived || !p.IsArchived)
	}), nil
}

func (s *MemPinStore) ListAll(ctx context.Context, limit int) ([]*md.Pin, *pe.PinErr) {
	return s.list(effectiveLimit(limit), func(*md.Pin) bool { return true }), nil
}

func (s *MemPinStore) list(limit int, keep func(*md.Pin) bool) []*md.Pin {
	s.mu.RLock()
	ps := make([]*md.Pin, 0, len(s.pins))
	for _, p := range s.pins {
		if keep(p) {
			ps = append(ps, clonePin(p))
		}
	}
	s.mu.RUnlock()
	sortPins(ps)
	if limit > 0 && len(ps) > limit {
		ps = ps[:limit]
	}
	return ps
}

func (s *MemPinStore) Close() *pe.PinErr {
	return nil
}

func clonePin(p *md.Pin) *md.Pin {
	c := *p
	c.ImageURLs = append([]string{}, p.ImageURLs...)
	return &c
}

// MemProfileStore is a ProfileStore kept in process memory
type MemProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]md.Profile
}

func NewMemProfileStore() *MemProfileStore {
	return &MemProfileStore{profiles: map[string]md.Profile{}}
}

func (s *MemProfileStore) Create(ctx context.Context, p *md.Profile) *pe.PinErr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return pe.NewExisted("profile " + p.ID + " already existed")
	}
	for _, existing := range s.profiles {
		if existing.Username == p.Username {
			return pe.NewExisted("username " + p.Username + " is already taken")
		}
	}
	s.profiles[p.ID] = *p
	return nil
}

func (s *MemProfileStore) Get(ctx context.Context, userID string) (*md.Profile, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, pe.NewNotFound("profile not found")
	}
	return &p, nil
}

func (s *MemProfileStore) GetByUsername(ctx context.Context, username string) (*md.Profile, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Username == username {
			found := p
			return &found, nil
		}
	}
	return nil, pe.NewNotFound("profile " + username + " not found")
}

func (s *MemProfileStore) GetMany(ctx context.Context, userIDs []string) (map[string]*md.Profile, *pe.PinErr) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]*md.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			found[id] = &p
		}
	}
	return found, nil
}

func (s *MemProfileStore) Close() *pe.PinErr {
	return nil
}
