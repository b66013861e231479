package pins

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	pe "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
	"wuyrush.io/pinboard/stores"
)

var (
	alice = &md.Profile{ID: "u-alice", Username: "alice", Email: "alice@example.com"}
	bob   = &md.Profile{ID: "u-bob", Username: "bob", Email: "bob@example.com"}
	t0    = time.Date(2024, 2, 14, 9, 0, 0, 0, time.UTC)
)

// fakeClock is a settable Clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// newMemStores returns empty memory stores seeded with alice and bob, stamping pins with clock
func newMemStores(t *testing.T, clock *fakeClock) (*stores.MemPinStore, *stores.MemProfileStore) {
	ps := stores.NewMemPinStore()
	ps.Now = clock.Now
	profs := stores.NewMemProfileStore()
	require.Nil(t, profs.Create(context.Background(), alice))
	require.Nil(t, profs.Create(context.Background(), bob))
	return ps, profs
}

type mockFileStore struct {
	mock.Mock
}

// Ref keeps file name in the ref so tests can tell uploads apart
func (m *mockFileStore) Ref(filename string) string {
	return "pin-images/" + filename
}

func (m *mockFileStore) Save(ctx context.Context, ref string, f *md.File) (string, *pe.PinErr) {
	args := m.Called(ref)
	return args.String(0), toPinErr(args.Get(1))
}

func (m *mockFileStore) Delete(ctx context.Context, ref string) *pe.PinErr {
	args := m.Called(ref)
	return toPinErr(args.Get(0))
}

func (m *mockFileStore) Close() *pe.PinErr {
	return nil
}

func toPinErr(v interface{}) *pe.PinErr {
	if v == nil {
		return nil
	}
	return v.(*pe.PinErr)
}

func file(name string) md.File {
	return md.File{Name: name, ContentType: "image/png", Body: strings.NewReader("fake " + name)}
}

// failingPinStore rejects every pin creation
type failingPinStore struct {
	stores.PinStore
}

func (s *failingPinStore) Create(ctx context.Context, ownerID string, vp *md.ValidatedPin, imageURLs []string) (*md.Pin, *pe.PinErr) {
	return nil, pe.NewPersistence("error saving pin").WithCause(pe.NewServiceFailure("constraint violated"))
}

// countingProfileStore counts profile lookups hitting the underlying store
type countingProfileStore struct {
	stores.ProfileStore
	mu      sync.Mutex
	getMany int
}

func (s *countingProfileStore) GetMany(ctx context.Context, userIDs []string) (map[string]*md.Profile, *pe.PinErr) {
	s.mu.Lock()
	s.getMany++
	s.mu.Unlock()
	return s.ProfileStore.GetMany(ctx, userIDs)
}
