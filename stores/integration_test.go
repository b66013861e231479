package stores

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/require"
)

func makeGormFixture(t *testing.T) *storeFixture {
	t.Helper()
	dsn := os.Getenv("PIN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PIN_TEST_POSTGRES_DSN not set; skipping postgres store integration test")
	}
	db, err := OpenPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Exec("TRUNCATE pins, profiles").Error)
	ps := NewGormPinStore(db)
	t.Cleanup(func() { ps.Close() })
	return &storeFixture{
		pins:     ps,
		profiles: &GormProfileStore{DB: db},
		setNow:   func(now time.Time) { ps.Now = func() time.Time { return now } },
	}
}

func TestGormStores(t *testing.T) {
	runStoreSuite(t, makeGormFixture)
}

func makeCouchFixture(t *testing.T) *storeFixture {
	t.Helper()
	addr := os.Getenv("PIN_TEST_COUCH_ADDR")
	if addr == "" {
		t.Skip("PIN_TEST_COUCH_ADDR not set; skipping couchdb store integration test")
	}
	ctx := context.Background()
	suffix := strings.ToLower(ksuid.New().String())
	cfg := &CouchConfig{
		DBAddr:        addr,
		PinDBName:     "pins_test_" + suffix,
		ProfileDBName: "profiles_test_" + suffix,
		DBUsername:    os.Getenv("PIN_TEST_COUCH_USERNAME"),
		DBPasswd:      os.Getenv("PIN_TEST_COUCH_PASSWD"),
	}
	client, err := NewCouchClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.DestroyDB(ctx, cfg.PinDBName)
		client.DestroyDB(ctx, cfg.ProfileDBName)
		client.Close(ctx)
	})
	ps := NewCouchPinStore(ctx, client, cfg.PinDBName)
	return &storeFixture{
		pins:     ps,
		profiles: NewCouchProfileStore(ctx, client, cfg.ProfileDBName),
		setNow:   func(now time.Time) { ps.Now = func() time.Time { return now } },
	}
}

func TestCouchStores(t *testing.T) {
	runStoreSuite(t, makeCouchFixture)
}
