// Package app wires pinboard components out of configuration. Both services and pinctl build their dependencies
// through Setup, so every process of a deployment agrees on stores, storage and identity.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kivik/kivik/v3"
	"github.com/go-redis/redis"
	"github.com/spf13/viper"
	"gorm.io/gorm"
	"wuyrush.io/pinboard/common/logging"
	rt "wuyrush.io/pinboard/common/retry"
	cst "wuyrush.io/pinboard/constants"
	pe "wuyrush.io/pinboard/errors"
	"wuyrush.io/pinboard/identity"
	"wuyrush.io/pinboard/pins"
	st "wuyrush.io/pinboard/stores"
)

// App holds the wired components of a pinboard process
type App struct {
	Pins     st.PinStore
	Profiles st.ProfileStore
	Files    st.FileStore
	Identity identity.Provider
	Composer *pins.Composer
	Editor   *pins.Editor
	Feeds    *pins.FeedAssembler

	rdb     *redis.Client
	closers []func() *pe.PinErr
}

// Setup builds an App per current viper configuration. Dependencies are pinged until they are up, since
// containers we depend on may still be booting.
func Setup(ctx context.Context) (*App, error) {
	a := &App{}
	if err := a.setupStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupFeedCache(); err != nil {
		a.Close()
		return nil, err
	}
	fs, err := setupFileStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Files = fs
	a.closers = append(a.closers, fs.Close)
	if a.Identity, err = a.setupIdentity(); err != nil {
		a.Close()
		return nil, err
	}

	window := pins.NewEditWindow(viper.GetDuration(cst.EnvEditWindow))
	a.Composer = &pins.Composer{
		Validator: pins.NewValidator(viper.GetBool(cst.EnvStrictPalette)),
		Resolver:  &pins.AttachmentResolver{Files: a.Files, Parallelism: viper.GetInt(cst.EnvUploadParallelism)},
		Pins:      a.Pins,
	}
	a.Editor = &pins.Editor{Pins: a.Pins, Window: window}
	a.Feeds = pins.NewFeedAssembler(a.Pins, a.Profiles, pins.FeedOptions{
		DiscoveryLimit:  viper.GetInt(cst.EnvDiscoveryLimit),
		AuthorCacheSize: viper.GetInt(cst.EnvAuthorCacheSize),
		AuthorCacheTTL:  viper.GetDuration(cst.EnvAuthorCacheTTL),
		Window:          window,
	})
	return a, nil
}

// Close releases connections held by the App. Failures are logged only.
func (a *App) Close() {
	clog := logging.WithFuncName()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			clog.Warn(err.Trace())
		}
	}
	a.closers = nil
}

func bootstrapRetryOpts() []rt.RetryOption {
	return []rt.RetryOption{
		rt.WithTimeout(viper.GetDuration(cst.EnvBootstrapTimeout)),
		rt.WithBaseDelay(100 * time.Millisecond),
		rt.WithExp(2.0),
		rt.WithJitter(0.1),
		rt.WithMaxBackoff(2 * time.Second),
		rt.WithRetryOn(rt.IsDepOffline),
	}
}

func (a *App) setupStores(ctx context.Context) error {
	clog := logging.WithFuncName()
	driver := viper.GetString(cst.EnvStoreDriver)
	switch driver {
	case cst.DriverPostgres:
		db, err := ConnectPostgres(ctx)
		if err != nil {
			return err
		}
		a.Pins, a.Profiles = st.NewGormPinStore(db), &st.GormProfileStore{DB: db}
		// both stores share a single connection pool
		a.closers = append(a.closers, a.Pins.Close)
	case cst.DriverCouchDB:
		client, err := connectCouch(ctx)
		if err != nil {
			return err
		}
		a.Pins = st.NewCouchPinStore(ctx, client, viper.GetString(cst.EnvCouchPinDB))
		a.Profiles = st.NewCouchProfileStore(ctx, client, viper.GetString(cst.EnvCouchProfileDB))
		a.closers = append(a.closers, a.Pins.Close)
	case cst.DriverMemory:
		clog.Warn("pins are kept in process memory and will be lost on exit")
		a.Pins, a.Profiles = st.NewMemPinStore(), st.NewMemProfileStore()
	default:
		return pe.NewBadInput(fmt.Sprintf("unknown store driver %q", driver))
	}
	clog.WithField("driver", driver).Info("pin store is ready")
	return nil
}

// ConnectPostgres opens the configured postgres database once it accepts connections
func ConnectPostgres(ctx context.Context) (*gorm.DB, error) {
	db, err := st.OpenPostgres(viper.GetString(cst.EnvPostgresDSN))
	if err != nil {
		return nil, pe.NewServiceFailure("failed initializing postgres").WithCause(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, pe.NewServiceFailure("failed initializing postgres").WithCause(err)
	}
	pingFn := func() error { return sqlDB.PingContext(ctx) }
	if err := rt.Retry(pingFn, bootstrapRetryOpts()...); err != nil {
		sqlDB.Close()
		return nil, pe.NewServiceFailure("postgres unreachable").WithCause(err)
	}
	return db, nil
}

func connectCouch(ctx context.Context) (*kivik.Client, error) {
	cfg := &st.CouchConfig{
		DBAddr:        viper.GetString(cst.EnvCouchAddr),
		PinDBName:     viper.GetString(cst.EnvCouchPinDB),
		ProfileDBName: viper.GetString(cst.EnvCouchProfileDB),
		DBUsername:    viper.GetString(cst.EnvCouchUsername),
		DBPasswd:      viper.GetString(cst.EnvCouchPasswd),
	}
	var client *kivik.Client
	connFn := func() error {
		c, err := st.NewCouchClient(ctx, cfg)
		client = c
		return err
	}
	if err := rt.Retry(connFn, bootstrapRetryOpts()...); err != nil {
		return nil, pe.NewServiceFailure("failed initializing couchdb").WithCause(err)
	}
	return client, nil
}

func (a *App) setupFeedCache() error {
	switch mode := viper.GetString(cst.EnvFeedCache); mode {
	case cst.DriverNone, "":
		return nil
	case cst.DriverRedis:
		client, err := a.redisClient()
		if err != nil {
			return err
		}
		cache := &st.RedisDiscoveryCache{DB: client, TTL: viper.GetDuration(cst.EnvFeedCacheTTL)}
		a.Pins = &st.CachingPinStore{PinStore: a.Pins, Cache: cache}
		return nil
	default:
		return pe.NewBadInput(fmt.Sprintf("unknown feed cache %q", mode))
	}
}

// redisClient returns the redis client shared by components of the App, connecting on first use
func (a *App) redisClient() (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%s", viper.GetString(cst.EnvRedisHost), viper.GetString(cst.EnvRedisPort)),
		Password:   viper.GetString(cst.EnvRedisPasswd),
		DB:         viper.GetInt(cst.EnvRedisDB),
		MaxRetries: 3,
	})
	// verify the client is up correctly
	pingFn := func() error {
		_, err := client.Ping().Result()
		return err
	}
	if err := rt.Retry(pingFn, bootstrapRetryOpts()...); err != nil {
		client.Close()
		return nil, pe.NewServiceFailure("failed initializing Redis").WithCause(err)
	}
	a.rdb = client
	a.closers = append(a.closers, func() *pe.PinErr {
		if err := client.Close(); err != nil {
			return pe.NewServiceFailure("error closing redis client").WithCause(err)
		}
		return nil
	})
	return client, nil
}

func setupFileStore() (st.FileStore, error) {
	switch driver := viper.GetString(cst.EnvFileStoreDriver); driver {
	case cst.DriverLocal:
		return &st.LocalFileStore{
			Dir:     viper.GetString(cst.EnvLocalFileDir),
			BaseURL: viper.GetString(cst.EnvLocalFileURL),
		}, nil
	case cst.DriverS3:
		bucket := viper.GetString(cst.EnvS3Bucket)
		if bucket == "" {
			return nil, pe.NewBadInput(cst.EnvS3Bucket + " is required by the s3 file store")
		}
		return st.NewS3FileStore(st.S3Options{
			Endpoint:        viper.GetString(cst.EnvS3Endpoint),
			Region:          viper.GetString(cst.EnvS3Region),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString(cst.EnvS3AccessKey),
			SecretAccessKey: viper.GetString(cst.EnvS3SecretKey),
			PublicBaseURL:   viper.GetString(cst.EnvS3PublicBaseURL),
		}), nil
	default:
		return nil, pe.NewBadInput(fmt.Sprintf("unknown file store driver %q", driver))
	}
}

func (a *App) setupIdentity() (identity.Provider, error) {
	secure := viper.GetBool(cst.EnvCookieSecure)
	switch mode := viper.GetString(cst.EnvIdentity); mode {
	case cst.IdentityCookie, cst.IdentityRedis:
		secret := viper.GetString(cst.EnvSessionSecret)
		if secret == "" {
			return nil, pe.NewBadInput(cst.EnvSessionSecret + " is required by cookie sessions")
		}
		if mode == cst.IdentityCookie {
			return identity.NewCookieProvider([]byte(secret), secure), nil
		}
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return identity.NewRedisProvider(client, []byte(secret), secure), nil
	case cst.IdentityJWT:
		return NewJWTProvider()
	default:
		return nil, pe.NewBadInput(fmt.Sprintf("unknown identity provider %q", mode))
	}
}

// NewJWTProvider builds the token provider from configuration
func NewJWTProvider() (*identity.JWTProvider, error) {
	secret := viper.GetString(cst.EnvJWTSecret)
	if secret == "" {
		return nil, pe.NewBadInput(cst.EnvJWTSecret + " is required by token sessions")
	}
	return identity.NewJWTProvider([]byte(secret), viper.GetBool(cst.EnvCookieSecure)), nil
}

// Migrate prepares the configured store for pinboard: tables and indexes on postgres, databases and indexes on
// couchdb. Memory stores need no preparation.
func Migrate(ctx context.Context) error {
	clog := logging.WithFuncName()
	switch driver := viper.GetString(cst.EnvStoreDriver); driver {
	case cst.DriverPostgres:
		db, err := ConnectPostgres(ctx)
		if err != nil {
			return err
		}
		defer st.NewGormPinStore(db).Close()
		if err := st.Migrate(db); err != nil {
			return pe.NewPersistence("error migrating postgres schema").WithCause(err)
		}
	case cst.DriverCouchDB:
		client, err := connectCouch(ctx)
		if err != nil {
			return err
		}
		defer client.Close(ctx)
	case cst.DriverMemory:
	default:
		return pe.NewBadInput(fmt.Sprintf("unknown store driver %q", driver))
	}
	clog.Info("store migrated")
	return nil
}
