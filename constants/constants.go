// Package constants vends constants used in various components of pinboard service, e.g., env var names
package constants

import "time"

const (
	// -------------- env vars --------------
	// common
	EnvVerbose          = "PIN_VERBOSE"
	EnvEnvFile          = "PIN_ENV_FILE"
	EnvBootstrapTimeout = "PIN_BOOTSTRAP_TIMEOUT"
	// stores
	EnvStoreDriver     = "PIN_STORE_DRIVER"
	EnvPostgresDSN     = "PIN_POSTGRES_DSN"
	EnvCouchAddr       = "PIN_COUCH_ADDR"
	EnvCouchUsername   = "PIN_COUCH_USERNAME"
	EnvCouchPasswd     = "PIN_COUCH_PASSWD"
	EnvCouchPinDB      = "PIN_COUCH_PIN_DB"
	EnvCouchProfileDB  = "PIN_COUCH_PROFILE_DB"
	EnvFileStoreDriver = "PIN_FILE_STORE_DRIVER"
	EnvLocalFileDir    = "PIN_LOCAL_FILE_DIR"
	EnvLocalFileURL    = "PIN_LOCAL_FILE_BASE_URL"
	EnvS3Endpoint      = "PIN_S3_ENDPOINT"
	EnvS3Region        = "PIN_S3_REGION"
	EnvS3Bucket        = "PIN_S3_BUCKET"
	EnvS3AccessKey     = "PIN_S3_ACCESS_KEY_ID"
	EnvS3SecretKey     = "PIN_S3_SECRET_ACCESS_KEY"
	EnvS3PublicBaseURL = "PIN_S3_PUBLIC_BASE_URL"
	EnvFeedCache       = "PIN_FEED_CACHE"
	EnvRedisHost       = "REDIS_HOST"
	EnvRedisPort       = "REDIS_PORT"
	EnvRedisPasswd     = "REDIS_PASSWD"
	EnvRedisDB         = "REDIS_DB"
	EnvFeedCacheTTL    = "PIN_FEED_CACHE_TTL"
	// identity
	EnvIdentity      = "PIN_IDENTITY"
	EnvSessionSecret = "PIN_SESSION_SECRET"
	EnvJWTSecret     = "PIN_JWT_SECRET"
	EnvCookieSecure  = "PIN_COOKIE_SECURE"
	// pins
	EnvEditWindow        = "PIN_EDIT_WINDOW"
	EnvDiscoveryLimit    = "PIN_DISCOVERY_LIMIT"
	EnvStrictPalette     = "PIN_STRICT_PALETTE"
	EnvUploadParallelism = "PIN_UPLOAD_PARALLELISM"
	EnvAuthorCacheSize   = "PIN_AUTHOR_CACHE_SIZE"
	EnvAuthorCacheTTL    = "PIN_AUTHOR_CACHE_TTL"
	// server
	EnvWriterAddr         = "PIN_WRITER_ADDR"
	EnvReaderAddr         = "PIN_READER_ADDR"
	EnvReqBodySizeMaxByte = "PIN_REQ_BODY_SIZE_MAX_BYTE"
	EnvImageSizeMaxByte   = "PIN_IMAGE_SIZE_MAX_BYTE"
	EnvMaxImages          = "PIN_MAX_IMAGES"
	EnvCorsOrigins        = "PIN_CORS_ORIGINS"

	// -------------- defaults --------------
	DefaultEditWindow     = 24 * time.Hour
	DefaultDiscoveryLimit = 50
	DefaultColor          = "#FFF9E6"
	AnonymousAuthor       = "Anonymous"
	ImagePathPrefix       = "pin-images"

	// -------------- store drivers --------------
	DriverPostgres = "postgres"
	DriverCouchDB  = "couchdb"
	DriverMemory   = "memory"
	DriverS3       = "s3"
	DriverLocal    = "local"
	DriverRedis    = "redis"
	DriverNone     = "none"
	IdentityCookie = "cookie"
	IdentityJWT    = "jwt"
	IdentityRedis  = "redis"

	// -------------- error messages --------------
	ErrMsgRequestBodyTooLarge = "request body too large"

	// -------------- log fields --------------
	LogFieldFuncName = "funcName"
	LogFieldPinID    = "pinID"
	LogFieldOwnerID  = "ownerID"
)
