// Package config loads service configuration. Values come from environment variables, optionally seeded from a
// dotenv file, and are read through viper by the components that need them.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	cst "wuyrush.io/pinboard/constants"
)

// Setup loads the dotenv file named by PIN_ENV_FILE(default .env) if present, binds viper to the environment and
// registers defaults. Variables already set in the environment win over the ones in the dotenv file.
func Setup() {
	envFile := os.Getenv(cst.EnvEnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.WithField("envFile", envFile).Debug("no dotenv file loaded")
	}
	viper.AutomaticEnv()
	SetDefaults()
}

func SetDefaults() {
	viper.SetDefault(cst.EnvBootstrapTimeout, 30*time.Second)
	viper.SetDefault(cst.EnvStoreDriver, cst.DriverPostgres)
	viper.SetDefault(cst.EnvCouchAddr, "http://localhost:5984")
	viper.SetDefault(cst.EnvCouchPinDB, "pins")
	viper.SetDefault(cst.EnvCouchProfileDB, "profiles")
	viper.SetDefault(cst.EnvFileStoreDriver, cst.DriverLocal)
	viper.SetDefault(cst.EnvLocalFileDir, "/tmp/pinboard")
	viper.SetDefault(cst.EnvLocalFileURL, "http://localhost:8081/files")
	viper.SetDefault(cst.EnvS3Region, "auto")
	viper.SetDefault(cst.EnvFeedCache, cst.DriverNone)
	viper.SetDefault(cst.EnvRedisHost, "localhost")
	viper.SetDefault(cst.EnvRedisPort, "6379")
	viper.SetDefault(cst.EnvFeedCacheTTL, 5*time.Minute)
	viper.SetDefault(cst.EnvIdentity, cst.IdentityCookie)
	viper.SetDefault(cst.EnvEditWindow, cst.DefaultEditWindow)
	viper.SetDefault(cst.EnvDiscoveryLimit, cst.DefaultDiscoveryLimit)
	viper.SetDefault(cst.EnvStrictPalette, false)
	viper.SetDefault(cst.EnvUploadParallelism, 4)
	viper.SetDefault(cst.EnvAuthorCacheSize, 1024)
	viper.SetDefault(cst.EnvAuthorCacheTTL, 10*time.Minute)
	viper.SetDefault(cst.EnvWriterAddr, ":8081")
	viper.SetDefault(cst.EnvReaderAddr, ":8080")
	viper.SetDefault(cst.EnvReqBodySizeMaxByte, int64(32<<20))
	viper.SetDefault(cst.EnvImageSizeMaxByte, int64(8<<20))
	viper.SetDefault(cst.EnvMaxImages, 10)
	viper.SetDefault(cst.EnvCorsOrigins, []string{"http://localhost:5173"})
}
