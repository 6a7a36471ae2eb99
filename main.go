package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"dicom-annotations/annotation"
	"dicom-annotations/constants"
	"dicom-annotations/metadata"
	"dicom-annotations/mw"
	"dicom-annotations/settings"
	"dicom-annotations/utils"
	"dicom-annotations/viewport"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newLogger() *zap.Logger {
	env := viper.GetString("workspace.env")
	var logger *zap.Logger
	switch env {
	case "DEVELOPMENT":
		logger, _ = zap.NewDevelopment()
	default:
		logger, _ = zap.NewProduction()
	}
	return logger
}

func initConfigs(env string) {
	viper.AddConfigPath("conf")
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "__")
	viper.SetEnvKeyReplacer(replacer)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("metadata.source", constants.MetadataSourceMemory)
	viper.SetDefault("redis.ttl", "10m")
	settings.SetDefaults(viper.GetViper())
	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}
}

func getMapEnvVars() *map[string]string {
	ret := make(map[string]string)
	envsOS := os.Environ()
	for _, envOS := range envsOS {
		items := strings.SplitN(envOS, "=", 2)
		if len(items) > 1 {
			ret[items[0]] = items[1]
		}
	}
	return &ret
}

func newMinIOClient() *minio.Client {
	utils.LogInfo("minio at %s", viper.GetString("minio.uri"))
	minioClient, err := minio.New(
		viper.GetString("minio.uri"),
		&minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_key_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: viper.GetBool("minio.use_ssl"),
		})
	if err != nil {
		panic("Cannot connect to MinIO")
	}
	return minioClient
}

// newMetadataSource builds the header store selected by metadata.source.
// memory is non-nil when headers can also be pushed over HTTP.
func newMetadataSource(ctx context.Context, logger *zap.Logger) (metadata.Source, *metadata.MemoryStore, func()) {
	source := viper.GetString("metadata.source")
	utils.LogInfo("metadata source [%s]", source)

	switch source {
	case constants.MetadataSourceMinIO:
		store := metadata.NewDatasetStore(logger)
		if _, err := store.LoadBucket(ctx, newMinIOClient(), viper.GetString("minio.bucket_name"), viper.GetString("minio.prefix")); err != nil {
			utils.LogError(err)
		}
		return store, store.MemoryStore, func() {}

	case constants.MetadataSourceDicomDir:
		store := metadata.NewDatasetStore(logger)
		dir := viper.GetString("metadata.dicom_dir")
		if _, err := store.LoadDir(dir); err != nil {
			utils.LogFatal(err)
		}
		return store, store.MemoryStore, func() {}

	case constants.MetadataSourceOrthanc:
		clientRedis := redis.NewClient(&redis.Options{
			Network:    "tcp",
			Addr:       viper.GetString("redis.uri"),
			MaxRetries: 3,
		})
		if err := clientRedis.Ping(ctx).Err(); err != nil {
			utils.LogWarn("redis unavailable, orthanc headers are not cached: %v", err)
		}
		store := metadata.NewOrthancStore(viper.GetString("orthanc.uri"), clientRedis, viper.GetDuration("redis.ttl"), logger)
		return store, nil, func() { clientRedis.Close() }

	default:
		store := metadata.NewMemoryStore()
		return store, store, func() {}
	}
}

func main() {

	envVars := getMapEnvVars()
	env := "development"
	if value, found := (*envVars)[constants.ENV]; found {
		env = value
	}
	initConfigs(env)

	logger := newLogger()
	defer logger.Sync()
	utils.SetLogger(logger)
	utils.LogInfo("API is running in [%s] mode", env)
	utils.LogDebug("config file %s", viper.ConfigFileUsed())

	initial, err := settings.FromViper(viper.GetViper())
	if err != nil {
		utils.LogFatal(err)
	}
	settingsStore := settings.NewStore(initial)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, memory, closeSource := newMetadataSource(ctx, logger)
	defer closeSource()

	host := viewport.NewMemoryHost()
	composer := annotation.NewComposer(source, logger)
	shim := viewport.NewShim(host, composer, settingsStore, logger)
	dispatcher := viewport.NewDispatcher(shim, logger)
	defer dispatcher.Close()

	refresh := func() {
		go func() {
			if err := <-dispatcher.Refresh(); err != nil {
				logger.Warn("refresh failed", zap.Error(err))
			}
		}()
	}

	if store, ok := source.(*metadata.DatasetStore); ok && viper.GetBool("metadata.watch") &&
		viper.GetString("metadata.source") == constants.MetadataSourceDicomDir {
		go func() {
			err := store.Watch(ctx, viper.GetString("metadata.dicom_dir"), func(uid string) {
				logger.Debug("header changed on disk", zap.String("uid", uid))
				refresh()
			})
			if err != nil {
				utils.LogError(err)
			}
		}()
	}

	settingsStore.Subscribe(func(s settings.DisplaySettings) {
		logger.Debug("settings changed", zap.Stringer("settings", &s))
		refresh()
	})

	route := gin.Default()
	route.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"POST", "PUT", "PATCH", "GET", "DELETE"},
		AllowHeaders:     []string{"Access-Control-Allow-Headers", "Origin", "Accept", "X-Requested-With", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	route.Use(mw.Prometheus())
	route.GET("/metrics", mw.MetricsHandler())

	api := route.Group("")
	if keyData := viper.GetString("auth.public_key"); keyData != "" {
		key, err := mw.ParsePublicKey(keyData)
		if err != nil {
			utils.LogFatal(err)
		}
		api.Use(mw.WrapAuthInfo(key, logger))
	}

	settingsAPI := settings.NewSettingsAPI(settingsStore, logger)
	settingsAPI.InitRoute(api, "settings")

	viewportAPI := viewport.NewViewportAPI(host, dispatcher, logger)
	viewportAPI.InitRoute(api, "viewports")

	headerAPI := metadata.NewHeaderAPI(source, memory, logger)
	headerAPI.InitRoute(api, "headers")

	if err := route.Run("0.0.0.0:" + viper.GetString("webserver.port")); err != nil {
		utils.LogError(err)
	}
}
