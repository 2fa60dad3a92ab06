package config

import (
	"flag"
	"os"
	"time"

	"orderflow/internal/orderflow"
	"orderflow/internal/orderflow/catalog"
	"orderflow/internal/orderflow/data/database"
	"orderflow/internal/orderflow/duplicates"
	"orderflow/internal/orderflow/notifier"
	"orderflow/internal/orderflow/scheduler"
	"orderflow/internal/orderflow/service"
	"orderflow/pkg/rediscache"
	"orderflow/pkg/workerpool"
)

const (
	serverAddressFlag      = "a"
	serverAddressEnv       = "RUN_ADDRESS"
	serverAddressDefault   = "localhost:8080"
	catalogAddressFlag     = "c"
	catalogAddressEnv      = "CATALOG_ADDRESS"
	catalogAddressDefault  = "localhost:8081"
	notifierAddressFlag    = "n"
	notifierAddressEnv     = "NOTIFIER_ADDRESS"
	notifierAddressDefault = "localhost:8082"
	dbConnectionStringFlag = "d"
	dbConnectionStringEnv  = "DATABASE_URI"
	redisAddressFlag       = "r"
	redisAddressEnv        = "REDIS_ADDRESS"
	redisAddressDefault    = "localhost:6379"
	cleanupEnabledFlag     = "cleanup"
	cleanupEnabledEnv      = "CLEANUP_ENABLED"
)

type Config struct {
	Server          orderflow.Config
	Catalog         catalog.Config
	Notifier        notifier.Config
	DB              database.Config
	Redis           rediscache.Config
	Duplicates      duplicates.Config
	Service         service.Config
	Scheduler       scheduler.Config
	ProcessingPool  workerpool.Config
	NotifyPool      workerpool.Config
	SweepPool       workerpool.Config
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	serverAddress := flag.String(
		serverAddressFlag,
		serverAddressDefault,
		"Server address host:port",
	)

	catalogAddress := flag.String(
		catalogAddressFlag,
		catalogAddressDefault,
		"Product catalog address host:port",
	)

	notifierAddress := flag.String(
		notifierAddressFlag,
		notifierAddressDefault,
		"Notification target address host:port",
	)

	dbConnectionString := flag.String(
		dbConnectionStringFlag,
		"",
		"PostgreSQL connection string",
	)

	redisAddress := flag.String(
		redisAddressFlag,
		redisAddressDefault,
		"Redis address host:port",
	)

	cleanupEnabled := flag.Bool(
		cleanupEnabledFlag,
		false,
		"Enable the daily removal of old completed orders",
	)

	flag.Parse()

	if valStr, ok := os.LookupEnv(serverAddressEnv); ok {
		*serverAddress = valStr
	}

	if valStr, ok := os.LookupEnv(catalogAddressEnv); ok {
		*catalogAddress = valStr
	}

	if valStr, ok := os.LookupEnv(notifierAddressEnv); ok {
		*notifierAddress = valStr
	}

	if valStr, ok := os.LookupEnv(dbConnectionStringEnv); ok {
		*dbConnectionString = valStr
	}

	if valStr, ok := os.LookupEnv(redisAddressEnv); ok {
		*redisAddress = valStr
	}

	if valStr, ok := os.LookupEnv(cleanupEnabledEnv); ok {
		*cleanupEnabled = valStr == "true"
	}

	schedulerConfig := scheduler.DefaultConfig()
	schedulerConfig.CleanupEnabled = *cleanupEnabled

	return &Config{
		Server: orderflow.Config{
			ServerAddress:   *serverAddress,
			ShutdownTimeout: time.Second * 5,
		},
		Catalog: catalog.Config{
			ServerAddress: *catalogAddress,
		},
		Notifier: notifier.Config{
			ServerAddress: *notifierAddress,
		},
		DB: database.Config{
			ConnectionString: *dbConnectionString,
		},
		Redis: rediscache.Config{
			Addr:      *redisAddress,
			Namespace: "orderflow",
			TTL:       time.Hour * 24,
		},
		Duplicates: duplicates.Config{
			BufferLimit: 9000,
		},
		Service: service.Config{
			CacheSize: 1000,
			CacheTTL:  time.Minute * 5,
		},
		Scheduler: schedulerConfig,
		ProcessingPool: workerpool.Config{
			Workers:     5,
			QueueLength: 100,
		},
		NotifyPool: workerpool.Config{
			Workers:     3,
			QueueLength: 50,
		},
		SweepPool: workerpool.Config{
			Workers:     2,
			QueueLength: 50,
		},
		ShutdownTimeout: time.Second * 5,
	}, nil
}
