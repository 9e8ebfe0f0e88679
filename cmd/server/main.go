package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pot-code/learnsync/internal/feed"
	infra "github.com/pot-code/learnsync/internal/infrastructure"
	"github.com/pot-code/learnsync/internal/infrastructure/driver"
	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"github.com/pot-code/learnsync/internal/infrastructure/uuid"
	ihttp "github.com/pot-code/learnsync/internal/interfaces/http"
	"github.com/pot-code/learnsync/internal/progress"
	"github.com/pot-code/learnsync/internal/user"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.SetLoggerInContext(ctx, logger)

	if err := run(ctx, option, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, option *infra.AppConfig, logger *zap.Logger) error {
	var probes []*ihttp.Probe
	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)

	var dbConn driver.ITransactionalDB
	if option.Database.Driver != "" {
		conn, err := driver.GetDBConnection(&driver.DBConfig{
			User:     option.Database.User,
			Password: option.Database.Password,
			MaxConn:  option.Database.MaxConn,
			Protocol: option.Database.Protocol,
			Driver:   option.Database.Driver,
			Host:     option.Database.Host,
			Port:     option.Database.Port,
			Query:    option.Database.Query,
			Schema:   option.Database.Schema,
		})
		if err != nil {
			return err
		}
		defer conn.Close(context.Background())
		logger.Debug("Create DB connection instance", zap.String("db.driver", option.Database.Driver),
			zap.String("db.schema", option.Database.Schema),
			zap.String("db.host", option.Database.Host),
		)
		dbConn = conn
		probes = append(probes, &ihttp.Probe{Name: "database", Ping: conn.Ping})
	}

	var kv *driver.RedisClient
	if option.Store.Driver == "redis" || option.Feed.RedisChannel != "" {
		kv = driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password, option.KVStore.DB)
		defer kv.Close()
		logger.Debug("Create redis client", zap.String("kv.host", option.KVStore.Host), zap.Int("kv.port", option.KVStore.Port))
		probes = append(probes, &ihttp.Probe{Name: "kv", Ping: kv.Ping})
	}

	UserRepo, err := newUserRepository(ctx, option, dbConn)
	if err != nil {
		return err
	}
	UserUseCase := user.NewUserUseCase(UserRepo, UUIDGenerator)
	if len(option.Directory.Users) > 0 {
		if err := UserUseCase.Seed(ctx, option.Directory.Users); err != nil {
			return err
		}
	}

	ProgressRepo, err := newProgressRepository(ctx, option, dbConn, kv)
	if err != nil {
		return err
	}

	var hub *feed.Hub
	if kv != nil && option.Feed.RedisChannel != "" {
		hub = feed.NewHub(UUIDGenerator, kv, option.Feed.RedisChannel)
	} else {
		hub = feed.NewHub(UUIDGenerator, nil, "")
	}

	ProgressUseCase := progress.NewProgressUseCase(ProgressRepo, UserUseCase, progress.NewKeyLock(option.Store.LockShards), hub)
	app := ihttp.NewServer(option, &ihttp.Dependencies{
		ProgressUseCase: ProgressUseCase,
		UserUseCase:     UserUseCase,
		Hub:             hub,
		Probes:          probes,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Start(gctx)
	})
	g.Go(func() error {
		return ihttp.Serve(gctx, app, option.Host+":"+strconv.Itoa(option.Port), logger)
	})
	return g.Wait()
}

func newUserRepository(ctx context.Context, option *infra.AppConfig, dbConn driver.ITransactionalDB) (user.UserRepository, error) {
	if option.Directory.Driver != "sql" {
		return user.NewUserMemory(), nil
	}
	repo := user.NewUserRepository(dbConn)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func newProgressRepository(ctx context.Context, option *infra.AppConfig, dbConn driver.ITransactionalDB, kv *driver.RedisClient) (progress.Repository, error) {
	switch option.Store.Driver {
	case "mysql", "postgres", "sqlite":
		repo := progress.NewSQLRepository(dbConn)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case "redis":
		return progress.NewRedisRepository(kv.Conn()), nil
	default:
		return progress.NewMemoryRepository(option.Store.LockShards), nil
	}
}
