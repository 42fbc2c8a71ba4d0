// cmd/tuanbuy/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tuanbuy/internal/pkg/auth"
	"tuanbuy/internal/pkg/config"
	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/mq"
	"tuanbuy/internal/pkg/redis"
	"tuanbuy/internal/pkg/tracing"
	"tuanbuy/internal/zookeeper"

	gbapp "tuanbuy/internal/service/groupbuy/application"
	gbinfra "tuanbuy/internal/service/groupbuy/infrastructure"
	gbadapter "tuanbuy/internal/service/groupbuy/infrastructure/adapter"
	gbhttp "tuanbuy/internal/service/groupbuy/interfaces"
	"tuanbuy/internal/service/notification"
	orderapp "tuanbuy/internal/service/order/application"
	orderinfra "tuanbuy/internal/service/order/infrastructure"
	orderadapter "tuanbuy/internal/service/order/infrastructure/adapter"
	orderhttp "tuanbuy/internal/service/order/interfaces"
	"tuanbuy/internal/service/sweeper"
)

const serviceName = "tuanbuy"

func main() {
	configPath := flag.String("config", "", "path to yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.App.LogLevel, cfg.App.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Logger.Fatal().Err(err).Msg("service exited")
	}
	logger.Logger.Info().Msg("service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- 可观测性 ---
	tp, err := tracing.InitTracerProvider(serviceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error().Err(err).Msg("shutdown tracer provider")
		}
	}()
	tracer := otel.Tracer(serviceName)

	// --- 存储 ---
	db, err := gorm.Open(gormmysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	if err := orderinfra.Migrate(db); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	// --- 消息 ---
	brokers := cfg.KafkaBrokerList()
	notifyWriter := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.NotificationTopic)
	defer notifyWriter.Close()
	refundWriter := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.RefundTopic)
	defer refundWriter.Close()
	pushWriter := mq.NewKafkaWriter(brokers, cfg.Infra.Kafka.PushTopic)
	defer pushWriter.Close()
	notifyReader := mq.NewKafkaReader(brokers, cfg.Infra.Kafka.NotificationTopic, "tuanbuy-notification")
	defer notifyReader.Close()

	// --- 扫描任务的单实例租约 ---
	var lease *zookeeper.Lease
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers)
	if err != nil {
		// 没有 zk 也能跑，只是失去了多实例下扫描任务的互斥
		logger.Logger.Warn().Err(err).Msg("zookeeper unavailable, sweeper runs without lease")
	} else {
		defer zkConn.Close()
		lease, err = zookeeper.NewLease(zkConn, "sweeper")
		if err != nil {
			return fmt.Errorf("create sweeper lease: %w", err)
		}
		defer lease.Release()
	}

	// --- 组装 ---
	gbStore := gbinfra.NewGormStore(db)
	orderStore := orderinfra.NewGormStore(db, gbStore)
	notifier := gbadapter.NewNotificationKafkaAdapter(notifyWriter)
	dealCache := gbadapter.NewDealCacheRedisAdapter(redisClient)
	refunds := orderadapter.NewRefundKafkaAdapter(refundWriter)

	gbService := gbapp.NewGroupBuyService(gbStore, notifier, dealCache, tracer).
		WithMinMembers(cfg.App.GroupBuy.MinGroupMembers)
	orderService := orderapp.NewOrderService(orderStore, notifier, dealCache,
		gbService, refunds, tracer,
		cfg.App.GroupBuy.PaymentWindow(), cfg.App.GroupBuy.AutoConfirmWindow())

	sw := sweeper.New(gbStore, orderStore, gbService, orderService, lease, sweeper.Config{
		Interval:          cfg.App.GroupBuy.SweeperInterval(),
		BatchSize:         cfg.App.GroupBuy.BatchSize(),
		PaymentWindow:     cfg.App.GroupBuy.PaymentWindow(),
		AutoConfirmWindow: cfg.App.GroupBuy.AutoConfirmWindow(),
	})
	worker := notification.NewWorker(notifyReader, pushWriter)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	gbhttp.NewGroupBuyHandler(gbService).RegisterRoutes(mux)
	orderhttp.NewOrderHandler(orderService).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler: auth.Middleware(auth.DevTokenStore{}, mux),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Logger.Info().Int("port", cfg.App.HTTPPort).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return sw.Run(ctx) })
	g.Go(func() error { return worker.Run(ctx) })

	return g.Wait()
}
