package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/utrading/utrading-price-insight/config"
	"github.com/utrading/utrading-price-insight/internal/cleaner"
	"github.com/utrading/utrading-price-insight/internal/dal"
	"github.com/utrading/utrading-price-insight/internal/dao"
	"github.com/utrading/utrading-price-insight/internal/game"
	"github.com/utrading/utrading-price-insight/internal/manager"
	"github.com/utrading/utrading-price-insight/internal/monitor"
	"github.com/utrading/utrading-price-insight/internal/nats"
	"github.com/utrading/utrading-price-insight/internal/processor"
	"github.com/utrading/utrading-price-insight/internal/scope"
	"github.com/utrading/utrading-price-insight/internal/universalis"
	"github.com/utrading/utrading-price-insight/internal/world"
	"github.com/utrading/utrading-price-insight/internal/ws"
	"github.com/utrading/utrading-price-insight/pkg/logger"
	"github.com/utrading/utrading-price-insight/pkg/sigproc"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "cfg.toml", "config file path")
	flag.Parse()

	// 加载配置
	if err := config.Init(configFile); err != nil {
		panic(err)
	}
	cfg := config.Get()

	// 初始化日志
	if err := initLogger(cfg); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Close()

	logger.Info().Msg("price_insight service starting...")

	// 初始化指标
	monitor.InitMetrics()

	// 初始化元数据库
	if err := dal.InitDB(cfg.Database); err != nil {
		logger.Fatal().Err(err).Msg("init database failed")
	}
	dal.AutoMigrate(dal.DB())
	dao.InitDAO(dal.DB())

	// Universalis 客户端（元数据同步和价格抓取共用限流器）
	api := universalis.API(cfg.Universalis.API)
	opts := []universalis.Option{
		universalis.WithBaseURL(cfg.Universalis.BaseURL),
		universalis.WithAPI(api),
		universalis.WithRateLimit(cfg.Universalis.RequestsPerSecond, cfg.Universalis.Burst),
		universalis.WithUserAgent(cfg.Universalis.UserAgent),
		universalis.WithHTTPClient(universalis.NewHTTPClient(cfg.Universalis.Timeout, cfg.Universalis.ForceIPv4)),
	}

	// 元数据管理器（内部会后台加载服务器和可交易物品）
	metaClient := universalis.NewClient(opts...)
	worldManager := world.NewManager(dao.Metadata(), metaClient, cfg.PriceInsight.MetadataReloadInterval)

	// 清理上游已下线的服务器
	metaCleaner := cleaner.NewCleaner(dao.Metadata())
	metaCleaner.Start()

	fetcher := universalis.NewClient(append(opts, universalis.WithWorlds(worldManager.Directory()))...)

	// 价格查询服务
	player := game.NewPlayer()
	resolver := scope.NewResolver(player, worldManager.Directory())
	lookup, err := manager.NewPriceLookup(cfg.Coalescer, worldManager.Catalog(), resolver, fetcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("init price lookup failed")
	}

	// 可选 NATS 发布
	var (
		publisher    *nats.Publisher
		resolvedPub  manager.ResolvedPublisher
		publisherRef monitor.PublisherRef
	)
	if cfg.NATS.Enabled {
		publisher, err = nats.NewPublisher(cfg.NATS.Endpoint, cfg.NATS.Subject)
		if err != nil {
			logger.Fatal().Err(err).Msg("init nats publisher failed")
		}
		resolvedPub, publisherRef = publisher, publisher
	}

	// 桥接消息按顺序进入单个队列处理
	queue := processor.NewMessageQueue(cfg.PriceInsight.MessageQueueSize, nil)
	bridge := ws.NewBridge(cfg.PriceInsight.BridgeURL, queue)
	handler := manager.NewEventHandler(lookup, player, bridge, resolvedPub)
	queue.SetHandler(handler)
	queue.Start()

	unsubscribe := lookup.OnResolved(handler.PushResolved)
	bridge.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化健康检查服务器
	healthServer := monitor.NewHealthServer(
		cfg.PriceInsight.HealthServerAddr,
		lookup,
		bridge,
		publisherRef,
		worldManager,
	)
	if err = healthServer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start health server failed")
	}

	logger.Info().
		Str("bridge_url", cfg.PriceInsight.BridgeURL).
		Str("health_addr", cfg.PriceInsight.HealthServerAddr).
		Str("api", string(fetcher.API())).
		Msg("price_insight service started successfully")

	// 优雅关闭
	sigproc.GracefulShutdown(15*time.Second, func(sig os.Signal) {
		logger.Info().Str("signal", sig.String()).Msg("shutting down...")

		// 停止接收桥接消息
		bridge.Close()
		queue.Stop()
		unsubscribe()

		// 取消进行中的抓取并清空缓存
		lookup.Close()

		if publisher != nil {
			publisher.Close()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		healthServer.Stop(shutdownCtx)

		// 关闭配置重载
		config.Stop()

		metaCleaner.Stop()
		worldManager.Close()
		dal.Close()

		logger.Info().Msg("price_insight service stopped")
		cancel()
	})

	<-ctx.Done()
}

func initLogger(cfg *config.Config) error {
	return logger.NewBuilder().
		Dir(cfg.Logger.Dir).
		SetMaxSize(cfg.Logger.MaxSize).
		SetMaxBackups(cfg.Logger.MaxBackups).
		SetMaxAge(cfg.Logger.MaxAge).
		SetLevel(cfg.Logger.Level).
		EnableCompression(cfg.Logger.Compress).
		EnableConsoleOutput(cfg.Logger.Console).
		Build()
}
