package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/hcl"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mintmark-inc/mintmark-trade/funds"
	"github.com/mintmark-inc/mintmark-trade/market"
	"github.com/mintmark-inc/mintmark-trade/registry"
)

var (
	cfg    *config
	db     *bolt.DB
	log    *zap.Logger
	assets *registry.Registry
	ledger *funds.Ledger
	engine *market.Engine

	svcAccount   *account
	adminAccount *account
)

type config struct {
	Port     int    `hcl:"port"`
	DataDir  string `hcl:"datadir"`
	LogLevel string `hcl:"log_level"`
	FeeBps   int    `hcl:"fee_bps"`
}

func readConfig(confpath string) *config {
	var cfg config

	dat, err := os.ReadFile(confpath)
	if err != nil {
		panic(fmt.Sprintf("unable to read the configuration: %v", err))
	}

	if err = hcl.Unmarshal(dat, &cfg); nil != err {
		panic(fmt.Sprintf("unable to parse the configuration: %v", err))
	}

	if cfg.FeeBps < 0 || cfg.FeeBps > market.MaxFeeBps {
		panic(fmt.Sprintf("fee_bps out of range: %d", cfg.FeeBps))
	}

	return &cfg
}

func newLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			panic(fmt.Sprintf("unable to parse log_level: %v", err))
		}
		lvl = parsed
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.Encoding = "console"
	cc.Level = zap.NewAtomicLevelAt(lvl)
	cc.Sampling = nil

	logger, err := cc.Build()
	if err != nil {
		panic(fmt.Sprintf("unable to init the logger: %v", err))
	}
	return logger
}

func main() {
	var confpath string
	flag.StringVar(&confpath, "conf", "", "Specify configuration file")
	flag.Parse()

	cfg = readConfig(confpath)
	log = newLogger(cfg.LogLevel)
	defer log.Sync()

	db = openDB(fmt.Sprintf("%s/mintmark-trade.db", cfg.DataDir))
	defer db.Close()

	var err error
	if assets, err = registry.New(db); err != nil {
		log.Fatal("unable to init the asset registry", zap.Error(err))
	}
	if ledger, err = funds.New(db); err != nil {
		log.Fatal("unable to init the fund ledger", zap.Error(err))
	}
	if svcAccount, adminAccount, err = ensureServiceAccounts(); err != nil {
		log.Fatal("unable to init the service accounts", zap.Error(err))
	}

	engine, err = market.NewEngine(db, assets, ledger, market.Config{
		MarketAccount: svcAccount.number,
		AdminAccount:  adminAccount.number,
		InitialFeeBps: uint64(cfg.FeeBps),
		Logger:        log.Named("market"),
	})
	if err != nil {
		log.Fatal("unable to init the market engine", zap.Error(err))
	}

	listings, err := engine.ActiveListings()
	if err != nil {
		log.Fatal("unable to read active listings", zap.Error(err))
	}
	activeListings.Set(float64(len(listings)))
	go trackMarketMetrics(engine.Feed())

	log.Info("accounts ready",
		zap.String("market_account", svcAccount.number),
		zap.String("admin_account", adminAccount.number))

	r := setupRouter()
	log.Info("mintmark-trade listening", zap.Int("port", cfg.Port))
	if err := r.Run(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	serialize := serializeWrites()

	r.POST("/v1/accounts", serialize, handleAccountCreation())
	r.POST("/v1/mint", serialize, handleMint())
	r.POST("/v1/list", serialize, handleList())
	r.POST("/v1/buy", serialize, handleBuy())
	r.POST("/v1/cancel", serialize, handleCancel())
	r.PUT("/v1/fee", serialize, handleSetFee())
	r.POST("/v1/withdraw", serialize, handleWithdraw())
	r.POST("/v1/funds/deposit", serialize, handleDeposit())

	r.GET("/v1/fee", handleFee())
	r.GET("/v1/funds/:accountNo", handleBalance())
	r.GET("/v1/assets/:assetId", handleAssetLookup())
	r.GET("/v1/assets/:assetId/royalty", handleRoyaltyQuote())
	r.GET("/v1/listings", handleActiveListings())
	r.GET("/v1/listings/:assetId", handleListingLookup())
	r.GET("/v1/events", handleEventLog())
	r.GET("/v1/events/live", handleEventFeed())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
