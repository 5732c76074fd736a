package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"circulation/internal/config"
	"circulation/internal/events"
	"circulation/internal/http/handlers"
	applog "circulation/internal/log"
	"circulation/internal/metrics"
	"circulation/internal/repos"
)

func main() {
	cfg := config.Load()

	logger, err := applog.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	applog.SetLogger(logger)

	db, err := repos.OpenDB(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("db.open", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer db.Close()

	if cfg.SeedDemo {
		if err := repos.SeedDemo(db); err != nil {
			logger.Fatal("db.seed", zap.Error(err))
		}
	}

	var pub events.Publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, logger)
		if err != nil {
			// the core works without a broker; events are dropped until restart
			logger.Warn("events.connect.fail", zap.Error(err))
		} else {
			pub = amqpPub
		}
	}
	defer pub.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps := handlers.NewDeps(db, pub, m)
	app := handlers.NewApp(deps, handlers.DefaultLimits)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("server.shutdown")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server.shutdown.fail", zap.Error(err))
		}
	}()

	logger.Info("server.start", zap.String("port", cfg.Port), zap.String("db_driver", cfg.DBDriver))
	if err := app.Listen(":" + cfg.Port); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server.listen", zap.Error(err))
	}
}
