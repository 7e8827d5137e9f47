package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/DefiantLabs/warden-explorer/core"
	"github.com/DefiantLabs/warden-explorer/pkg/consumer"
	"github.com/DefiantLabs/warden-explorer/pkg/metrics"
	"github.com/DefiantLabs/warden-explorer/pkg/repository"
	"github.com/DefiantLabs/warden-explorer/pkg/server"
	"github.com/DefiantLabs/warden-explorer/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var uptimeConfig config.UptimeConfig

func init() {
	config.SetupLogFlags(&uptimeConfig.Log, uptimeCmd)
	config.SetupChainFlags(&uptimeConfig.Chain, uptimeCmd)
	config.SetupServerFlags(&uptimeConfig.Server, uptimeCmd)
	config.SetupRedisFlags(&uptimeConfig.Redis, uptimeCmd)
	config.SetupUptimeSpecificFlags(&uptimeConfig, uptimeCmd)

	rootCmd.AddCommand(uptimeCmd)
}

var uptimeCmd = &cobra.Command{
	Use:   "uptime",
	Short: "Tracks validator uptime and serves it over HTTP.",
	Long: `Keeps a sliding window of the most recent block commit signatures for every validator,
	polls the chain for new blocks and serves the resulting uptime on an HTTP API. It is meant
	to run as a long lived service next to the explorer front end.`,
	PreRunE: setupUptime,
	Run:     runUptime,
}

func setupUptime(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, viperConf)

	err := uptimeConfig.Validate()
	if err != nil {
		return err
	}

	ignoredKeys := config.CheckSuperfluousUptimeKeys(viperConf.AllKeys())

	if len(ignoredKeys) > 0 {
		config.Log.Warnf("Warning, the following invalid keys will be ignored: %v", ignoredKeys)
	}

	setupLogger(uptimeConfig.Log.Level, uptimeConfig.Log.Path, uptimeConfig.Log.Pretty)

	if uptimeConfig.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	return nil
}

func runUptime(cmd *cobra.Command, args []string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := uptimeConfig

	var blocksCache repository.BlocksCache = repository.NewMemoryBlocksCache(cfg.Uptime.CacheSize)
	var uptimeCache repository.UptimeCache
	if cfg.Redis.Addr != "" {
		rdb, err := repository.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Psw)
		if err != nil {
			config.Log.Fatal("Could not connect to redis", err)
		}
		defer rdb.Close()

		redisCache := repository.NewCache(rdb, cfg.Uptime.CacheSize, cfg.Chain.ChainID)
		blocksCache, uptimeCache = redisCache, redisCache
		config.Log.Infof("Using redis at %s for the block cache and snapshot publishing", cfg.Redis.Addr)
	}

	source, registry := newChainClients(cfg.Chain, cfg.Uptime.RequestRetryAttempts, cfg.Uptime.RetryMaxWait(), blocksCache)

	pollEvery, err := cfg.Uptime.PollEvery()
	if err != nil {
		config.Log.Fatal("Invalid poll interval", err)
	}

	driver, err := core.NewDriver(core.DriverConfig{
		WindowSize:       cfg.Uptime.WindowSize,
		MaxWindowSize:    cfg.Uptime.MaxWindowSize,
		AccountPrefix:    cfg.Chain.AccountPrefix,
		WarmupBlocks:     cfg.Uptime.WarmupBlocks,
		MaxCatchUp:       cfg.Uptime.MaxCatchUp,
		FetchWorkers:     cfg.Uptime.FetchWorkers,
		PollInterval:     pollEvery,
		PollingEnabled:   cfg.Uptime.PollingEnabled,
		RegistryInterval: cfg.Uptime.RegistryInterval,
	}, source, registry)
	if err != nil {
		config.Log.Fatal("Could not create the uptime driver", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	uptimeMetrics, err := metrics.NewUptime(reg)
	if err != nil {
		config.Log.Fatal("Could not register metrics", err)
	}
	driver.OnSnapshot(uptimeMetrics.ObserveSnapshot)
	driver.OnTick(uptimeMetrics.ObserveTick)

	var wg sync.WaitGroup
	if uptimeCache != nil {
		cacheConsumer := consumer.NewCacheConsumer(uptimeCache)
		driver.OnSnapshot(cacheConsumer.Offer)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cacheConsumer.RunSnapshots(ctx); err != nil {
				config.Log.Error("Cache consumer stopped", err)
			}
		}()
	}

	router := server.NewRouter(service.NewUptime(driver), reg)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		config.Log.Infof("Serving uptime on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			config.Log.Error("HTTP server stopped", err)
			cancel()
		}
	}()

	config.Log.Infof("Tracking uptime for chain %q with a window of %d blocks", cfg.Chain.ChainID, cfg.Uptime.WindowSize)
	if err := driver.Start(ctx); err != nil {
		config.Log.Fatal("Could not start the uptime driver", err)
	}

	<-ctx.Done()
	config.Log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.Log.Error("HTTP server shutdown failed", err)
	}

	driver.Stop()
	wg.Wait()
}
