package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nodeos/storaged/pkg/api"
	"github.com/nodeos/storaged/pkg/config"
	"github.com/nodeos/storaged/pkg/flist"
	"github.com/nodeos/storaged/pkg/log"
	"github.com/nodeos/storaged/pkg/metrics"
	"github.com/nodeos/storaged/pkg/mountinfo"
	"github.com/nodeos/storaged/pkg/storage"
	"github.com/nodeos/storaged/pkg/storage/device"
	"github.com/nodeos/storaged/pkg/storage/devtype"
	"github.com/nodeos/storaged/pkg/storage/pool"
	"github.com/nodeos/storaged/pkg/system"
)

// volatileCacheSize is the tmpfs holding the device type cache.
const volatileCacheSize = 1 << 20

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the storage daemon",
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().String("config", "", "Path to YAML configuration file")
	runCmd.Flags().String("listen", "", "HTTP API address (overrides config)")
	runCmd.Flags().String("socket", "/var/run/storaged.sock", "Read-only local API socket, empty disables it")
	runCmd.Flags().Bool("debug", false, "Enable debug logging")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	socket, _ := cmd.Flags().GetString("socket")

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: !cfg.Debug})

	logger := log.WithComponent("main")
	logger.Info().
		Stringer("mode", cfg.Mode).
		Str("storage-url", cfg.StorageURL).
		Str("version", Version).
		Msg("starting storaged")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sys := system.System{}
	table := mountinfo.System{}
	catalog := device.NewLsBlk(sys)

	// the device type cache lives on a small tmpfs; when that fails every
	// classification probes
	var store *devtype.Store
	if dir, err := devtype.Volatile(sys, table, "storage", volatileCacheSize); err != nil {
		logger.Warn().Err(err).Msg("failed to mount volatile cache, device types will not be cached")
	} else if store, err = devtype.NewStore(dir); err != nil {
		logger.Warn().Err(err).Msg("failed to open device type cache")
		store = nil
	}
	defer store.Close()

	detector := devtype.NewDetector(catalog, store)
	pools := pool.NewBtrfsManager(sys, sys, table)

	mgr, err := storage.NewStorageManager(ctx, catalog, pools, detector)
	if err != nil {
		metrics.RegisterComponent("storage", false, err.Error())
		return err
	}
	metrics.RegisterComponent("storage", true, "")

	mounts, err := flist.NewMountManager(cfg.Root, sys, mgr, sys, table)
	if err != nil {
		metrics.RegisterComponent("flist", false, err.Error())
		return err
	}
	engine := flist.NewEngine(mounts, cfg.StorageURL)
	metrics.RegisterComponent("flist", true, "")

	collector := metrics.NewCollector(mgr, mgr, engine)
	collector.Start()
	defer collector.Stop()

	server := api.NewServer(mgr, engine, Version)

	errCh := make(chan error, 2)
	go func() {
		errCh <- server.Start(cfg.Listen)
	}()
	if socket != "" {
		go func() {
			errCh <- server.StartUnix(socket)
		}()
	}
	metrics.RegisterComponent("api", true, "")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Stringer("signal", sig).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("api server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
