// SPDX-License-Identifier:Apache-2.0

// Command fpmbridge bridges a routing stack's FPM stream into the platform
// datastore: it accepts the zebra FPM connection, translates the netlink
// route and link updates it carries into ROUTE_TABLE writes, and drives the
// warm-restart and fib-suppression machinery around them.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"

	"github.com/openrouting/fpmbridge/internal/fpm"
	"github.com/openrouting/fpmbridge/internal/linkmon"
	"github.com/openrouting/fpmbridge/internal/logging"
	"github.com/openrouting/fpmbridge/internal/routesync"
	"github.com/openrouting/fpmbridge/internal/swss"
	"github.com/openrouting/fpmbridge/internal/syncd"
	"github.com/openrouting/fpmbridge/internal/version"
)

const (
	routeTableName       = "ROUTE_TABLE"
	deviceMetadataTable  = "DEVICE_METADATA"
	warmRestartCfgTable  = "WARM_RESTART"
	warmRestartStateTbl  = "WARM_RESTART_TABLE"
	bgpStateTable        = "BGP_STATE_TABLE"
	routeResponseChannel = "APPL_DB_ROUTE_TABLE_RESPONSE_CHANNEL"
)

func main() {
	var (
		redisAddr     = flag.String("redis-addr", os.Getenv("FPMBRIDGE_REDIS_ADDR"), "address of the datastore redis server")
		fpmAddr       = flag.String("fpm-addr", os.Getenv("FPMBRIDGE_FPM_ADDR"), "listen address for the FPM connection")
		host          = flag.String("host", os.Getenv("FPMBRIDGE_HOST"), "HTTP host address")
		port          = flag.Int("port", 7473, "HTTP listening port")
		logLevel      = flag.String("log-level", "info", fmt.Sprintf("log level. must be one of: [%s]", strings.Join(logging.Levels(), ", ")))
		kernelMonitor = flag.Bool("kernel-monitor", true, "watch kernel link updates in addition to the FPM stream")
	)
	flag.Parse()

	logger, err := logging.Init(*logLevel)
	if err != nil {
		fmt.Printf("failed to initialize logging: %s\n", err)
		os.Exit(1)
	}

	level.Info(logger).Log("version", version.Version(), "commit", version.CommitHash(), "branch", version.Branch(), "goversion", version.GoString(), "msg", "fpmbridge starting "+version.String())

	if *redisAddr == "" {
		*redisAddr = "localhost:6379"
	}
	if *fpmAddr == "" {
		*fpmAddr = fmt.Sprintf(":%d", fpm.DefaultPort)
	}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
		<-c
		level.Info(logger).Log("op", "shutdown", "msg", "received signal, shutting down")
		os.Exit(0)
	}()

	ctx := context.Background()

	applDB, err := swss.NewDB(ctx, *redisAddr, "APPL_DB")
	if err != nil {
		level.Error(logger).Log("op", "startup", "error", err, "msg", "failed to connect to APPL_DB")
		os.Exit(1)
	}
	configDB, err := swss.NewDB(ctx, *redisAddr, "CONFIG_DB")
	if err != nil {
		level.Error(logger).Log("op", "startup", "error", err, "msg", "failed to connect to CONFIG_DB")
		os.Exit(1)
	}
	stateDB, err := swss.NewDB(ctx, *redisAddr, "STATE_DB")
	if err != nil {
		level.Error(logger).Log("op", "startup", "error", err, "msg", "failed to connect to STATE_DB")
		os.Exit(1)
	}
	applStateDB, err := swss.NewDB(ctx, *redisAddr, "APPL_STATE_DB")
	if err != nil {
		level.Error(logger).Log("op", "startup", "error", err, "msg", "failed to connect to APPL_STATE_DB")
		os.Exit(1)
	}

	routeTable := applDB.Table(routeTableName)
	pipeline := swss.NewPipeline(applDB, routeTableName)

	warm := routesync.NewWarmRestartHelper(logger,
		configDB.Table(warmRestartCfgTable),
		stateDB.Table(warmRestartStateTbl),
		routeTable)
	sync := routesync.New(logger, pipeline, warm)

	// Suppression configured before we started counts as already on.
	suppress, err := configDB.Table(deviceMetadataTable).Hget("localhost", "suppress-fib-pending")
	if err != nil {
		level.Warn(logger).Log("op", "startup", "error", err, "msg", "failed to read initial suppression setting")
	}
	if suppress == "enabled" {
		sync.SetSuppressionEnabled(true)
	}

	dispatcher := fpm.NewDispatcher(logger)
	for _, t := range []uint16{unix.RTM_NEWROUTE, unix.RTM_DELROUTE, unix.RTM_NEWLINK, unix.RTM_DELLINK} {
		dispatcher.Register(t, sync)
	}

	watcher, err := swss.NewSubscriberTable(configDB, deviceMetadataTable)
	if err != nil {
		level.Error(logger).Log("op", "startup", "error", err, "msg", "failed to watch device metadata")
		os.Exit(1)
	}
	defer watcher.Close()

	var kernel syncd.KernelSource
	if *kernelMonitor {
		mon, err := linkmon.New(logger, sync.HandleLinkUpdate)
		if err != nil {
			level.Warn(logger).Log("op", "startup", "error", err, "msg", "kernel link monitoring unavailable, continuing without it")
		} else {
			kernel = mon
			defer mon.Close()
		}
	}

	listener, err := fpm.Listen(*fpmAddr, logger)
	if err != nil {
		level.Error(logger).Log("op", "startup", "error", err, "msg", "failed to listen for FPM connections")
		os.Exit(1)
	}
	defer listener.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsAddr := net.JoinHostPort(*host, strconv.Itoa(*port))
		err := http.ListenAndServe(metricsAddr, mux)
		level.Error(logger).Log("op", "metrics", "error", err, "msg", "metrics server exited")
		os.Exit(1)
	}()

	daemon := syncd.New(syncd.Config{
		Logger: logger,
		Accept: func() (syncd.Link, error) {
			link, err := listener.Accept()
			if err != nil {
				return nil, err
			}
			return link, nil
		},
		Dispatcher:    dispatcher,
		Translator:    sync,
		Pipeline:      pipeline,
		Kernel:        kernel,
		ConfigWatcher: watcher,
		NewResponseChannel: func() (syncd.ResponseChannel, error) {
			return swss.NewNotificationConsumer(applStateDB, routeResponseChannel)
		},
		BGPStateTable: stateDB.Table(bgpStateTable),
		RouteTable:    routeTable,
	})

	if err := daemon.Run(); err != nil {
		level.Error(logger).Log("op", "run", "error", err, "msg", "event loop failed")
		os.Exit(1)
	}
}
