package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/fitd"
	"github.com/GoSim-25-26J-441/amplitude-core/internal/store"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/config"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/logger"
)

func main() {
	var configPath string
	var grpcAddr string
	var httpAddr string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to a daemon config file (defaults are used when empty)")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; overrides config)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		logger.Error("invalid environment", "error", err)
		os.Exit(1)
	}
	if grpcAddr != "" {
		cfg.GRPCAddr = grpcAddr
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger.SetDefault(logger.NewFormat(cfg.LogFormat, cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	st, err := store.New(cfg.Store)
	if err != nil {
		logger.Error("failed to create store", "driver", cfg.Store.Driver, "error", err)
		stop()
		os.Exit(1)
	}
	if err := st.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "driver", cfg.Store.Driver, "error", err)
		stop()
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(st); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	executor := fitd.NewFitExecutor(fitd.NewSessionStore(), st, fitd.Options{
		Workers:        cfg.Workers,
		Method:         cfg.Fit.Method,
		MaxEvaluations: cfg.Fit.MaxEvaluations,
	})

	// TODO: Configure gRPC server security (TLS, authentication) before exposing
	// the objective service beyond localhost.
	grpcServer := grpc.NewServer()
	fitd.RegisterObjectiveServer(grpcServer, fitd.NewObjectiveGRPCServer(executor))

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", cfg.GRPCAddr, "error", err)
		stop()
		os.Exit(1)
	}

	// No WriteTimeout: dataset uploads and intensity responses can be large.
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           fitd.NewHTTPServer(executor).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "store", cfg.Store.Driver, "workers", cfg.Workers)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	executor.Shutdown()
}
