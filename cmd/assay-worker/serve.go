package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/assay.report/internal/api"
	"github.com/banshee-data/assay.report/internal/blob"
	"github.com/banshee-data/assay.report/internal/config"
	"github.com/banshee-data/assay.report/internal/db"
	"github.com/banshee-data/assay.report/internal/monitoring"
	"github.com/banshee-data/assay.report/internal/queue"
	"github.com/banshee-data/assay.report/internal/rpc"
	"github.com/banshee-data/assay.report/internal/version"
	"github.com/banshee-data/assay.report/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// serve runs the worker until ctx is cancelled. ready, when non-nil, is
// called with the bound listener addresses once they accept connections;
// grpcAddr is empty when gRPC is disabled.
func serve(ctx context.Context, cfg *config.WorkerConfig, ready func(httpAddr, grpcAddr string)) error {
	monitoring.Logf("assay-worker %s starting", version.String())

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	blobs, err := blob.NewFileStore(cfg.GetArtifactRoot())
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	var consumer *worker.Consumer
	opts := api.Options{MaxUploadBytes: cfg.GetMaxUploadBytes()}
	if addr := cfg.GetRedisAddr(); addr != "" {
		q, err := queue.NewRedisQueue(ctx, queue.RedisOptions{
			Addr:     addr,
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
			Key:      cfg.GetQueueName(),
		})
		if err != nil {
			return err
		}
		defer q.Close()
		consumer = &worker.Consumer{
			Queue:        q,
			Processor:    worker.NewProcessor(database, blobs),
			PollInterval: cfg.GetPollInterval(),
		}
		opts.Queue = q
		opts.Stats = consumer.Stats
		monitoring.Logf("job queue: redis %s key %s", addr, cfg.GetQueueName())
	} else {
		monitoring.Logf("no redis_addr configured; queue consumer disabled")
	}

	server := api.NewServer(database, blobs, opts)
	mux := server.ServeMux()
	if err := server.AttachAdminRoutes(mux); err != nil {
		return err
	}
	httpLn, err := net.Listen("tcp", cfg.GetListen())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GetListen(), err)
	}
	httpServer := &http.Server{
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *grpc.Server
	var grpcLn net.Listener
	if addr := cfg.GetGRPCListen(); addr != "" {
		grpcLn, err = net.Listen("tcp", addr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		grpcServer = rpc.NewGRPCServer()
	}

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitoring.Logf("HTTP API listening on %s", httpLn.Addr())
		if err := httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	if grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitoring.Logf("gRPC Extractor listening on %s", grpcLn.Addr())
			if err := grpcServer.Serve(grpcLn); err != nil {
				errc <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(runCtx); err != nil {
				monitoring.Logf("consumer stopped: %v", err)
			}
		}()
	}

	if ready != nil {
		grpcAddr := ""
		if grpcLn != nil {
			grpcAddr = grpcLn.Addr().String()
		}
		ready(httpLn.Addr().String(), grpcAddr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}
	monitoring.Logf("shutting down...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := httpServer.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	wg.Wait()
	monitoring.Logf("graceful shutdown complete")
	return serveErr
}
