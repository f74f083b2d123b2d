// Command assay-worker runs the feature extraction worker: the HTTP API, the
// optional gRPC Extractor service and, when Redis is configured, the queue
// consumer.
//
// Usage:
//
//	assay-worker [flags] [serve]
//	assay-worker [flags] migrate <up|down|status|force N>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/assay.report/internal/config"
	"github.com/banshee-data/assay.report/internal/db"
	"github.com/banshee-data/assay.report/internal/monitoring"
	"github.com/banshee-data/assay.report/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to a JSON worker config file")
	listen       = flag.String("listen", config.DefaultListen, "HTTP listen address")
	grpcListen   = flag.String("grpc-listen", "", "gRPC listen address (empty disables gRPC)")
	dbPath       = flag.String("db", config.DefaultDBPath, "SQLite database path")
	artifactRoot = flag.String("artifacts", config.DefaultArtifactRoot, "Directory holding artifact content")
	redisAddr    = flag.String("redis", "", "Redis address for the job queue (empty disables the consumer)")
	verbose      = flag.Bool("verbose", false, "Log per-job and per-request detail")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] [serve | migrate <action>]\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintln(out)
	db.PrintMigrateHelp(out)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println("assay-worker", version.String())
		return
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "serve":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, cfg, nil); err != nil {
			log.Fatalf("serve: %v", err)
		}
	case "migrate":
		if err := db.RunMigrateCommand(args[1:], cfg.GetDBPath(), os.Stdin, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

// buildConfig loads the config file, if any, and applies the flags that
// were set explicitly on top of it.
func buildConfig() (*config.WorkerConfig, error) {
	cfg := config.EmptyWorkerConfig()
	if *configPath != "" {
		loaded, err := config.LoadWorkerConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.SetListen(*listen)
		case "grpc-listen":
			cfg.SetGRPCListen(*grpcListen)
		case "db":
			cfg.SetDBPath(*dbPath)
		case "artifacts":
			cfg.SetArtifactRoot(*artifactRoot)
		case "redis":
			cfg.SetRedisAddr(*redisAddr)
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
