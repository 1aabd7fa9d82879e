package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"paimon-mirror/config"
	"paimon-mirror/proxy"
	"paimon-mirror/replication"
	"paimon-mirror/storage"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store := newStorage(cfg)

	replicator, err := replication.NewReplicator(cfg, store)
	if err != nil {
		log.Fatalf("Failed to create replicator: %v", err)
	}

	proxySrv, err := proxy.NewDuckDBProxy(cfg, store)
	if err != nil {
		log.Fatalf("Failed to create proxy: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := replicator.Start(ctx); err != nil {
			log.Printf("Replication error: %v", err)
			cancel()
		}
	}()

	go func() {
		if err := proxySrv.Start(ctx); err != nil {
			log.Printf("Proxy error: %v", err)
			cancel()
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down...")
	case <-ctx.Done():
		log.Println("Context cancelled...")
	}
}

// newStorage picks the warehouse backend: S3 when a bucket is
// configured, the local filesystem otherwise. With S3 the warehouse
// path nests under the configured key prefix.
func newStorage(cfg *config.Config) storage.Storage {
	if bucket := cfg.Warehouse.S3.Bucket; bucket != "" {
		client := s3.New(s3.Options{Region: cfg.Warehouse.S3.Region})
		return storage.NewS3Storage(client, bucket, cfg.Warehouse.S3.Prefix)
	}
	return storage.NewLocalStorage(cfg.Warehouse.Path)
}
