// Command warehoused is an example composition root: it constructs a
// warehouse.Warehouse from environment configuration, starts its
// background workers, and shuts them down in order on SIGINT/SIGTERM.
// This module exposes no HTTP surface of its own (protocol adapters are
// out of scope) so there is nothing here to listen on — a host embedding
// this module as a library would call warehouse.New directly instead.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/r3e-network/warehouse-core/infrastructure/config"
	"github.com/r3e-network/warehouse-core/infrastructure/secrets"
	"github.com/r3e-network/warehouse-core/warehouse"
)

func main() {
	dataDir := flag.String("data-dir", "", "directory backing the device pool, snapshots and keystore (in-memory when empty)")
	deviceCount := flag.Int("devices", 0, "number of RAID member devices (defaults to 4)")
	flag.Parse()

	cfg := warehouse.DefaultConfig("warehouse")
	if trimmed := strings.TrimSpace(*dataDir); trimmed != "" {
		cfg.DataDir = trimmed
	} else if envDir := strings.TrimSpace(os.Getenv("WAREHOUSE_DATA_DIR")); envDir != "" {
		cfg.DataDir = envDir
	}
	if *deviceCount > 0 {
		cfg.DeviceCount = *deviceCount
	}

	masterKey, err := config.RequireEnv(nil, secrets.MasterKeyEnvName("WAREHOUSE"))
	if err != nil {
		log.Fatalf("configure master key: %v", err)
	}
	cfg.MasterKeyBase64 = masterKey

	w, err := warehouse.New(cfg)
	if err != nil {
		log.Fatalf("initialise warehouse: %v", err)
	}

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		log.Fatalf("start warehouse: %v", err)
	}
	log.Printf("warehouse started (data dir %q, %d devices)", cfg.DataDir, cfg.DeviceCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
