package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ExposureScan/go-api/exposure/credits"
	"github.com/ExposureScan/go-api/exposure/killswitch"
	"github.com/ExposureScan/go-api/exposure/logging"
	"github.com/ExposureScan/go-api/exposure/postgres"
	"github.com/ExposureScan/go-api/exposure/provider"
	"github.com/ExposureScan/go-api/exposure/scan"
	"github.com/ExposureScan/go-api/exposure/scan/api"
	"github.com/ExposureScan/go-api/exposure/slogger"
	"github.com/ExposureScan/go-api/exposure/snapshot"
	"github.com/ExposureScan/go-api/exposure/store"
)

func main() {
	slogger.Init()
	logging.Init()
	defer logging.Close()

	addr := os.Getenv("EXPOSURE_API_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	db := postgres.GetDB()
	if db == nil {
		log.Fatalf("❌ Failed to establish database connection")
	}

	kv := store.OpenStore()
	defer kv.Close()

	repo := scan.NewGormRepository(db)
	registry := provider.NewRegistry()
	adapter := provider.NewProxyAdapter(kv)
	gate := credits.NewGate(credits.NewGormLedger(db), 10, nil)
	kill := killswitch.NewFromStore(kv)

	orchestrator := scan.New(repo, kv, registry, adapter, gate, kill, logging.GetLogger(), scan.DefaultOptions())
	snapshots := snapshot.NewSnapshotManager(kv)

	server := api.NewScanAPIServer(addr, api.NewHandlers(orchestrator, repo, registry, kill, snapshots))

	go func() {
		if err := server.Start(); err != nil {
			log.Printf("scan API server stopped: %v", err)
		}
	}()

	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()
	go runSnapshotJob(jobCtx, snapshots)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down, waiting for in-flight scans...")
	if err := server.Stop(); err != nil {
		log.Printf("server stop: %v", err)
	}
	orchestrator.Wait()
}

// runSnapshotJob takes a usage checkpoint once per day. The first checkpoint
// is taken shortly after startup so a fresh deployment has usage data without
// waiting a full day.
func runSnapshotJob(ctx context.Context, snapshots *snapshot.SnapshotManager) {
	timer := time.NewTimer(time.Minute)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := snapshots.CreateSnapshot(ctx, ""); err != nil {
			log.Printf("usage snapshot failed: %v", err)
		}
		timer.Reset(24 * time.Hour)
	}
}
