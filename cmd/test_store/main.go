package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ExposureScan/go-api/exposure/postgres"
	"github.com/ExposureScan/go-api/exposure/store"
)

func main() {
	log.Println("Starting backing store connection test...")

	// PostgreSQL: connection plus a trivial query
	db := postgres.GetDB()
	if db == nil {
		log.Fatalf("❌ Failed to establish database connection")
	}

	var result int
	if err := db.Raw("SELECT 1").Scan(&result).Error; err != nil {
		log.Fatalf("❌ Failed to execute query: %v", err)
	}
	fmt.Println("✅ PostgreSQL connection test successful!")

	// Valkey: round-trip one key with a TTL
	kv, err := store.NewValkeyStore()
	if err != nil {
		log.Fatalf("❌ Failed to connect to Valkey: %v", err)
	}
	defer kv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "connection_test"
	if err := kv.SetValueWithTTL(ctx, key, "ok", 60); err != nil {
		log.Fatalf("❌ Failed to write test key: %v", err)
	}
	resp, err := kv.GetValue(ctx, key)
	if err != nil {
		log.Fatalf("❌ Failed to read test key: %v", err)
	}
	if resp.Message.Value != "ok" {
		log.Fatalf("❌ Unexpected test key value: %q", resp.Message.Value)
	}
	if err := kv.DeleteValue(ctx, key); err != nil {
		log.Fatalf("❌ Failed to delete test key: %v", err)
	}
	if _, err := kv.GetValue(ctx, key); !errors.Is(err, store.ErrKeyNotFound) {
		log.Fatalf("❌ Test key still present after delete")
	}
	fmt.Println("✅ Valkey connection test successful!")

	fmt.Println("✅ All backing stores are properly connected")
}
