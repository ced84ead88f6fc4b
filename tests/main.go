// Manual end-to-end harness: submits a scan against a running scan API and
// follows it to a terminal status. Requires the full docker-compose stack.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ExposureScan/go-api/api"
	"github.com/ExposureScan/go-api/exposure"
)

func main() {
	log.Println("Entering scan API harness")

	baseURL := os.Getenv("EXPOSURE_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	workspaceID := os.Getenv("EXPOSURE_TEST_WORKSPACE")
	if workspaceID == "" {
		log.Fatalf("EXPOSURE_TEST_WORKSPACE must be set to an existing workspace id")
	}

	client := api.NewClient(baseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Minute)
	defer cancel()

	resp, err := client.StartScan(ctx, &exposure.ScanRequest{
		Type:        exposure.ScanTypeEmail,
		Target:      "harness@example.com",
		WorkspaceID: workspaceID,
	})
	if err != nil {
		log.Fatalf("Failed to start scan: %v", err)
	}
	log.Printf("Scan %s accepted with %d providers (status %s)", resp.ScanID, resp.ProviderCount, resp.Status)

	for {
		progress, err := client.GetProgress(ctx, resp.ScanID)
		if err == nil {
			log.Printf("Progress: %d/%d providers, %d findings, %s",
				progress.CompletedProviders, progress.TotalProviders,
				progress.FindingsCount, progress.Message)
			if exposure.ScanStatus(progress.Status).IsTerminal() {
				break
			}
		}
		select {
		case <-ctx.Done():
			log.Fatalf("Scan did not finish in time: %v", ctx.Err())
		case <-time.After(3 * time.Second):
		}
	}

	detail, err := client.GetScan(ctx, resp.ScanID)
	if err != nil {
		log.Fatalf("Failed to fetch scan: %v", err)
	}

	log.Printf("Scan finished: status=%s findings=%d privacy_score=%d",
		detail.Scan.Status, detail.Scan.TotalFindings, detail.Scan.PrivacyScore)
	for _, f := range detail.Findings {
		log.Printf("  [%s] %s %s (confidence %.2f)", f.Severity, f.Provider, f.Kind, f.Confidence)
	}
}
