package discovery

import (
	"context"
	"testing"
	"time"
)

func TestAdvertiseAndBrowse(t *testing.T) {
	// Skip in CI/docker environments where multicast might not work
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	advertiser := NewAdvertiser()
	meta := map[string]string{"canvas": "320x240", "codecs": "raw,lz4,jpeg"}
	port := 25577

	if err := advertiser.Start("test-station", port, meta); err != nil {
		t.Fatalf("Failed to start advertiser: %v", err)
	}
	defer advertiser.Stop()

	// Give it a moment to announce
	time.Sleep(500 * time.Millisecond)

	resolver, err := NewResolver()
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := resolver.Browse(ctx)
	if err != nil {
		t.Fatalf("Failed to browse: %v", err)
	}

	found := false
	for info := range ch {
		if info.Port == port && info.Meta["canvas"] == "320x240" {
			found = true
			if len(info.IPs) == 0 {
				t.Error("Discovered station has no IPs")
			}
			t.Logf("Found station: %+v", info)
			break
		}
	}

	if !found {
		t.Error("Failed to discover the test station")
	}
}
