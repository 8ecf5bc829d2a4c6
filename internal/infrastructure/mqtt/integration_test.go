//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	c, err := New(cfg, "starlink-int/"+clientID+"/status", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(c.Disconnect)
	return c
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	c := connectIntegration(t, "starlink-int-pubsub")

	var mu sync.Mutex
	received := make(map[string]string)
	c.SetHandlers(func(topic string, payload []byte) {
		mu.Lock()
		received[topic] = string(payload)
		mu.Unlock()
	}, nil)

	if err := c.Subscribe("starlink-int/pubsub/#", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Publish("starlink-int/pubsub/snow_melt_mode/set", []byte("on"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got, ok := received["starlink-int/pubsub/snow_melt_mode/set"]
		mu.Unlock()
		if ok {
			if got != "on" {
				t.Errorf("payload = %q, want on", got)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("message not received")
}

func TestIntegration_Reconnect(t *testing.T) {
	c := connectIntegration(t, "starlink-int-reconnect")

	c.Disconnect()
	if c.IsConnected() {
		t.Fatal("IsConnected() = true after Disconnect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("reconnect error = %v", err)
	}
	if err := c.Publish("starlink-int/reconnect/status", []byte("online"), 1, true); err != nil {
		t.Errorf("Publish() after reconnect error = %v", err)
	}
}
