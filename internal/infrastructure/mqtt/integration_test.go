//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// Requires a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_CommandRoundtrip(t *testing.T) {
	topics := NewTopics("lifxd-it")
	client, err := Connect(testConfig(), topics)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	err = client.Subscribe(topics.AllCommands(), 1, func(topic string, _ []byte) error {
		if id, ok := topics.LightFromCommand(topic); ok {
			received <- id
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(topics.Command("d0:73:d5:00:00:01"), []byte(`{"command":"on"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case id := <-received:
		if id != "d0:73:d5:00:00:01" {
			t.Errorf("id = %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}
}
