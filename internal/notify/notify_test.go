package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisStreamNotifierAppendsEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n, err := NewRedisStreamNotifier(client, "test.events", 0)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	balance := int64(15)
	event := Event{Type: EventClaimApproved, CardID: "alice", ClaimID: "c1", Amount: 10, Balance: &balance, At: time.Unix(1700000000, 0).UTC()}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	msgs, err := client.XRange(context.Background(), "test.events", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(msgs))
	}
	if msgs[0].Values["type"] != EventClaimApproved {
		t.Fatalf("unexpected type field: %v", msgs[0].Values)
	}
	var got Event
	if err := json.Unmarshal([]byte(msgs[0].Values["payload"].(string)), &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.ClaimID != "c1" || got.Balance == nil || *got.Balance != 15 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestRedisStreamNotifierRequiresClient(t *testing.T) {
	if _, err := NewRedisStreamNotifier(nil, "", 0); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestRabbitMQNotifierRequiresURL(t *testing.T) {
	if _, err := NewRabbitMQNotifier(" ", ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.Notify(context.Background(), Event{Type: EventClaimCreated}); err != nil {
		t.Fatalf("nop notify: %v", err)
	}
}
