package api

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so multiple API
// replicas share one dispatch feed.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan DispatchEvent]*redis.PubSub
}

func NewRedisBroker() (*RedisBroker, error) {
	opt, err := redis.ParseURL(os.Getenv("REDIS_URL"))
	if err != nil {
		return nil, err
	}
	return newRedisBroker(redis.NewClient(opt)), nil
}

func newRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb, subs: make(map[chan DispatchEvent]*redis.PubSub)}
}

func (b *RedisBroker) Subscribe(technicianID string) chan DispatchEvent {
	ch := make(chan DispatchEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(technicianID))
	// initial receive confirms the subscription is live
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		// ps.Channel() closes after Unsubscribe calls ps.Close(), and only
		// this goroutine ever closes ch, so no send can race the close.
		defer close(ch)
		for msg := range ps.Channel() {
			var evt DispatchEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(technicianID string, ch chan DispatchEvent) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		// closing the PubSub drains ps.Channel(), which lets the reader
		// goroutine close ch and exit
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(technicianID string, evt DispatchEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	_ = b.rdb.Publish(ctx, b.chanName(technicianID), data).Err()
}

func (b *RedisBroker) chanName(technicianID string) string { return "dispatch:" + technicianID }
