// Package pubsub fans reload notifications out to every running instance
// through a Redis channel.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultChannel = "surveydash:reload"

// Event announces that an instance saw the export directory change.
type Event struct {
	Origin     string    `json:"origin"`
	Generation uint64    `json:"generation"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

type Broadcaster struct {
	client  *redis.Client
	channel string
	origin  string

	mu   sync.Mutex
	subs []*redis.PubSub
	wg   sync.WaitGroup
}

type Options struct {
	Address  string
	Password string
	DB       int
	Channel  string
	Origin   string
}

type Option func(*Options)

func WithAddress(addr string) Option {
	return func(o *Options) {
		o.Address = addr
	}
}

func WithPassword(pass string) Option {
	return func(o *Options) {
		o.Password = pass
	}
}

func WithDB(db int) Option {
	return func(o *Options) {
		o.DB = db
	}
}

func WithChannel(channel string) Option {
	return func(o *Options) {
		o.Channel = channel
	}
}

// WithOrigin names this instance; events it published are not delivered
// back to it. A random id is used by default.
func WithOrigin(origin string) Option {
	return func(o *Options) {
		o.Origin = origin
	}
}

func New(ctx context.Context, opts ...Option) (*Broadcaster, error) {
	options := &Options{
		Address:  "localhost:6379",
		Password: "",
		DB:       0,
		Channel:  defaultChannel,
		Origin:   uuid.NewString(),
	}

	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, err
	}

	return &Broadcaster{client: client, channel: options.Channel, origin: options.Origin}, nil
}

// Origin returns this instance's id.
func (b *Broadcaster) Origin() string {
	return b.origin
}

// Publish announces e to every subscriber. Origin and At are filled in.
func (b *Broadcaster) Publish(ctx context.Context, e Event) error {
	e.Origin = b.origin
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe calls handler for every event published by other instances
// until ctx is done or the broadcaster is closed. It returns once the
// subscription is confirmed.
func (b *Broadcaster) Subscribe(ctx context.Context, handler func(Event)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.dispatch(msg.Payload, handler)
			}
		}
	}()
	return nil
}

func (b *Broadcaster) dispatch(payload string, handler func(Event)) {
	e, err := Decode(payload)
	if err != nil || e.Origin == b.origin {
		return
	}
	handler(e)
}

// Decode parses an event payload.
func Decode(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// Close ends every subscription and closes the client.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		sub.Close()
	}
	b.subs = nil
	b.mu.Unlock()
	b.wg.Wait()
	return b.client.Close()
}
