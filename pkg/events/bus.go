// Package events carries session store events over watermill.
//
// The in-memory transport keeps everything in process; the redis transport
// publishes the same events to Redis Streams so other processes (see
// `medchat tail`) can follow a session.
package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/redisstream"
)

const (
	TransportMemory = "memory"
	TransportRedis  = "redis"

	EventsSlug = "events"
)

// Settings holds the event transport configuration.
type Settings struct {
	Transport string `glazed:"transport"`
	Redis     redisstream.Settings
}

func DefaultSettings() Settings {
	return Settings{
		Transport: TransportMemory,
		Redis:     redisstream.DefaultSettings(),
	}
}

// NewEventsSection returns the section selecting the event transport. The
// redis fields live in the redisstream section.
func NewEventsSection(base Settings) (schema.Section, error) {
	return schema.NewSection(
		EventsSlug,
		"Session event transport",
		schema.WithFields(
			fields.New("transport", fields.TypeString,
				fields.WithHelp("Event transport: memory or redis"),
				fields.WithDefault(base.Transport)),
		),
	)
}

// Normalize lowercases the transport name and resolves redis-enabled into
// the redis transport.
func (s Settings) Normalize() Settings {
	s.Transport = strings.ToLower(strings.TrimSpace(s.Transport))
	if s.Transport == "" {
		s.Transport = TransportMemory
	}
	if s.Redis.Enabled {
		s.Transport = TransportRedis
	}
	return s
}

// UsesRedis reports whether events go over Redis Streams.
func (s Settings) UsesRedis() bool {
	return s.Normalize().Transport == TransportRedis
}

func (s Settings) Validate() error {
	switch s.Normalize().Transport {
	case TransportMemory:
		return nil
	case TransportRedis:
		return errors.Wrap(s.Redis.Validate(), "events")
	default:
		return errors.Errorf("events: unknown transport %q", s.Transport)
	}
}

// TopicForSession computes the event topic for a session.
func TopicForSession(sessionID string) string { return "session:" + sessionID }

// Bus bundles a publisher/subscriber pair and its logger.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Logger     watermill.LoggerAdapter

	redis   *redisstream.Transport
	closers []func() error
}

// NewBus builds the configured transport.
func NewBus(s Settings) (*Bus, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	logger := NewWatermillLogger(log.Logger)

	if !s.UsesRedis() {
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Bus{
			Publisher:  ch,
			Subscriber: ch,
			Logger:     logger,
			closers:    []func() error{ch.Close},
		}, nil
	}

	t, err := redisstream.NewTransport(s.Redis, logger)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("component", "events").Str("addr", s.Redis.Addr).Str("group", s.Redis.Group).Msg("redis stream transport ready")
	return &Bus{
		Publisher:  t.Publisher,
		Subscriber: t.Subscriber,
		Logger:     logger,
		redis:      t,
		closers:    []func() error{t.Close},
	}, nil
}

// PrepareTopic makes sure a subscriber on topic only sees events published
// from now on. It is a no-op for the in-memory transport.
func (b *Bus) PrepareTopic(ctx context.Context, topic string) error {
	if b.redis == nil {
		return nil
	}
	return b.redis.EnsureGroupAtTail(ctx, topic)
}

// NewRouter creates a watermill router sharing the bus logger.
func (b *Bus) NewRouter() (*message.Router, error) {
	r, err := message.NewRouter(message.RouterConfig{}, b.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "create router")
	}
	return r, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// DecodeEvent parses a store event from a bus message.
func DecodeEvent(msg *message.Message) (conversation.Event, error) {
	var ev conversation.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return conversation.Event{}, errors.Wrap(err, "decode store event")
	}
	return ev, nil
}
