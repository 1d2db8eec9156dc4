// Package redisstream builds the Watermill Redis Streams transport.
package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Transport is a publisher/subscriber pair sharing one redis client.
type Transport struct {
	Client     redis.UniversalClient
	Publisher  message.Publisher
	Subscriber message.Subscriber
	group      string
}

// NewTransport connects lazily; the first publish or subscribe dials redis.
func NewTransport(s Settings, logger watermill.LoggerAdapter) (*Transport, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "create redis stream subscriber")
	}

	return &Transport{Client: client, Publisher: pub, Subscriber: sub, group: s.Group}, nil
}

// EnsureGroupAtTail creates the transport's consumer group for stream at the
// tail ($) if it does not exist, so a new subscriber does not replay history.
func (t *Transport) EnsureGroupAtTail(ctx context.Context, stream string) error {
	return EnsureGroupAtTail(ctx, t.Client, stream, t.group)
}

func (t *Transport) Close() error {
	var first error
	for _, c := range []func() error{t.Subscriber.Close, t.Publisher.Close, t.Client.Close} {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// BUSYGROUP: the group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	log.Debug().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
