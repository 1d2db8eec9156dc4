package redisstream

import (
	"strings"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/pkg/errors"
)

const RedisSlug = "redis"

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool   `glazed:"redis-enabled"`
	Addr     string `glazed:"redis-addr"`
	Group    string `glazed:"redis-group"`
	Consumer string `glazed:"redis-consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     "localhost:6379",
		Group:    "medchat-ui",
		Consumer: "ui-1",
	}
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return errors.New("redis: address is empty")
	}
	if strings.TrimSpace(s.Group) == "" || strings.TrimSpace(s.Consumer) == "" {
		return errors.New("redis: consumer group and consumer name are required")
	}
	return nil
}

// NewParameterLayer returns a section definition for Redis Streams settings.
// Field defaults start from base, so callers can seed them from a config file.
func NewParameterLayer(base Settings) (schema.Section, error) {
	return schema.NewSection(
		RedisSlug,
		"Redis configuration for Watermill Redis Streams",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool,
				fields.WithHelp("Publish session events to Redis Streams (same as --transport redis)"),
				fields.WithDefault(base.Enabled)),
			fields.New("redis-addr", fields.TypeString,
				fields.WithHelp("Redis address host:port"),
				fields.WithDefault(base.Addr)),
			fields.New("redis-group", fields.TypeString,
				fields.WithHelp("Redis consumer group of the chat UI"),
				fields.WithDefault(base.Group)),
			fields.New("redis-consumer", fields.TypeString,
				fields.WithHelp("Redis consumer name"),
				fields.WithDefault(base.Consumer)),
		),
	)
}
