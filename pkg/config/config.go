// Package config resolves medchat settings. Every command declares the
// sections built by NewSections; a value comes from the command line, then
// MEDCHAT_* environment variables, then the YAML config file, then the
// built-in defaults.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/sources"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/endpoint"
	"github.com/go-go-golems/medchat/pkg/events"
	"github.com/go-go-golems/medchat/pkg/redisstream"
)

const (
	AppName   = "medchat"
	EnvPrefix = "MEDCHAT"
	AppDir    = ".medchat"

	EndpointSlug     = "endpoint"
	ConversationSlug = "conversation"
	UISlug           = "ui"
)

type EndpointSettings struct {
	URL     string
	Timeout time.Duration
}

// endpointValues is the endpoint section as parsed; the timeout is a
// duration string.
type endpointValues struct {
	URL     string `glazed:"endpoint-url"`
	Timeout string `glazed:"timeout"`
}

type ConversationSettings struct {
	Preamble string `glazed:"preamble"`
	Greeting string `glazed:"greeting"`
	Policy   string `glazed:"policy"`
}

type UISettings struct {
	ThemeDB   string `glazed:"theme-db"`
	AltScreen bool   `glazed:"alt-screen"`
}

type Settings struct {
	Endpoint     EndpointSettings
	Conversation ConversationSettings
	UI           UISettings
	Events       events.Settings
}

// Home returns ~/.medchat, or .medchat when the home directory is unknown.
func Home() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return AppDir
	}
	return filepath.Join(home, AppDir)
}

func Defaults() Settings {
	return Settings{
		Endpoint: EndpointSettings{URL: endpoint.DefaultURL},
		Conversation: ConversationSettings{
			Preamble: conversation.DefaultPreamble,
			Greeting: conversation.DefaultGreeting,
			Policy:   string(conversation.PolicyQueue),
		},
		UI: UISettings{
			ThemeDB:   filepath.Join(Home(), "preferences.db"),
			AltScreen: true,
		},
		Events: events.DefaultSettings(),
	}
}

// ReadFile loads the YAML config into v. An explicit path must exist;
// ~/.medchat/config.yaml is optional.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", path)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(Home())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}
	return nil
}

// FileFromArgs returns the value of --config in args. Sections are built
// before cobra parses the command line, so the file is located up front.
func FileFromArgs(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
	}
	return ""
}

// FileDefaults overlays the config file held by v onto the built-in
// defaults. The file uses the section slugs and field names of the flags:
//
//	endpoint:
//	  endpoint-url: http://localhost:3001/api/gemini
//	conversation:
//	  policy: reject
//	redis:
//	  redis-addr: cache:6379
func FileDefaults(v *viper.Viper) (Settings, error) {
	s := Defaults()
	if v == nil {
		return s, nil
	}

	str := func(dst *string, section, field string) {
		if key := section + "." + field; v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	boolean := func(dst *bool, section, field string) {
		if key := section + "." + field; v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str(&s.Endpoint.URL, EndpointSlug, "endpoint-url")
	var timeout string
	str(&timeout, EndpointSlug, "timeout")
	if timeout != "" {
		d, err := ParseTimeout(timeout)
		if err != nil {
			return Settings{}, err
		}
		s.Endpoint.Timeout = d
	}

	str(&s.Conversation.Preamble, ConversationSlug, "preamble")
	str(&s.Conversation.Greeting, ConversationSlug, "greeting")
	str(&s.Conversation.Policy, ConversationSlug, "policy")
	str(&s.UI.ThemeDB, UISlug, "theme-db")
	boolean(&s.UI.AltScreen, UISlug, "alt-screen")

	str(&s.Events.Transport, events.EventsSlug, "transport")
	boolean(&s.Events.Redis.Enabled, redisstream.RedisSlug, "redis-enabled")
	str(&s.Events.Redis.Addr, redisstream.RedisSlug, "redis-addr")
	str(&s.Events.Redis.Group, redisstream.RedisSlug, "redis-group")
	str(&s.Events.Redis.Consumer, redisstream.RedisSlug, "redis-consumer")
	return s, nil
}

// ParseTimeout accepts a Go duration; empty means no timeout.
func ParseTimeout(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "endpoint timeout %q", v)
	}
	return d, nil
}

// NewSections builds the medchat sections with base as field defaults.
func NewSections(base Settings) ([]schema.Section, error) {
	timeout := ""
	if base.Endpoint.Timeout > 0 {
		timeout = base.Endpoint.Timeout.String()
	}

	endpointSection, err := schema.NewSection(
		EndpointSlug,
		"Chat endpoint",
		schema.WithFields(
			fields.New("endpoint-url", fields.TypeString,
				fields.WithHelp("Chat endpoint URL"),
				fields.WithDefault(base.Endpoint.URL)),
			fields.New("timeout", fields.TypeString,
				fields.WithHelp("Endpoint request timeout, e.g. 30s (empty disables)"),
				fields.WithDefault(timeout)),
		),
	)
	if err != nil {
		return nil, err
	}

	conversationSection, err := schema.NewSection(
		ConversationSlug,
		"Conversation",
		schema.WithFields(
			fields.New("preamble", fields.TypeString,
				fields.WithHelp("Text prepended to every question sent to the endpoint"),
				fields.WithDefault(base.Conversation.Preamble)),
			fields.New("greeting", fields.TypeString,
				fields.WithHelp("First bot message of a session"),
				fields.WithDefault(base.Conversation.Greeting)),
			fields.New("policy", fields.TypeChoice,
				fields.WithHelp("What a submission does while a reply is pending"),
				fields.WithChoices(
					string(conversation.PolicyQueue),
					string(conversation.PolicyReject),
					string(conversation.PolicyOverlap),
				),
				fields.WithDefault(base.Conversation.Policy)),
		),
	)
	if err != nil {
		return nil, err
	}

	uiSection, err := schema.NewSection(
		UISlug,
		"Terminal UI",
		schema.WithFields(
			fields.New("theme-db", fields.TypeString,
				fields.WithHelp("sqlite file holding the theme preference"),
				fields.WithDefault(base.UI.ThemeDB)),
			fields.New("alt-screen", fields.TypeBool,
				fields.WithHelp("Use the terminal alternate screen in chat mode"),
				fields.WithDefault(base.UI.AltScreen)),
		),
	)
	if err != nil {
		return nil, err
	}

	eventsSection, err := events.NewEventsSection(base.Events)
	if err != nil {
		return nil, err
	}
	redisSection, err := redisstream.NewParameterLayer(base.Events.Redis)
	if err != nil {
		return nil, err
	}

	return []schema.Section{endpointSection, conversationSection, uiSection, eventsSection, redisSection}, nil
}

// Middlewares resolves section values from flags, arguments, the
// environment and the field defaults.
func Middlewares(_ *values.Values, cmd *cobra.Command, args []string) ([]sources.Middleware, error) {
	return []sources.Middleware{
		sources.FromCobra(cmd),
		sources.FromArgs(args),
		sources.FromEnv(EnvPrefix,
			fields.WithSource("env"),
		),
		sources.FromDefaults(),
	}, nil
}

// FromValues decodes and validates the parsed sections.
func FromValues(parsed *values.Values) (Settings, error) {
	var ev endpointValues
	if err := parsed.DecodeSectionInto(EndpointSlug, &ev); err != nil {
		return Settings{}, errors.Wrap(err, "endpoint settings")
	}
	timeout, err := ParseTimeout(ev.Timeout)
	if err != nil {
		return Settings{}, err
	}

	s := Settings{Endpoint: EndpointSettings{URL: ev.URL, Timeout: timeout}}
	if err := parsed.DecodeSectionInto(ConversationSlug, &s.Conversation); err != nil {
		return Settings{}, errors.Wrap(err, "conversation settings")
	}
	if err := parsed.DecodeSectionInto(UISlug, &s.UI); err != nil {
		return Settings{}, errors.Wrap(err, "ui settings")
	}
	if err := parsed.DecodeSectionInto(events.EventsSlug, &s.Events); err != nil {
		return Settings{}, errors.Wrap(err, "events settings")
	}
	if err := parsed.DecodeSectionInto(redisstream.RedisSlug, &s.Events.Redis); err != nil {
		return Settings{}, errors.Wrap(err, "redis settings")
	}
	s.Events = s.Events.Normalize()

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	u, err := url.Parse(s.Endpoint.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("endpoint-url: %q is not an http(s) URL", s.Endpoint.URL)
	}
	if s.Endpoint.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if _, err := conversation.ParsePolicy(s.Conversation.Policy); err != nil {
		return errors.Wrap(err, "policy")
	}
	if strings.TrimSpace(s.UI.ThemeDB) == "" {
		return errors.New("theme-db must not be empty")
	}
	return s.Events.Validate()
}

// FieldValues returns s keyed by section slug and field name, the layout of
// the config file.
func (s Settings) FieldValues() map[string]map[string]any {
	timeout := ""
	if s.Endpoint.Timeout > 0 {
		timeout = s.Endpoint.Timeout.String()
	}
	return map[string]map[string]any{
		EndpointSlug: {
			"endpoint-url": s.Endpoint.URL,
			"timeout":      timeout,
		},
		ConversationSlug: {
			"preamble": s.Conversation.Preamble,
			"greeting": s.Conversation.Greeting,
			"policy":   s.Conversation.Policy,
		},
		UISlug: {
			"theme-db":   s.UI.ThemeDB,
			"alt-screen": s.UI.AltScreen,
		},
		events.EventsSlug: {
			"transport": s.Events.Transport,
		},
		redisstream.RedisSlug: {
			"redis-enabled":  s.Events.Redis.Enabled,
			"redis-addr":     s.Events.Redis.Addr,
			"redis-group":    s.Events.Redis.Group,
			"redis-consumer": s.Events.Redis.Consumer,
		},
	}
}

func (s Settings) YAML() ([]byte, error) {
	out, err := yaml.Marshal(s.FieldValues())
	if err != nil {
		return nil, errors.Wrap(err, "encode settings")
	}
	return out, nil
}
