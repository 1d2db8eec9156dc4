package cmds

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/medchat/pkg/config"
	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/events"
	"github.com/go-go-golems/medchat/pkg/redisstream"
	"github.com/go-go-golems/medchat/pkg/theme"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	s := config.Defaults()
	s.UI.ThemeDB = filepath.Join(t.TempDir(), "prefs.db")
	return s
}

func currentTheme(t *testing.T, path string) theme.Theme {
	t.Helper()
	m, closeThemes, err := OpenThemes(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = closeThemes() }()
	return m.Current()
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

// sectionValues parses s into the medchat sections.
func sectionValues(t *testing.T, s config.Settings) *values.Values {
	t.Helper()
	sections, err := config.NewSections(s)
	require.NoError(t, err)

	current := s.FieldValues()
	opts := make([]values.ValuesOption, 0, len(sections))
	for _, section := range sections {
		sv, err := values.NewSectionValues(section)
		require.NoError(t, err)
		for name, v := range current[section.GetSlug()] {
			sv.Fields.Update(name, &fields.FieldValue{Value: v})
		}
		opts = append(opts, values.WithSectionValues(section.GetSlug(), sv))
	}
	return values.New(opts...)
}

func TestThemeHelpers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")
	var out bytes.Buffer

	require.NoError(t, showTheme(ctx, path, &out))
	require.NoError(t, toggleTheme(ctx, path, &out))
	require.NoError(t, showTheme(ctx, path, &out))
	require.NoError(t, setTheme(ctx, path, "light", nil, &out))
	require.Equal(t, "light\ndark\ndark\nlight\n", out.String())

	require.Error(t, setTheme(ctx, path, "sepia", nil, &out))
	require.ErrorContains(t, setTheme(ctx, path, "", nil, &out), "not a terminal")

	picked := theme.Theme("")
	pick := func(current theme.Theme) (string, error) {
		picked = current
		return "dark", nil
	}
	out.Reset()
	require.NoError(t, setTheme(ctx, path, "", pick, &out))
	require.Equal(t, theme.Light, picked)
	require.Equal(t, "dark\n", out.String())
}

func TestThemeCommand_ThemeDBFromFlag(t *testing.T) {
	s := testSettings(t)
	other := filepath.Join(t.TempDir(), "other.db")

	cmd, err := NewThemeCommand(s)
	require.NoError(t, err)
	require.NoError(t, execute(t, cmd, "toggle", "--theme-db", other))

	require.Equal(t, theme.Dark, currentTheme(t, other))
	require.Equal(t, theme.Light, currentTheme(t, s.UI.ThemeDB))
}

func TestThemeCommand_ThemeDBFromEnv(t *testing.T) {
	s := testSettings(t)
	fromEnv := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("MEDCHAT_THEME_DB", fromEnv)

	cmd, err := NewThemeCommand(s)
	require.NoError(t, err)
	require.NoError(t, execute(t, cmd, "set", "dark"))

	require.Equal(t, theme.Dark, currentTheme(t, fromEnv))
	require.Equal(t, theme.Light, currentTheme(t, s.UI.ThemeDB))
}

func TestThemeCommand_ThemeDBFromFileDefaults(t *testing.T) {
	s := testSettings(t)

	cmd, err := NewThemeCommand(s)
	require.NoError(t, err)
	require.NoError(t, execute(t, cmd, "set", "dark"))
	require.Equal(t, theme.Dark, currentTheme(t, s.UI.ThemeDB))
}

func TestConfigShow(t *testing.T) {
	s := testSettings(t)
	s.Conversation.Policy = "reject"

	c, err := NewConfigShowCommand(s)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, c.RunIntoWriter(context.Background(), sectionValues(t, s), &out))
	require.Contains(t, out.String(), "endpoint-url: http://localhost:3001/api/gemini")
	require.Contains(t, out.String(), "policy: reject")
	require.Contains(t, out.String(), "transport: memory")
}

func TestConfigShow_InvalidSettings(t *testing.T) {
	s := testSettings(t)
	c, err := NewConfigShowCommand(s)
	require.NoError(t, err)

	s.Endpoint.URL = "ftp://example.com"
	err = c.RunIntoWriter(context.Background(), sectionValues(t, s), &bytes.Buffer{})
	require.Error(t, err)
}

func TestTailSettings(t *testing.T) {
	_, err := tailSettings(events.DefaultSettings(), &TailSettings{})
	require.ErrorContains(t, err, "--session")

	_, err = tailSettings(events.DefaultSettings(), &TailSettings{Session: "abc"})
	require.ErrorContains(t, err, "redis")

	for _, transport := range []string{"redis", "REDIS", " Redis "} {
		s := events.Settings{Transport: transport, Redis: redisstream.DefaultSettings()}
		got, err := tailSettings(s, &TailSettings{Session: "abc"})
		require.NoError(t, err, transport)
		require.Equal(t, events.TransportRedis, got.Transport)
		require.True(t, strings.HasPrefix(got.Redis.Group, "medchat-tail-"))
		require.Equal(t, "tail", got.Redis.Consumer)
	}

	s := events.DefaultSettings()
	s.Redis.Enabled = true
	_, err = tailSettings(s, &TailSettings{Session: "abc"})
	require.NoError(t, err)
}

func TestRunAsk_PrintsReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": "Rest and drink fluids."}`))
	}))
	t.Cleanup(srv.Close)

	s := testSettings(t)
	s.Endpoint.URL = srv.URL
	var out bytes.Buffer
	err := runAsk(context.Background(), s, &AskSettings{Question: []string{"sore", "throat"}}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "Rest and drink fluids.")

	err = runAsk(context.Background(), s, &AskSettings{Question: []string{" "}}, &out)
	require.Error(t, err)
}

func TestRunChat_LineMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	s := testSettings(t)
	s.Endpoint.URL = srv.URL
	var out bytes.Buffer
	err := runChat(context.Background(), s, false, strings.NewReader("my knee hurts\n"), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), conversation.NoResponseText)
}

func TestAddToRootCommand(t *testing.T) {
	root := &cobra.Command{Use: "medchat"}
	require.NoError(t, AddToRootCommand(root, testSettings(t)))

	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"chat", "ask", "theme", "config", "tail"}, names)

	chat, _, err := root.Find([]string{"chat"})
	require.NoError(t, err)
	require.Equal(t, "true", chat.Annotations[LogToFileAnnotation])
	require.NotNil(t, chat.Flags().Lookup("policy"))
	require.NotNil(t, chat.Flags().Lookup("redis-addr"))

	tail, _, err := root.Find([]string{"tail"})
	require.NoError(t, err)
	for _, name := range []string{"session", "raw", "drafts", "transport", "redis-group"} {
		require.NotNil(t, tail.Flags().Lookup(name), name)
	}

	ask, _, err := root.Find([]string{"ask"})
	require.NoError(t, err)
	require.NotNil(t, ask.Flags().ShorthandLookup("i"))
}

func TestPrintEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer

	printEvent(&buf, conversation.Event{
		Type:    conversation.EventMessageAppended,
		Message: &conversation.Message{Role: conversation.RoleUser, Text: "my knee hurts"},
		At:      at,
	}, false)
	printEvent(&buf, conversation.Event{Type: conversation.EventBusyChanged, Busy: true, At: at}, false)
	printEvent(&buf, conversation.Event{Type: conversation.EventDraftChanged, Draft: "x", At: at}, false)
	printEvent(&buf, conversation.Event{Type: conversation.EventDraftChanged, Draft: "y", At: at}, true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"[09:30:00] user: my knee hurts",
		"[09:30:00] -- waiting for reply",
		`[09:30:00] draft: "y"`,
	}, lines)
}
