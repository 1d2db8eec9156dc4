package chatrunner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/medchat/pkg/conversation"
	"github.com/go-go-golems/medchat/pkg/events"
	"github.com/go-go-golems/medchat/pkg/render"
	"github.com/go-go-golems/medchat/pkg/theme"
)

type scriptedCompleter struct {
	mu      sync.Mutex
	prompts []string
	replies map[string]string
	fail    bool
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.fail {
		return "", errors.New("dial tcp: connection refused")
	}
	for k, v := range s.replies {
		if strings.HasSuffix(prompt, k) {
			return v, nil
		}
	}
	return "", nil
}

func newController(c conversation.Completer, opts ...conversation.StoreOption) *conversation.Controller {
	store := conversation.NewStore("", opts...)
	return conversation.NewController(store, c, conversation.WithPreamble("P:"))
}

func TestBlocking_PrintsReply(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{"headache": "Rest in a **dark** room."}}
	var out bytes.Buffer
	cs, err := NewChatBuilder().
		WithController(newController(c)).
		WithMode(RunModeBlocking).
		WithQuestion("headache").
		WithRenderer(render.NewPlain()).
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)

	require.NoError(t, cs.Run())
	require.Equal(t, "Rest in a dark room.\n", out.String())
	require.Equal(t, []string{"P:headache"}, c.prompts)
}

func TestBlocking_ConnectionErrorFails(t *testing.T) {
	c := &scriptedCompleter{fail: true}
	var out bytes.Buffer
	cs, err := NewChatBuilder().
		WithController(newController(c)).
		WithMode(RunModeBlocking).
		WithQuestion("fever").
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)

	err = cs.Run()
	require.ErrorIs(t, err, ErrExchangeFailed)
	require.Equal(t, conversation.ConnectionErrorText+"\n", out.String())
}

func TestBlocking_MissingResponseField(t *testing.T) {
	c := &scriptedCompleter{}
	var out bytes.Buffer
	cs, err := NewChatBuilder().
		WithController(newController(c)).
		WithMode(RunModeBlocking).
		WithQuestion("rash").
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)

	require.NoError(t, cs.Run())
	require.Equal(t, conversation.NoResponseText+"\n", out.String())
}

func TestLine_ConversationLoop(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{
		"fever":  "Measure your temperature.",
		"chills": "Keep warm.",
	}}
	controller := newController(c)
	var out bytes.Buffer
	cs, err := NewChatBuilder().
		WithController(controller).
		WithMode(RunModeLine).
		WithInput(strings.NewReader("fever\n\n   \nchills\n/quit\nignored\n")).
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())

	got := out.String()
	require.True(t, strings.HasPrefix(got, conversation.DefaultGreeting+"\n"))
	require.Contains(t, got, "Measure your temperature.\n")
	require.Contains(t, got, "Keep warm.\n")
	require.NotContains(t, got, "ignored")
	require.Equal(t, []string{"P:fever", "P:chills"}, c.prompts)

	msgs := controller.Store().Messages()
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		want := conversation.RoleBot
		if i%2 == 1 {
			want = conversation.RoleUser
		}
		require.Equal(t, want, m.Role)
	}
}

func TestLine_EOFEndsLoop(t *testing.T) {
	c := &scriptedCompleter{fail: true}
	var out bytes.Buffer
	cs, err := NewChatBuilder().
		WithController(newController(c)).
		WithMode(RunModeLine).
		WithInput(strings.NewReader("cough")).
		WithOutputWriter(&out).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())
	require.Contains(t, out.String(), conversation.ConnectionErrorText)
}

type fakeTTY struct {
	io.Reader
	bytes.Buffer
}

func (f *fakeTTY) Read(p []byte) (int, error)  { return f.Reader.Read(p) }
func (f *fakeTTY) Write(p []byte) (int, error) { return f.Buffer.Write(p) }

func newThemes(t *testing.T) *theme.Manager {
	t.Helper()
	m, err := theme.Load(context.Background(), theme.NewMemoryStore())
	require.NoError(t, err)
	return m
}

func newBus(t *testing.T) *events.Bus {
	t.Helper()
	bus, err := events.NewBus(events.DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestInteractive_DeclineContinuation(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{"dizzy": "Sit down."}}
	tty := &fakeTTY{Reader: strings.NewReader("n\n")}
	var out bytes.Buffer
	cs, err := NewChatBuilder().
		WithController(newController(c)).
		WithThemes(newThemes(t)).
		WithBus(newBus(t)).
		WithMode(RunModeInteractive).
		WithQuestion("dizzy").
		WithOutputWriter(&out).
		WithTTY(tty, func() bool { return true }).
		Build()
	require.NoError(t, err)

	require.NoError(t, cs.Run())
	require.Equal(t, "Sit down.\n", out.String())
	require.Contains(t, tty.String(), "Do you want to continue in chat mode?")
}

func TestInteractive_NoTTYSkipsPrompt(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{"dizzy": "Sit down."}}
	tty := &fakeTTY{Reader: strings.NewReader("")}
	var out bytes.Buffer
	cs, err := NewChatBuilder().
		WithController(newController(c)).
		WithThemes(newThemes(t)).
		WithBus(newBus(t)).
		WithMode(RunModeInteractive).
		WithQuestion("dizzy").
		WithOutputWriter(&out).
		WithTTY(tty, func() bool { return false }).
		Build()
	require.NoError(t, err)
	require.NoError(t, cs.Run())
	require.Empty(t, tty.String())
}

func TestAskForChatContinuation(t *testing.T) {
	cases := map[string]bool{"y\n": true, "\n": true, "N\n": false}
	for in, want := range cases {
		got, err := askForChatContinuation(&fakeTTY{Reader: strings.NewReader(in)})
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestBuild_Validation(t *testing.T) {
	c := &scriptedCompleter{}

	_, err := NewChatBuilder().WithMode(RunModeLine).Build()
	require.Error(t, err)

	_, err = NewChatBuilder().WithController(newController(c)).WithMode("stream").Build()
	require.Error(t, err)

	_, err = NewChatBuilder().WithController(newController(c)).WithMode(RunModeChat).Build()
	require.Error(t, err, "chat mode needs a bus")

	_, err = NewChatBuilder().WithController(newController(c)).WithMode(RunModeBlocking).Build()
	require.Error(t, err, "blocking mode needs a question")

	//nolint:staticcheck // nil context is the case under test
	_, err = NewChatBuilder().WithContext(nil).WithController(newController(c)).Build()
	require.Error(t, err)

	_, err = NewChatBuilder().WithOutputWriter(nil).Build()
	require.Error(t, err)
}

func TestChat_HeadlessProgramStopsWithContext(t *testing.T) {
	bus := newBus(t)
	c := &scriptedCompleter{}
	sessionID := "headless"
	sink := events.NewSink(bus.Publisher, sessionID, 0)
	defer func() { _ = sink.Close() }()
	controller := newController(c, conversation.WithSessionID(sessionID), conversation.WithSink(sink))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cs, err := NewChatBuilder().
		WithContext(ctx).
		WithController(controller).
		WithThemes(newThemes(t)).
		WithBus(bus).
		WithRenderer(render.NewPlain()).
		WithAltScreen(false).
		WithProgramOptions(tea.WithInput(nil), tea.WithOutput(io.Discard)).
		Build()
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		controller.Store().SetDraft("typing while the UI runs")
	}()

	require.NoError(t, cs.Run())
}
