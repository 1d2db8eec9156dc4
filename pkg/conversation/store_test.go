package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestNewStore_SeedsGreeting(t *testing.T) {
	s := NewStore("")

	state := s.Snapshot()
	require.Len(t, state.Messages, 1)
	require.Equal(t, RoleBot, state.Messages[0].Role)
	require.Equal(t, "Hello! I am your medical assistant. What symptoms are you experiencing today?", state.Messages[0].Text)
	require.Equal(t, "", state.Draft)
	require.False(t, state.Busy)
	require.NotEmpty(t, state.SessionID)
}

func TestNewStore_CustomGreetingAndSessionID(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore("hi there", WithSessionID("s-1"), WithClock(func() time.Time { return fixed }))

	require.Equal(t, "s-1", s.SessionID())
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "hi there", msgs[0].Text)
	require.Equal(t, fixed, msgs[0].CreatedAt)
}

func TestStore_AppendOnly(t *testing.T) {
	s := NewStore("")
	before := s.Messages()

	s.AppendMessage(RoleUser, "one")
	s.AppendMessage(RoleBot, "two")
	s.AppendMessage(RoleBot, "")

	after := s.Messages()
	require.Len(t, after, 4)
	require.Equal(t, before[0], after[0])
	require.Equal(t, "one", after[1].Text)
	require.Equal(t, "two", after[2].Text)
	require.Equal(t, "", after[3].Text)

	ids := map[string]bool{}
	for _, m := range after {
		require.False(t, ids[m.ID], "duplicate message id")
		ids[m.ID] = true
	}

	// copies handed out must not alias the transcript
	after[1].Text = "mutated"
	require.Equal(t, "one", s.Messages()[1].Text)
}

func TestStore_PublishesEvents(t *testing.T) {
	sink := &recordingSink{}
	s := NewStore("", WithSink(sink))

	s.SetDraft("abc")
	s.SetDraft("abc")
	s.SetBusy(true)
	s.SetBusy(true)
	msg := s.AppendMessage(RoleUser, "abc")
	s.SetBusy(false)

	require.Equal(t, []EventType{
		EventDraftChanged,
		EventBusyChanged,
		EventMessageAppended,
		EventBusyChanged,
	}, sink.Types())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	appended := sink.events[2]
	require.NotNil(t, appended.Message)
	require.Equal(t, msg, *appended.Message)
	require.Equal(t, s.SessionID(), appended.SessionID)
	require.True(t, appended.Busy)
	require.False(t, sink.events[3].Busy)
}

func TestState_LastMessage(t *testing.T) {
	_, ok := State{}.LastMessage()
	require.False(t, ok)

	s := NewStore("")
	s.AppendMessage(RoleUser, "last")
	last, ok := s.Snapshot().LastMessage()
	require.True(t, ok)
	require.Equal(t, "last", last.Text)
}
