package endpoint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/medchat/pkg/conversation"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL + "/api/gemini")
	require.NoError(t, err)
	return c
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	var e *Error
	require.True(t, errors.As(err, &e), "expected *endpoint.Error, got %T", err)
	require.Equal(t, kind, e.Kind)
	return e
}

func TestClient_Complete_RequestShape(t *testing.T) {
	var gotMethod, gotPath, gotContentType, gotAuth string
	var gotBody map[string]any

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"response": "Try rest and hydration."}`))
	})

	reply, err := c.Complete(context.Background(), "Question: I have a headache")
	require.NoError(t, err)
	require.Equal(t, "Try rest and hydration.", reply)

	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "/api/gemini", gotPath)
	require.Equal(t, "application/json", gotContentType)
	require.Empty(t, gotAuth)
	require.Equal(t, map[string]any{"prompt": "Question: I have a headache"}, gotBody)
}

func TestClient_Complete_NoResponseText(t *testing.T) {
	bodies := map[string]string{
		"empty object":     `{}`,
		"array":            `[]`,
		"string":           `"hi"`,
		"number response":  `{"response": 7}`,
		"null response":    `{"response": null}`,
		"empty response":   `{"response": ""}`,
		"nested response":  `{"response": {"text": "rest"}}`,
		"other field only": `{"answer": "rest"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			reply, err := c.Complete(context.Background(), "cough")
			require.NoError(t, err)
			require.Equal(t, "", reply)
		})
	}
}

func TestClient_Complete_NullBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	_, err := c.Complete(context.Background(), "cough")
	requireKind(t, err, KindDecode)
}

func TestClient_Complete_NonSuccessStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"response": "should not be used"}`))
	})

	_, err := c.Complete(context.Background(), "x")
	e := requireKind(t, err, KindStatus)
	require.Equal(t, http.StatusBadGateway, e.StatusCode)
	require.Contains(t, e.Error(), "status 502")
}

func TestClient_Complete_MalformedBody(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})

	_, err := c.Complete(context.Background(), "x")
	requireKind(t, err, KindDecode)
}

func TestClient_Complete_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "x")
	requireKind(t, err, KindNetwork)
}

func TestClient_Complete_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "x")
	requireKind(t, err, KindNetwork)
}

func TestNewClient_Validation(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	require.Equal(t, DefaultURL, c.URL())

	_, err = NewClient("ftp://example.com/x")
	require.Error(t, err)

	_, err = NewClient("http://")
	require.Error(t, err)

	_, err = NewClient("://bad")
	require.Error(t, err)
}

func TestClient_DrivesController(t *testing.T) {
	var prompt string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Prompt
		_ = json.NewEncoder(w).Encode(Response{Response: "Drink water."})
	})

	store := conversation.NewStore("")
	ctrl := conversation.NewController(store, c)
	store.SetDraft("I have a headache")

	outcome, err := ctrl.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, conversation.OutcomeFulfilled, outcome)
	require.Equal(t, conversation.DefaultPreamble+"I have a headache", prompt)

	msgs := store.Messages()
	require.Equal(t, "Drink water.", msgs[len(msgs)-1].Text)
}

func TestClient_DrivesController_BodyShapes(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{}`, conversation.NoResponseText},
		{`[]`, conversation.NoResponseText},
		{`"hi"`, conversation.NoResponseText},
		{`{"response": 7}`, conversation.NoResponseText},
		{`null`, conversation.ConnectionErrorText},
		{`not json`, conversation.ConnectionErrorText},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})

			store := conversation.NewStore("")
			ctrl := conversation.NewController(store, c)
			store.SetDraft("sore throat")
			_, err := ctrl.Submit(context.Background())
			require.NoError(t, err)

			msgs := store.Messages()
			require.Equal(t, tc.want, msgs[len(msgs)-1].Text)
		})
	}
}
