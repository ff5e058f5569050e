package rspamd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Check(t *testing.T) {
	var gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkv2", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "message/rfc822", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = w.Write([]byte(`{"score": 12.5, "required_score": 15, "action": "add header",
			"symbols": {"TG_FLOOD": {"score": 3.5, "metric_score": 3.5}, "USER_REPUTATION_BAD": {"name": "USER_REPUTATION_BAD", "score": 0}}}`))
	}))
	defer ts.Close()

	c := NewClient(Params{URL: ts.URL, LocalIP: "10.0.0.1"})
	reply, err := c.Check(context.Background(), Message{ID: 7, ChatID: -100, UserID: 42, UserName: "john", Text: "hello\nworld"})
	require.NoError(t, err)

	assert.InDelta(t, 12.5, reply.Score, 0.001)
	assert.InDelta(t, 15.0, reply.RequiredScore, 0.001)
	assert.Equal(t, "add header", reply.Action)
	assert.True(t, reply.Has("TG_FLOOD"))
	assert.True(t, reply.Has("USER_REPUTATION_BAD"))
	assert.False(t, reply.Has("TG_CAPS"))
	assert.Equal(t, "TG_FLOOD", reply.Symbols["TG_FLOOD"].Name)
	assert.Equal(t, []string{"TG_FLOOD"}, reply.SymbolNames())

	assert.Contains(t, gotBody, "From: telegramjohn@example.com\r\n")
	assert.Contains(t, gotBody, "X-Telegram-User: 42\r\n")
	assert.Contains(t, gotBody, "Received: from 10.0.0.1 (10.0.0.1)")
	assert.True(t, strings.HasSuffix(gotBody, "\r\n\r\nhello\r\nworld\r\n"))
}

func TestClient_CheckErrors(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("oops"))
		}))
		defer ts.Close()
		c := NewClient(Params{URL: ts.URL})
		_, err := c.Check(context.Background(), Message{ID: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 500: oops")
	})

	t.Run("bad json", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer ts.Close()
		c := NewClient(Params{URL: ts.URL})
		_, err := c.Check(context.Background(), Message{ID: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "can't decode rspamd reply")
	})

	t.Run("retries transport errors", func(t *testing.T) {
		c := NewClient(Params{URL: "http://127.0.0.1:1", Retries: 2, Timeout: 100 * time.Millisecond})
		_, err := c.Check(context.Background(), Message{ID: 1})
		require.Error(t, err)
	})
}

func TestClient_Learn(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "secret", r.Header.Get("Password"))
		assert.Equal(t, "message/rfc822", r.Header.Get("Content-Type"))
		switch r.URL.Path {
		case "/learnspam":
			_, _ = w.Write([]byte(`{"success": true}`))
		case "/learnham":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "<7.1.1@example.com> has been already learned as ham, ignore it"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := NewClient(Params{URL: ts.URL, Password: "secret"})
	require.NoError(t, c.LearnSpam(context.Background(), Message{ID: 1, Text: "buy now"}))
	require.NoError(t, c.LearnHam(context.Background(), Message{ID: 1, Text: "hi all"}), "already learned is not an error")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	c.URL = ts.URL + "/nothing"
	err := c.LearnSpam(context.Background(), Message{ID: 1, Text: "buy now"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learnspam failed")
}

func TestClient_FuzzyAdd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fuzzyadd", r.URL.Path)
		assert.Equal(t, "pwd", r.Header.Get("Password"))
		assert.Equal(t, "1", r.Header.Get("Flag"))
		assert.Equal(t, "10", r.Header.Get("Weight"))
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer ts.Close()

	c := NewClient(Params{URL: ts.URL, Password: "pwd", FuzzyFlag: 1, FuzzyWeight: 10})
	err := c.FuzzyAdd(context.Background(), "one two three")
	assert.ErrorIs(t, err, ErrTooShort)

	err = c.FuzzyAdd(context.Background(), "one two three four five six seven eight")
	assert.NoError(t, err)
}

func TestScanURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:11333", scanURL("http://127.0.0.1:11334"))
	assert.Equal(t, "http://rspamd:11333/", scanURL("http://rspamd:11334/"))
	assert.Equal(t, "http://127.0.0.1:8080", scanURL("http://127.0.0.1:8080"))
}

func TestEmail(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	res := string(Email(Message{ID: 5, ChatID: -1001, ChatTitle: "My Chat!", UserID: 9, Text: "a\r\nb\nc"}, "1.2.3.4", now))
	assert.Contains(t, res, "Date: Wed, 01 May 2024 10:00:00 +0000\r\n")
	assert.Contains(t, res, "From: telegram9@example.com\r\n")
	assert.Contains(t, res, "To: telegramMyChat@example.com\r\n")
	assert.Contains(t, res, "Message-ID: <9.-1001.5@example.com>\r\n")
	assert.Contains(t, res, "Subject: Telegram message\r\n")
	assert.True(t, strings.HasSuffix(res, "\r\n\r\na\r\nb\r\nc\r\n"))
}
