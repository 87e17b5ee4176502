package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.events {
		out = append(out, e.Name)
	}
	return out
}

func TestDispatcherFansOutInOrder(t *testing.T) {
	t.Parallel()

	a, b := &recordingSink{}, &recordingSink{}
	d := NewDispatcher(nil, a, b)

	d.Notify(ProgramStart, LevelInfo, nil)
	d.Notify(LoginSuccess, LevelSuccess, Fields{"user_id": "tester"})
	d.Close()

	assert.Equal(t, []string{ProgramStart, LoginSuccess}, a.names())
	assert.Equal(t, []string{ProgramStart, LoginSuccess}, b.names())
	assert.NotEmpty(t, a.events[0].ID)
	assert.Equal(t, "tester", a.events[1].Fields["user_id"])
}

func TestDispatcherIgnoresSinkErrors(t *testing.T) {
	t.Parallel()

	failing := &recordingSink{err: errors.New("webhook down")}
	ok := &recordingSink{}
	d := NewDispatcher(nil, failing, ok)

	d.Notify(PurchaseFailure, LevelError, nil)
	d.Close()

	assert.Len(t, ok.names(), 1)
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	t.Parallel()

	s := &recordingSink{}
	d := NewDispatcher(nil, s)
	d.Close()
	d.Close()

	d.Notify(RunAborted, LevelCritical, nil)
	assert.Empty(t, s.names())
}

func TestDiscordSinkPostsEmbed(t *testing.T) {
	t.Parallel()

	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewDiscordSink(srv.URL)
	evt := Event{
		Name:   RechargeSuccess,
		Level:  LevelSuccess,
		Fields: Fields{"amount": 50000, "balance": 53000},
		Time:   time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Send(context.Background(), evt))

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "✅ 충전 완료", embed.Title)
	assert.Equal(t, 0x2ecc71, embed.Color)
	assert.Equal(t, "2026-01-03T09:00:00Z", embed.Timestamp)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "amount", embed.Fields[0].Name)
	assert.Equal(t, "50000", embed.Fields[0].Value)
}

func TestDiscordSinkReportsHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSink(srv.URL).Send(context.Background(), Event{Name: "custom", Level: Level("other")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestDiscordMessageUnknownEvent(t *testing.T) {
	t.Parallel()

	msg := discordMessage(Event{Name: "custom", Level: Level("other")})
	assert.Equal(t, 0x95a5a6, msg.Embeds[0].Color)
	assert.Contains(t, msg.Embeds[0].Title, "custom")
}
