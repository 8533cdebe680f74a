package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/surebot/internal/domain"
)

type captureSender struct {
	name string
	msgs []Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func failedArb() *domain.Arb {
	return &domain.Arb{
		ID: "arb-1", EventKey: "evt-1", Status: domain.ArbFailed, Cause: "leg_failure",
		ProfitPercent: 3.73, TotalStake: 1000,
		Legs: []domain.Leg{
			{Bookmaker: "alpha", Position: domain.PositionOver, Odds: 2.10, Stake: 500, Status: domain.LegPlaced},
			{Bookmaker: "beta", Position: domain.PositionUnder, Odds: 2.05, Stake: 500, Status: domain.LegFailed, FailureReason: "odds changed"},
		},
	}
}

func TestNotifierSendsTerminalArbs(t *testing.T) {
	s := &captureSender{name: "a"}
	n := NewNotifier([]Sender{s}, nil, nil)

	require.NoError(t, n.OnArbStatus(context.Background(), failedArb()))
	require.Len(t, s.msgs, 1)
	msg := s.msgs[0]
	assert.Equal(t, "Arb arb-1 FAILED", msg.Title)
	assert.Equal(t, LevelError, msg.Level)
	assert.Contains(t, msg.Body, "cause leg_failure")
	assert.Contains(t, msg.Body, "beta UNDER @ 2.05 x 500: FAILED (odds changed)")

	require.NoError(t, n.OnArbStatus(context.Background(), &domain.Arb{ID: "x", Status: domain.ArbInProgress}))
	assert.Len(t, s.msgs, 1)
}

func TestNotifierStatusFilter(t *testing.T) {
	s := &captureSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{" completed "}, nil)

	require.NoError(t, n.OnArbStatus(context.Background(), failedArb()))
	assert.Empty(t, s.msgs)

	done := failedArb()
	done.Status = domain.ArbCompleted
	require.NoError(t, n.OnArbStatus(context.Background(), done))
	require.Len(t, s.msgs, 1)
	assert.Equal(t, LevelInfo, s.msgs[0].Level)
}

func TestNotifierKeepsGoingAfterSenderFailure(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("down")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, nil)

	err := n.OnArbStatus(context.Background(), failedArb())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.msgs, 1)
}

func TestDiscordSender(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), Message{Title: "t", Body: "b", Level: LevelWarn}))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "t", got.Embeds[0].Title)
	assert.Equal(t, 0xf1c40f, got.Embeds[0].Color)
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
