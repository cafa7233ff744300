package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainScope-Agent/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDispatcherJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{channel: ChannelAudit}
	broken := &recordingNotifier{channel: ChannelWebhook, err: errors.New("down")}
	d := NewFanout(ok, nil, broken)

	err := d.Notify(context.Background(), Event{JobID: "job-1", Stage: "terminal"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel webhook")
	assert.Len(t, ok.events, 1)
	assert.Len(t, broken.events, 1)

	var nilDispatcher *FanoutDispatcher
	assert.NoError(t, nilDispatcher.Notify(context.Background(), Event{}))
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	event := Event{
		Code:       xerrors.CodeLLMFailure,
		Severity:   xerrors.SeverityWarning,
		JobID:      "job-7",
		Stage:      "terminal",
		Attempts:   3,
		MaxRetries: 3,
		OccurredAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(context.Background(), event))
	assert.Equal(t, "job-7", got.JobID)
	assert.Equal(t, xerrors.CodeLLMFailure, got.Code)
	assert.Equal(t, 3, got.Attempts)
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Notify(context.Background(), Event{JobID: "job-8"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Nil(t, NewWebhookNotifier(""))
}
