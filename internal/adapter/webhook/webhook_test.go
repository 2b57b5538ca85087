package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/adapter/webhook"
	"github.com/taskgrid/dispatch/internal/model"
)

func TestWebhook_PostsHeadersAndPayload(t *testing.T) {
	var gotType, gotWorker, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("X-Job-Type")
		gotWorker = r.Header.Get("X-Worker-ID")
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := webhook.New(srv.Client(), srv.URL, model.JobTypeSMS)
	ctx := webhook.ContextWithWorkerID(context.Background(), 7)

	_, err := a.Execute(ctx, json.RawMessage(`{"to":"+1555"}`))
	require.NoError(t, err)
	require.Equal(t, "SMS", gotType)
	require.Equal(t, "7", gotWorker)
	require.JSONEq(t, `{"to":"+1555"}`, gotBody)
}

func TestWebhook_ForwardsProviderResponseBodyAsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a := webhook.New(srv.Client(), srv.URL, model.JobTypeSMS)
	result, err := a.Execute(context.Background(), json.RawMessage(`{"to":"+1555"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(result))
}

func TestWebhook_EmptyBodyFallsBackToStatusObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := webhook.New(srv.Client(), srv.URL, model.JobTypeNotification)
	result, err := a.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":200}`, string(result))
}

func TestWebhook_NonSuccessStatusIsAdapterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := webhook.New(srv.Client(), srv.URL, model.JobTypeNotification)
	_, err := a.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestWebhook_NoURLConfigured(t *testing.T) {
	a := webhook.New(nil, "", model.JobTypeSMS)
	_, err := a.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
}
