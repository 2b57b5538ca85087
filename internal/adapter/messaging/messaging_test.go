package messaging_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskgrid/dispatch/internal/adapter/messaging"
)

func statusHandler(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			json.NewEncoder(w).Encode(map[string]string{"status": status})
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func TestMessaging_SendSuccess(t *testing.T) {
	srv := httptest.NewServer(statusHandler("ready"))
	defer srv.Close()

	a := messaging.New(srv.Client(), srv.URL, 0, "", "", nil)
	defer a.Close()

	res, err := a.Send(context.Background(), messaging.SendRequest{Number: "+15551234567", Message: "hi"})
	require.NoError(t, err)
	require.False(t, res.UsedSecondary)
}

func TestMessaging_FallsBackToSecondaryOnPrimaryFailure(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer secondary.Close()

	a := messaging.New(primary.Client(), primary.URL, 0, secondary.URL, "tok", nil)
	defer a.Close()

	res, err := a.Send(context.Background(), messaging.SendRequest{Number: "+15551234567", Message: "hi"})
	require.NoError(t, err)
	require.True(t, res.UsedSecondary)
}

func TestMessaging_BothFail(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer secondary.Close()

	a := messaging.New(primary.Client(), primary.URL, 0, secondary.URL, "tok", nil)
	defer a.Close()

	_, err := a.Send(context.Background(), messaging.SendRequest{Number: "+15551234567", Message: "hi"})
	require.Error(t, err)
}

func TestMessaging_ValidatesTarget(t *testing.T) {
	a := messaging.New(http.DefaultClient, "http://example.com", 0, "", "", nil)
	defer a.Close()

	_, err := a.Send(context.Background(), messaging.SendRequest{Message: "hi"})
	require.Error(t, err)
}

func TestMessaging_SerializesPerEndpoint(t *testing.T) {
	var mu sync.Mutex
	var order []int
	var inflight int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
			return
		}
		mu.Lock()
		inflight++
		if inflight > 1 {
			t.Errorf("concurrent sends to same endpoint: inflight=%d", inflight)
		}
		mu.Unlock()

		mu.Lock()
		inflight--
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := messaging.New(srv.Client(), srv.URL, 0, "", "", nil)
	defer a.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := a.Send(context.Background(), messaging.SendRequest{Number: "+1", Message: "m"})
			require.NoError(t, err)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	require.Len(t, order, 10)
}
