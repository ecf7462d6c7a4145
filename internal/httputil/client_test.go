package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)

	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
	if NewStandardClient(nil).Client != http.DefaultClient {
		t.Error("expected nil to wrap http.DefaultClient")
	}
}

func TestGetBody_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.RawQuery != "" {
			t.Errorf("expected no query, got %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("expected no Authorization header")
		}
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	body, err := GetBody(context.Background(), NewStandardClient(nil), server.URL+"/api/latest/status")
	if err != nil {
		t.Fatalf("GetBody failed: %v", err)
	}
	if string(body) != `{"status": "ok"}` {
		t.Errorf("got body %q", string(body))
	}
}

func TestGetBody_NonSuccessStatus(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusServiceUnavailable, "down")

	_, err := GetBody(context.Background(), mock, "http://backend/api/latest/code")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want %d", se.StatusCode, http.StatusServiceUnavailable)
	}
	if !strings.Contains(se.Error(), "/api/latest/code") {
		t.Errorf("expected URL in error, got %q", se.Error())
	}
}

func TestGetBody_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := GetBody(ctx, NewStandardClient(nil), server.URL); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMockHTTPClient_QueueThenRepeatLast(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "first")
	mock.AddResponse(http.StatusAccepted, "second")

	for i, want := range []string{"first", "second", "second"} {
		req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
		resp, err := mock.Do(req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != want {
			t.Errorf("request %d: got %q, want %q", i, string(body), want)
		}
	}
	if mock.RequestCount() != 3 {
		t.Errorf("got %d requests, want 3", mock.RequestCount())
	}
}

func TestMockHTTPClient_Errors(t *testing.T) {
	mock := NewMockHTTPClient()
	expectedErr := errors.New("connection refused")
	mock.AddErrorResponse(expectedErr)

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if _, err := mock.Do(req); err != expectedErr {
		t.Errorf("got error %v, want %v", err, expectedErr)
	}

	netErr := errors.New("network error")
	mock.SetDefaultError(netErr)
	if _, err := mock.Do(req); err != netErr {
		t.Errorf("got error %v, want %v", err, netErr)
	}
}

func TestMockHTTPClient_DoFuncDoesNotHoldLock(t *testing.T) {
	mock := NewMockHTTPClient()
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		entered <- struct{}{}
		<-release
		return NewJSONResponse(req, http.StatusOK, "{}"), nil
	}

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
			resp, err := mock.Do(req)
			if err == nil {
				resp.Body.Close()
			}
			done <- struct{}{}
		}()
	}

	// Both requests must be able to enter DoFunc concurrently.
	<-entered
	<-entered
	close(release)
	<-done
	<-done

	if mock.GetRequest(1) == nil {
		t.Error("expected second request to be recorded")
	}
	if mock.GetRequest(-1) != nil {
		t.Error("GetRequest with negative index should return nil")
	}
}

func TestMockHTTPClient_Reset(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "test")
	mock.DefaultError = errors.New("error")
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	mock.Do(req)
	mock.Reset()

	if mock.RequestCount() != 0 {
		t.Error("Reset should clear requests")
	}
	if len(mock.Responses) != 0 {
		t.Error("Reset should clear responses")
	}
	if mock.DefaultError != nil {
		t.Error("Reset should clear DefaultError")
	}
}
