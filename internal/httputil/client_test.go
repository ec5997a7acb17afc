package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)

	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
	if NewStandardClient(nil).Client != http.DefaultClient {
		t.Error("expected nil to fall back to http.DefaultClient")
	}
}

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "image/jpeg", []byte("first"))
	mock.AddResponse(http.StatusUnauthorized, "", nil)

	req := httptest.NewRequest(http.MethodGet, "http://cam.local/video", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "first" {
		t.Errorf("got body %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("got content type %q", ct)
	}

	resp, err = mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", resp.StatusCode)
	}

	// queue exhausted falls back to an empty 200
	resp, err = mock.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("default response = %v, %v", resp, err)
	}
	if mock.RequestCount() != 3 {
		t.Errorf("got %d requests, want 3", mock.RequestCount())
	}
	if mock.GetRequest(0) != req || mock.GetRequest(5) != nil {
		t.Error("GetRequest returned the wrong request")
	}
}

func TestMockHTTPClient_Errors(t *testing.T) {
	boom := errors.New("boom")
	mock := NewMockHTTPClient()
	mock.AddErrorResponse(boom)
	req := httptest.NewRequest(http.MethodGet, "http://cam.local/", nil)

	if _, err := mock.Do(req); !errors.Is(err, boom) {
		t.Errorf("got %v, want queued error", err)
	}

	mock.DefaultError = boom
	if _, err := mock.Do(req); !errors.Is(err, boom) {
		t.Errorf("got %v, want default error", err)
	}

	mock.Reset()
	if mock.RequestCount() != 0 {
		t.Error("Reset kept requests")
	}
	if _, err := mock.Do(req); err != nil {
		t.Errorf("after Reset: %v", err)
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	called := false
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusTeapot, Body: http.NoBody}, nil
	}
	resp, err := mock.Do(httptest.NewRequest(http.MethodGet, "http://cam.local/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !called || resp.StatusCode != http.StatusTeapot {
		t.Errorf("DoFunc not used: called=%v status=%d", called, resp.StatusCode)
	}
}

func TestStreamingClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewStreamingClient(time.Second)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("got body %q", body)
	}
	if client.Client.Timeout != 0 {
		t.Error("streaming client must not bound the whole request")
	}
}
