package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewEnv(t *testing.T) {
	env := NewEnv(nil)
	if env.Bot == nil || env.Sessions == nil || env.Store == nil || env.Backend == nil {
		t.Fatalf("incomplete env %+v", env)
	}

	reply := env.Bot.Chat(context.Background(), "hello", "s1", "")
	if !reply.Success || reply.Response == "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if env.Sessions.Get("s1") == nil {
		t.Error("expected the session to be cached")
	}
	rec, err := env.Store.LoadSession(context.Background(), "s1")
	if err != nil || rec == nil {
		t.Errorf("expected the session to be persisted, got %v, %v", rec, err)
	}
}

func TestBackendOrderDetailDefaultsToNotFound(t *testing.T) {
	b := &Backend{}
	if got := b.OrderDetail(context.Background(), "a1b2c3d4", "9812345678"); got.Error == "" {
		t.Errorf("expected a not-found error, got %+v", got)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("expected a JSON content type, got %q", req.Header.Get("Content-Type"))
	}
	var body map[string]string
	buf := make([]byte, req.ContentLength)
	if _, err := req.Body.Read(buf); err != nil {
		t.Fatalf("read body: %v", err)
	}
	MustUnmarshalJSON(t, buf, &body)
	if body["message"] != "hi" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestAssertJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteString(`{"status":"ok","result":1}`)
	got := AssertJSONResponse(t, rr, "ok")
	if got["result"].(float64) != 1 {
		t.Errorf("unexpected decoded body %v", got)
	}
}
