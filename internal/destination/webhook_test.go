package destination

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/settings"
)

func TestPublishWebhook(t *testing.T) {
	var gotMethod, gotContentType, gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dest := models.Destination{
		ID:      "d1",
		Name:    "team hook",
		Type:    models.DestinationWebhook,
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	}

	id, err := publishWebhook(context.Background(), dest, "cpu is high", nil)
	if err != nil {
		t.Fatalf("publishWebhook: %v", err)
	}
	if id != "ok" {
		t.Errorf("message id = %q", id)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("authorization = %q", gotAuth)
	}

	var payload map[string]string
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["message"] != "cpu is high" {
		t.Errorf("payload = %v", payload)
	}
}

func TestPublishWebhookPreservesJSONMessage(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	dest := models.Destination{Type: models.DestinationWebhook, URL: server.URL}
	id, err := publishWebhook(context.Background(), dest, `{"custom":"payload"}`, nil)
	if err != nil {
		t.Fatalf("publishWebhook: %v", err)
	}
	if string(gotBody) != `{"custom":"payload"}` {
		t.Errorf("body = %s", gotBody)
	}
	// Empty response body falls back to the status code.
	if id != "204" {
		t.Errorf("message id = %q", id)
	}
}

func TestWebhookPayloadShapes(t *testing.T) {
	tests := []struct {
		destType models.DestinationType
		message  string
		wantKey  string
	}{
		{models.DestinationSlack, "hello", "text"},
		{models.DestinationChime, "hello", "Content"},
		{models.DestinationWebhook, "hello", "message"},
	}

	for _, tc := range tests {
		raw, err := webhookPayload(tc.destType, tc.message)
		if err != nil {
			t.Fatalf("%s: %v", tc.destType, err)
		}
		var payload map[string]string
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("%s: %v", tc.destType, err)
		}
		if payload[tc.wantKey] != "hello" {
			t.Errorf("%s payload = %v, want key %q", tc.destType, payload, tc.wantKey)
		}
	}
}

func TestPublishWebhookNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "go away", http.StatusForbidden)
	}))
	defer server.Close()

	dest := models.Destination{Name: "hook", Type: models.DestinationWebhook, URL: server.URL}
	if _, err := publishWebhook(context.Background(), dest, "x", nil); err == nil {
		t.Fatal("expected an error on 403")
	}
}

func TestPublishWebhookDeniedHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("denied host must not be contacted")
	}))
	defer server.Close()

	parsed, _ := url.Parse(server.URL)
	dest := models.Destination{Type: models.DestinationWebhook, URL: server.URL}

	_, err := publishWebhook(context.Background(), dest, "x", []string{parsed.Hostname()})
	var denied *HostDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected HostDeniedError, got %v", err)
	}
	if denied.Host != parsed.Hostname() {
		t.Errorf("denied host = %q", denied.Host)
	}
}

func TestHostDeniedPatterns(t *testing.T) {
	denyList := []string{"*.internal", "10.0.*", "localhost"}

	tests := []struct {
		host string
		want bool
	}{
		{"metadata.internal", true},
		{"10.0.1.5", true},
		{"localhost", true},
		{"hooks.example.com", false},
		{"internal", false},
	}
	for _, tc := range tests {
		if got := hostDenied(tc.host, denyList); got != tc.want {
			t.Errorf("hostDenied(%q) = %v, want %v", tc.host, got, tc.want)
		}
	}
}

func TestRegistryGetAndMutate(t *testing.T) {
	r := NewRegistry()
	r.Load([]models.Destination{{ID: "d1", Name: "one"}, {ID: "d2", Name: "two"}})

	if _, err := r.Get("d1"); err != nil {
		t.Fatalf("Get d1: %v", err)
	}

	r.Delete("d1")
	if _, err := r.Get("d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	r.Upsert(models.Destination{ID: "d3", Name: "three"})
	if d, err := r.Get("d3"); err != nil || d.Name != "three" {
		t.Errorf("Get d3 = %+v, %v", d, err)
	}
}

func TestRegistryPublishUnsupportedType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Publish(context.Background(), models.Destination{Type: "pager"}, "s", "m", settings.AWSSettings{}, nil)
	if err == nil {
		t.Fatal("expected an error for an unsupported type")
	}
}
