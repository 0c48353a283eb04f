package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/youngsu5582/logsift/internal/models"
)

func TestSlackNotifyPostsBlocks(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSlack(server.URL, "ap-northeast-2")
	if err := s.Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("notify: %v", err)
	}

	var payload struct {
		Blocks []json.RawMessage `json:"blocks"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(payload.Blocks) == 0 {
		t.Fatal("payload has no blocks")
	}

	text := string(body)
	for _, want := range []string{
		"CloudWatch errors (2 need attention)",
		":new: ",
		"NullPointerException: user {id} not found",
		"Ignored: 1 patterns, 5 records",
		"$252Fecs$252Fapp$252Fweb",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("payload missing %q:\n%s", want, text)
		}
	}
}

func TestSlackNotifySkipsEmptyReport(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	s := NewSlack(server.URL, "ap-northeast-2")
	if err := s.Notify(context.Background(), models.Report{Window: models.LastHours(1)}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if called {
		t.Fatal("empty report must not post anything")
	}
}

func TestSlackNotifyRetriesOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSlack(server.URL, "")
	if err := s.Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestSlackNotifyDoesNotRetryClientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := NewSlack(server.URL, "")
	if err := s.Notify(context.Background(), testReport()); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
	if attempts != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", attempts)
	}
}

func TestSlackDisplayKeyTruncationStaysValidUTF8(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// The 60-byte display cut lands inside a multi-byte rune.
	report := models.Report{
		Window:       models.LastHours(1),
		TotalRecords: 1,
		Attention: []models.ClassifiedGroup{
			testGroup("UnicodeError: "+strings.Repeat("한", 30), 1, "/ecs/app/web", "2026-08-30 14:00:00"),
		},
	}

	s := NewSlack(server.URL, "")
	if err := s.Notify(context.Background(), report); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if strings.Contains(string(body), "�") {
		t.Fatalf("payload contains a replacement character:\n%s", body)
	}
}

func TestSlackConsoleLinkEmptyWithoutRegion(t *testing.T) {
	s := NewSlack("https://hooks.example.com", "")
	if link := s.consoleLink(testReport()); link != "" {
		t.Fatalf("expected no link without a region, got %q", link)
	}
}
