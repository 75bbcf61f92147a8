package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fleethub/internal/config"
)

func testClient(baseURL string) *Client {
	cfg := &config.Config{AnalyzerURL: baseURL, AnalyzerTimeout: 5 * time.Second}
	return NewClient(cfg, zerolog.Nop())
}

func TestClientParse(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/parse" {
			t.Errorf("path = %q, want /parse", r.URL.Path)
		}
		gotQuery = map[string]string{
			"core": r.URL.Query().Get("core"),
			"elf":  r.URL.Query().Get("elf"),
			"chip": r.URL.Query().Get("chip"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"output": "decoded backtrace"}`))
	}))
	defer server.Close()

	output, err := testClient(server.URL).Parse(context.Background(), "job1/coredump.bin", "job1/firmware.elf", "esp32s3")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if output != "decoded backtrace" {
		t.Errorf("output = %q, want decoded backtrace", output)
	}
	if gotQuery["core"] != "job1/coredump.bin" || gotQuery["elf"] != "job1/firmware.elf" || gotQuery["chip"] != "esp32s3" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestClientParseServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "decoder crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Parse(context.Background(), "c", "e", "esp32"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestClientParseBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Parse(context.Background(), "c", "e", "esp32"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestClientParseUnreachable(t *testing.T) {
	if _, err := testClient("http://127.0.0.1:1").Parse(context.Background(), "c", "e", "esp32"); err == nil {
		t.Fatal("expected transport error")
	}
}
