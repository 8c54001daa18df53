//go:build integration

package tests

import (
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
)

func resolverURL() string {
	if url := os.Getenv("RESOLVER_URL"); url != "" {
		return url
	}
	return "http://127.0.0.1:8500"
}

// e2eRequest builds and executes an HTTP request against a running
// instance, tagging it with callerID so per-caller rate limits don't
// bleed across unrelated tests.
func e2eRequest(t *testing.T, method, url, callerID, body string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Caller-ID", callerID)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}
