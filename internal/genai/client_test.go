package genai

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func newTestClient(t *testing.T, handler func(*http.Request) *http.Response) *Client {
	t.Helper()
	c := New("https://engine.test", "test-key", "test-model")
	c.HTTP = &http.Client{Transport: roundTrip(handler)}
	return c
}

func TestCompleteSuccess(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) *http.Response {
		if !strings.Contains(req.URL.Path, "models/test-model:generateContent") {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		if req.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), "classify this") {
			t.Errorf("prompt missing from payload: %s", body)
		}
		return &http.Response{
			StatusCode: 200,
			Body: io.NopCloser(strings.NewReader(`{
				"candidates":[{"content":{"parts":[{"text":"EXAM"}]}}]
			}`)),
			Header: make(http.Header),
		}
	})

	out, err := client.Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "EXAM" {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestGenerateStructuredSendsSchema(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) *http.Response {
		body, _ := io.ReadAll(req.Body)
		payload := string(body)
		if !strings.Contains(payload, `"responseMimeType":"application/json"`) {
			t.Errorf("missing response mime type: %s", payload)
		}
		if !strings.Contains(payload, `"responseSchema"`) {
			t.Errorf("missing response schema: %s", payload)
		}
		if !strings.Contains(payload, `"inlineData"`) {
			t.Errorf("missing inline payload: %s", payload)
		}
		return &http.Response{
			StatusCode: 200,
			Body: io.NopCloser(strings.NewReader(`{
				"candidates":[{"content":{"parts":[{"text":"["},{"text":"]"}]}}]
			}`)),
			Header: make(http.Header),
		}
	})

	parts := []Part{
		{Text: "extract"},
		{InlineData: &Blob{MIMEType: "application/pdf", Data: "aGVsbG8="}},
	}
	out, err := client.GenerateStructured(context.Background(), parts, map[string]string{"type": "ARRAY"})
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out != "[]" {
		t.Fatalf("parts not concatenated: %q", out)
	}
}

func TestGenerateErrorStatus(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) *http.Response {
		return &http.Response{
			StatusCode: 429,
			Status:     "429 Too Many Requests",
			Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"quota"}}`)),
			Header:     make(http.Header),
		}
	})

	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestUnconfiguredClientFailsWithoutCall(t *testing.T) {
	client := New("", "", "")
	if client.Configured() {
		t.Fatal("client without key reports configured")
	}
	client.HTTP = &http.Client{Transport: roundTrip(func(req *http.Request) *http.Response {
		t.Fatal("network call made without credential")
		return nil
	})}
	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
