package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"genflow/internal/domain"
	"genflow/internal/providers"
)

func TestSubmitAsyncPayload(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	client := NewClient(Options{
		APIKey:       "test",
		PromptExtend: true,
		Watermark:    true,
		HTTPClient:   &http.Client{Transport: transport},
	})
	transport.setJSONResponse("/api/v1/services/aigc/text2image/image-synthesis", map[string]any{
		"output":     map[string]any{"task_id": "task-1", "task_status": "PENDING"},
		"request_id": "req-123",
	})

	id, err := client.Submit(context.Background(), domain.RequestSpec{
		Prompt:         "a red bicycle",
		NegativePrompt: "blurry",
		AspectRatio:    "16:9",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "task-1" {
		t.Fatalf("task id = %q", id)
	}
	if transport.lastHeader.Get("X-DashScope-Async") != "enable" {
		t.Fatalf("missing async header")
	}

	var payload struct {
		Model string `json:"model"`
		Input struct {
			Prompt         string `json:"prompt"`
			NegativePrompt string `json:"negative_prompt"`
		} `json:"input"`
		Parameters struct {
			Size         string `json:"size"`
			N            int    `json:"n"`
			PromptExtend *bool  `json:"prompt_extend"`
			Watermark    *bool  `json:"watermark"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Model != "qwen-image-plus" {
		t.Fatalf("model = %q", payload.Model)
	}
	if payload.Input.Prompt != "a red bicycle" || payload.Input.NegativePrompt != "blurry" {
		t.Fatalf("unexpected input: %+v", payload.Input)
	}
	if payload.Parameters.Size != "1664*928" || payload.Parameters.N != 1 {
		t.Fatalf("unexpected parameters: %+v", payload.Parameters)
	}
	if payload.Parameters.PromptExtend == nil || !*payload.Parameters.PromptExtend {
		t.Fatalf("prompt_extend should be true")
	}
	if payload.Parameters.Watermark == nil || !*payload.Parameters.Watermark {
		t.Fatalf("watermark should be true")
	}
}

func TestSubmitClassifiesHTTPStatus(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.responses["/api/v1/services/aigc/text2image/image-synthesis"] = responseStub{
		status: http.StatusUnauthorized,
		body:   []byte(`{"code":"InvalidApiKey","message":"Invalid API-key provided."}`),
	}
	client := NewClient(Options{APIKey: "bad", HTTPClient: &http.Client{Transport: transport}})

	_, err := client.Submit(context.Background(), domain.RequestSpec{Prompt: "x"})
	if providers.KindOf(err) != providers.KindAuth {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid API-key provided.") {
		t.Fatalf("message not propagated: %v", err)
	}
}

func TestFetchStatusTransitions(t *testing.T) {
	cases := []struct {
		name   string
		output map[string]any
		status providers.OutcomeStatus
		url    string
		reason string
	}{
		{"running", map[string]any{"task_status": "RUNNING"}, providers.OutcomePending, "", ""},
		{"pending", map[string]any{"task_status": "PENDING"}, providers.OutcomePending, "", ""},
		{
			"succeeded",
			map[string]any{"task_status": "SUCCEEDED", "results": []any{map[string]any{"url": "https://dashscope.example/out.png"}}},
			providers.OutcomeSucceeded, "https://dashscope.example/out.png", "",
		},
		{
			"failed",
			map[string]any{"task_status": "FAILED", "code": "DataInspectionFailed", "message": "Input data may contain inappropriate content."},
			providers.OutcomeFailed, "", "Input data may contain inappropriate content. (DataInspectionFailed)",
		},
		{"canceled", map[string]any{"task_status": "CANCELED"}, providers.OutcomeFailed, "", "task canceled"},
		{"unknown", map[string]any{"task_status": "UNKNOWN"}, providers.OutcomeFailed, "", "task expired or unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := &captureTransport{responses: map[string]responseStub{}}
			transport.setJSONResponse("/api/v1/tasks/task-9", map[string]any{"output": tc.output})
			client := NewClient(Options{APIKey: "k", HTTPClient: &http.Client{Transport: transport}})

			outcome, err := client.FetchStatus(context.Background(), "task-9")
			if err != nil {
				t.Fatalf("FetchStatus: %v", err)
			}
			if outcome.Status != tc.status {
				t.Fatalf("status = %s, want %s", outcome.Status, tc.status)
			}
			if outcome.FirstURL() != tc.url {
				t.Fatalf("url = %q, want %q", outcome.FirstURL(), tc.url)
			}
			if outcome.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", outcome.Reason, tc.reason)
			}
		})
	}
}

func TestAspectRatioSize(t *testing.T) {
	cases := map[string]string{
		"16:9": "1664*928",
		"4:3":  "1472*1104",
		"3:4":  "1140*1472",
		"9:16": "928*1664",
		"1:1":  "1328*1328",
		"":     "1328*1328",
	}
	for in, want := range cases {
		if got := AspectRatioSize(in); got != want {
			t.Fatalf("AspectRatioSize(%q) = %q, want %q", in, got, want)
		}
	}
}

type captureTransport struct {
	responses  map[string]responseStub
	lastBody   []byte
	lastHeader http.Header
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.lastHeader = req.Header.Clone()
	if req.Method == http.MethodPost {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if stub, ok := c.responses[req.URL.Path]; ok {
		return stub.toResponse(), nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(path string, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[path] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
