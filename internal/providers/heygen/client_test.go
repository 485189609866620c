package heygen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"genflow/internal/domain"
	"genflow/internal/providers"
)

func TestSubmitSendsAvatarPayload(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/video/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "hg-key" {
			t.Errorf("X-Api-Key = %q", r.Header.Get("X-Api-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"error":null,"data":{"video_id":"vid-42"}}`))
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "hg-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	id, err := client.Submit(context.Background(), domain.RequestSpec{
		Prompt:      "Welcome to our store",
		AvatarID:    "Daisy-inskirt-20220818",
		AspectRatio: "9:16",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "vid-42" {
		t.Fatalf("video id = %q", id)
	}
	if len(got.VideoInputs) != 1 {
		t.Fatalf("video_inputs = %+v", got.VideoInputs)
	}
	in := got.VideoInputs[0]
	if in.Character.AvatarID != "Daisy-inskirt-20220818" || in.Voice.InputText != "Welcome to our store" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.Voice.VoiceID != defaultVoiceID {
		t.Fatalf("voice id = %q", in.Voice.VoiceID)
	}
	if got.Dimension.Width != 720 || got.Dimension.Height != 1280 {
		t.Fatalf("dimension = %+v", got.Dimension)
	}
}

func TestFetchStatus(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status providers.OutcomeStatus
		url    string
		reason string
	}{
		{"processing", `{"code":100,"data":{"status":"processing"}}`, providers.OutcomePending, "", ""},
		{"waiting", `{"code":100,"data":{"status":"waiting"}}`, providers.OutcomePending, "", ""},
		{"completed", `{"code":100,"data":{"status":"completed","video_url":"https://files.heygen.ai/v.mp4"}}`, providers.OutcomeSucceeded, "https://files.heygen.ai/v.mp4", ""},
		{"failed", `{"code":100,"data":{"status":"failed","error":{"code":40119,"message":"avatar not found"}}}`, providers.OutcomeFailed, "", "avatar not found"},
		{"failed without detail", `{"code":100,"data":{"status":"failed"}}`, providers.OutcomeFailed, "", "avatar render failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("video_id") != "vid-42" {
					t.Errorf("video_id = %q", r.URL.Query().Get("video_id"))
				}
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewClient(Options{APIKey: "hg-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
			outcome, err := client.FetchStatus(context.Background(), "vid-42")
			if err != nil {
				t.Fatalf("FetchStatus: %v", err)
			}
			if outcome.Status != tc.status || outcome.FirstURL() != tc.url || outcome.Reason != tc.reason {
				t.Fatalf("outcome = %+v", outcome)
			}
		})
	}
}

func TestFetchStatusRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "hg-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := client.FetchStatus(context.Background(), "vid-42")
	if providers.KindOf(err) != providers.KindRateLimit {
		t.Fatalf("expected RATE_LIMIT, got %v", err)
	}
	if client.Policy().Interval.Seconds() != 30 || client.Policy().MaxAttempts != 40 {
		t.Fatalf("policy = %+v", client.Policy())
	}
}
