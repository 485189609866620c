package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"genflow/internal/domain"
	"genflow/internal/providers"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", fmt.Errorf("wrap: %w", domain.ErrInvalidRequest), http.StatusBadRequest},
		{"unsupported provider", domain.ErrUnsupportedProvider, http.StatusBadRequest},
		{"credits", domain.ErrInsufficientCredits, http.StatusPaymentRequired},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"provider auth", fmt.Errorf("submit: %w", providers.MissingKey("kie")), http.StatusBadGateway},
		{"provider rate limit", &providers.Error{Kind: providers.KindRateLimit}, http.StatusServiceUnavailable},
		{"provider network", &providers.Error{Kind: providers.KindNetwork}, http.StatusServiceUnavailable},
		{"provider validation", &providers.Error{Kind: providers.KindValidation}, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := classify(tc.err); code != tc.code {
				t.Fatalf("classify(%v) = %d, want %d", tc.err, code, tc.code)
			}
		})
	}
}

func TestParseListFilter(t *testing.T) {
	f, err := parseListFilter("completed, failed", "2026-01-02T03:04:05Z", "500")
	if err != nil {
		t.Fatalf("parseListFilter: %v", err)
	}
	if len(f.States) != 2 || f.States[0] != domain.StateCompleted {
		t.Fatalf("states = %v", f.States)
	}
	if f.Limit != maxListLimit {
		t.Fatalf("limit = %d, want capped %d", f.Limit, maxListLimit)
	}
	if f.CompletedSince.IsZero() {
		t.Fatalf("since not parsed")
	}

	for _, bad := range [][3]string{{"deleted", "", ""}, {"", "yesterday", ""}, {"", "", "-1"}} {
		if _, err := parseListFilter(bad[0], bad[1], bad[2]); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("parseListFilter(%v) err = %v", bad, err)
		}
	}
}

func TestOpenAPIJSONRevalidates(t *testing.T) {
	app := NewApp(nil, nil, nil)

	rec := httptest.NewRecorder()
	app.OpenAPIJSON(rec, httptest.NewRequest(http.MethodGet, openAPIPath, nil))
	etag := rec.Header().Get("ETag")
	if rec.Code != http.StatusOK || etag == "" {
		t.Fatalf("status %d etag %q", rec.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, openAPIPath, nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	app.OpenAPIJSON(rec, req)
	if rec.Code != http.StatusNotModified || rec.Body.Len() != 0 {
		t.Fatalf("revalidation status %d body %d bytes", rec.Code, rec.Body.Len())
	}
}
