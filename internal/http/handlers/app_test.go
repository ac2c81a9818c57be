package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storyboard/internal/domain"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: s1", domain.ErrSubjectNotFound), http.StatusNotFound, "subject_not_found"},
		{fmt.Errorf("%w: c1", domain.ErrChunkMissing), http.StatusNotFound, "chunk_missing"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrNoWorkRemaining, http.StatusConflict, "no_work_remaining"},
		{domain.NewProviderError(domain.ErrProviderUnavailable, "qwen", errors.New("no key")), http.StatusUnprocessableEntity, "provider_unavailable"},
		{domain.NewProviderError(domain.ErrProviderTimeout, "wanx", nil), http.StatusGatewayTimeout, "provider_timeout"},
		{domain.NewProviderError(nil, "qwen", errors.New("boom")), http.StatusBadGateway, "provider_failure"},
		{fmt.Errorf("%w: style", domain.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("%w: write: disk full", domain.ErrPersistenceFailure), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		if status != tt.status || code != tt.code {
			t.Fatalf("errorStatus(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}

func TestDecodeAllowsEmptyBody(t *testing.T) {
	var req batchConfigRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := decode(r, &req); err != nil {
		t.Fatalf("decode empty body: %v", err)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"provider":`))
	if err := decode(r, &req); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("decode truncated body = %v, want invalid input", err)
	}
}
