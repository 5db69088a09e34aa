package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mediastream/internal/domain"
	"mediastream/internal/usecase"
)

func TestParseByteRange(t *testing.T) {
	const size = int64(10_000)

	tests := []struct {
		name      string
		value     string
		wantStart int64
		wantEnd   int64
		wantErr   error
	}{
		{"open ended from zero", "bytes=0-", 0, -1, nil},
		{"open ended mid file", "bytes=5000-", 5000, -1, nil},
		{"explicit range", "bytes=100-199", 100, 199, nil},
		{"single byte", "bytes=0-0", 0, 0, nil},
		{"last byte", "bytes=9999-9999", 9999, 9999, nil},
		{"end clamped to size", "bytes=9000-999999", 9000, 9999, nil},
		{"suffix range", "bytes=-500", 9500, 9999, nil},
		{"suffix larger than file", "bytes=-50000", 0, 9999, nil},
		{"whitespace tolerated", "  bytes=100-199  ", 100, 199, nil},
		{"uppercase unit", "BYTES=100-199", 100, 199, nil},

		{"start past end", "bytes=10000-", 0, 0, errRangeNotSatisfiable},
		{"start far past end", "bytes=99999-100000", 0, 0, errRangeNotSatisfiable},

		{"missing prefix", "0-499", 0, 0, errInvalidRange},
		{"wrong unit", "items=0-499", 0, 0, errInvalidRange},
		{"empty spec", "bytes=", 0, 0, errInvalidRange},
		{"bare dash", "bytes=-", 0, 0, errInvalidRange},
		{"multi range", "bytes=0-499,600-999", 0, 0, errInvalidRange},
		{"end before start", "bytes=500-100", 0, 0, errInvalidRange},
		{"negative start", "bytes=-1-5", 0, 0, errInvalidRange},
		{"garbage start", "bytes=abc-", 0, 0, errInvalidRange},
		{"garbage end", "bytes=0-abc", 0, 0, errInvalidRange},
		{"zero suffix", "bytes=-0", 0, 0, errInvalidRange},
		{"no dash", "bytes=100", 0, 0, errInvalidRange},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := parseByteRange(tc.value, size)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("parseByteRange(%q) error = %v, want %v", tc.value, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseByteRange(%q) unexpected error: %v", tc.value, err)
			}
			if start != tc.wantStart || end != tc.wantEnd {
				t.Errorf("parseByteRange(%q) = (%d, %d), want (%d, %d)",
					tc.value, start, end, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestParseByteRange_ZeroSizeFile(t *testing.T) {
	_, _, err := parseByteRange("bytes=0-", 0)
	if !errors.Is(err, errRangeNotSatisfiable) {
		t.Errorf("expected not satisfiable for empty file, got %v", err)
	}
}

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "not_found", "session not found")

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var envelope errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Errorf("expected code not_found, got %q", envelope.Error.Code)
	}
	if envelope.Error.Message != "session not found" {
		t.Errorf("expected message, got %q", envelope.Error.Message)
	}
}

func TestWriteUseCaseError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"buffer timeout", usecase.ErrBufferTimeout, http.StatusServiceUnavailable, "buffer_timeout"},
		{"provider error", usecase.ErrProvider, http.StatusInternalServerError, "provider_error"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeUseCaseError(rec, tc.err)

			if rec.Code != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			var envelope errorEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if envelope.Error.Code != tc.wantCode {
				t.Errorf("expected code %q, got %q", tc.wantCode, envelope.Error.Code)
			}
		})
	}
}

func TestParsePositiveInt(t *testing.T) {
	tests := []struct {
		name            string
		value           string
		requirePositive bool
		want            int
		wantErr         bool
	}{
		{"empty means unset", "", true, -1, false},
		{"whitespace means unset", "   ", true, -1, false},
		{"valid positive", "42", true, 42, false},
		{"zero rejected when positive required", "0", true, 0, true},
		{"zero allowed when non-negative", "0", false, 0, false},
		{"negative rejected", "-5", false, 0, true},
		{"garbage rejected", "abc", true, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePositiveInt(tc.value, tc.requirePositive)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parsePositiveInt(%q) expected error, got %d", tc.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePositiveInt(%q) unexpected error: %v", tc.value, err)
			}
			if got != tc.want {
				t.Errorf("parsePositiveInt(%q) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}

func TestFallbackContentType(t *testing.T) {
	if got := fallbackContentType("video/mp4"); got != "video/mp4" {
		t.Errorf("expected passthrough, got %q", got)
	}
	if got := fallbackContentType(""); got != "application/octet-stream" {
		t.Errorf("expected octet-stream fallback, got %q", got)
	}
	if got := fallbackContentType("   "); got != "application/octet-stream" {
		t.Errorf("expected octet-stream for blank, got %q", got)
	}
}
