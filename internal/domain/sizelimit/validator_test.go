package sizelimit

import (
	"net/http"
	"strings"
	"testing"
)

func TestValidateBodyTooLarge(t *testing.T) {
	v := New(Config{MaxBodySize: 10})
	viol := v.Validate(11, http.Header{})
	if viol == nil {
		t.Fatal("expected a violation")
	}
	if viol.SuggestedStatus != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", viol.SuggestedStatus)
	}
}

func TestValidateBodyWithinLimit(t *testing.T) {
	v := New(Config{MaxBodySize: 10})
	if viol := v.Validate(10, http.Header{}); viol != nil {
		t.Errorf("expected no violation at exactly the limit, got %v", viol)
	}
}

func TestValidateHeaderTooLarge(t *testing.T) {
	v := New(Config{MaxHeaderSize: 16})
	h := http.Header{}
	h.Set("X-Big", strings.Repeat("a", 64))
	viol := v.Validate(0, h)
	if viol == nil {
		t.Fatal("expected a violation")
	}
	if viol.SuggestedStatus != http.StatusRequestHeaderFieldsTooLarge {
		t.Errorf("expected 431, got %d", viol.SuggestedStatus)
	}
}

func TestValidateTotalHeadersTooLarge(t *testing.T) {
	v := New(Config{MaxHeaderSize: 1000, MaxTotalHeadersSize: 20})
	h := http.Header{}
	h.Set("A", "1234567890")
	h.Set("B", "1234567890")
	viol := v.Validate(0, h)
	if viol == nil {
		t.Fatal("expected a total-size violation")
	}
	if viol.SuggestedStatus != http.StatusRequestHeaderFieldsTooLarge {
		t.Errorf("expected 431, got %d", viol.SuggestedStatus)
	}
}

func TestValidateOrderBodyBeforeHeaders(t *testing.T) {
	v := New(Config{MaxBodySize: 1, MaxHeaderSize: 1})
	h := http.Header{}
	h.Set("X-Also-Bad", "also too long")
	viol := v.Validate(100, h)
	if viol == nil {
		t.Fatal("expected a violation")
	}
	if viol.SuggestedStatus != http.StatusRequestEntityTooLarge {
		t.Errorf("expected the body check to win first, got status %d", viol.SuggestedStatus)
	}
}

func TestValidateDisabledLimitsAlwaysPass(t *testing.T) {
	v := New(Config{})
	h := http.Header{}
	h.Set("X-Anything", strings.Repeat("z", 10_000))
	if viol := v.Validate(1<<30, h); viol != nil {
		t.Errorf("expected no violation when all limits are zero/disabled, got %v", viol)
	}
}
