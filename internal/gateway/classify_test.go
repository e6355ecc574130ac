package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

func TestClassifyForwardSuccess(t *testing.T) {
	r := ClassifyForward(outbound.ProxyResponse{Status: 200, Body: []byte("ok")}, nil)
	if r.Kind != KindSuccess || r.Status != 200 || string(r.Body) != "ok" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestClassifyForwardTimeout(t *testing.T) {
	r := ClassifyForward(outbound.ProxyResponse{}, context.DeadlineExceeded)
	if r.Kind != KindGatewayTimeout {
		t.Fatalf("expected gateway timeout, got %v", r.Kind)
	}
}

func TestClassifyForwardTransportFailure(t *testing.T) {
	r := ClassifyForward(outbound.ProxyResponse{}, errors.New("connection refused"))
	if r.Kind != KindError {
		t.Fatalf("expected error kind, got %v", r.Kind)
	}
	if r.HTTPStatus() != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", r.HTTPStatus())
	}
}
