package network

import "testing"

func TestTrustedProxyValidatorDisabled(t *testing.T) {
	v := NewTrustedProxyValidator(TrustedProxyConfig{Enabled: false}, nil)
	if !v.IsTrusted("203.0.113.5") {
		t.Fatalf("disabled config should trust all peers")
	}
}

func TestTrustedProxyValidatorExactAndCIDR(t *testing.T) {
	cfg := TrustedProxyConfig{
		Enabled:  true,
		Patterns: []string{"10.0.0.1", "192.168.0.0/16", "not-a-valid-entry", "::1"},
	}
	v := NewTrustedProxyValidator(cfg, nil)

	if !v.IsTrusted("10.0.0.1") {
		t.Errorf("expected exact IP match to be trusted")
	}
	if !v.IsTrusted("192.168.5.5") {
		t.Errorf("expected CIDR match to be trusted")
	}
	if v.IsTrusted("8.8.8.8") {
		t.Errorf("expected non-matching IP to be untrusted")
	}
	if !v.IsTrusted("::1") {
		t.Errorf("expected IPv6 exact match to be trusted")
	}
}

func TestTrustedProxyValidatorMalformedPeer(t *testing.T) {
	v := NewTrustedProxyValidator(TrustedProxyConfig{Enabled: true, Patterns: []string{"10.0.0.0/8"}}, nil)
	if v.IsTrusted("not-an-ip") {
		t.Fatalf("malformed peer IP must not be trusted")
	}
}
