package match

import "testing"

func TestMatchLiteral(t *testing.T) {
	vars, ok := Match("/api/items", "/api/items")
	if !ok || len(vars) != 0 {
		t.Fatalf("expected match with no vars, got %v %v", vars, ok)
	}

	if _, ok := Match("/api/items", "/api/other"); ok {
		t.Fatalf("expected no match")
	}
}

func TestMatchVariable(t *testing.T) {
	vars, ok := Match("/api/v1/users/{userId}", "/api/v1/users/123")
	if !ok {
		t.Fatalf("expected match")
	}
	if vars["userId"] != "123" {
		t.Fatalf("expected captured userId=123, got %q", vars["userId"])
	}
}

func TestMatchStar(t *testing.T) {
	if _, ok := Match("/api/*/items", "/api/v2/items"); !ok {
		t.Fatalf("expected * to match single segment")
	}
	if _, ok := Match("/api/*/items", "/api/v2/v3/items"); ok {
		t.Fatalf("* must not match multiple segments")
	}
}

func TestMatchDoubleStar(t *testing.T) {
	cases := []struct {
		path string
		ok   bool
	}{
		{"/static/", true},
		{"/static/a", true},
		{"/static/a/b/c", true},
	}
	for _, c := range cases {
		if _, ok := Match("/static/**", c.path); ok != c.ok {
			t.Errorf("path %q: expected ok=%v, got %v", c.path, c.ok, ok)
		}
	}
}

func TestMatchDoubleStarWithSuffix(t *testing.T) {
	vars, ok := Match("/files/**/{name}", "/files/a/b/report.csv")
	if !ok {
		t.Fatalf("expected match")
	}
	if vars["name"] != "report.csv" {
		t.Fatalf("expected name=report.csv, got %q", vars["name"])
	}
}

func TestRewrite(t *testing.T) {
	vars := map[string]string{"userId": "42"}
	out, err := Rewrite("/users/{userId}", vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "/users/42" {
		t.Fatalf("expected /users/42, got %q", out)
	}
}

func TestRewriteUnknownVariable(t *testing.T) {
	_, err := Rewrite("/users/{userId}", map[string]string{})
	if err == nil {
		t.Fatalf("expected error for unresolved variable")
	}
}

func TestValidateRewriteTemplate(t *testing.T) {
	if err := ValidateRewriteTemplate("/users/{userId}", "/accounts/{userId}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateRewriteTemplate("/users/{userId}", "/accounts/{other}"); err == nil {
		t.Fatalf("expected error for variable not captured by pattern")
	}
	if err := ValidateRewriteTemplate("/a/{x}/{y}", "/b/{x}/{x}"); err == nil {
		t.Fatalf("expected error for variable repeated in template")
	}
}

func TestMethodMatches(t *testing.T) {
	if !MethodMatches([]string{"GET", "POST"}, "get") {
		t.Fatalf("expected case-insensitive match")
	}
	if !MethodMatches([]string{"*"}, "DELETE") {
		t.Fatalf("expected wildcard to match any method")
	}
	if MethodMatches([]string{"GET"}, "POST") {
		t.Fatalf("expected no match")
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"a/b":      "/a/b",
		"/a/b":     "/a/b",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
