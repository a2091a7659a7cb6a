package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/api/scenery/42":                 "/api/scenery/:id",
		"/api/scenery/42/nearby":          "/api/scenery/:id/nearby",
		"/api/scenery/42/comments?page=2": "/api/scenery/:id/comments",
		"/auth/refresh-token":             "/auth/refresh-token",
		"/auth/login":                     "/auth/login",
		"/health?deep=1":                  "/health",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
