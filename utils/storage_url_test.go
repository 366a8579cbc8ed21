package utils

import (
	"strings"
	"testing"
)

func TestBuildObjectAccessURL(t *testing.T) {
	cases := []struct {
		name     string
		cfg      ObjectURLConfig
		expected string
	}{
		{"placeholder", ObjectURLConfig{AccessBaseURL: "https://cdn.example/{objectKey}"}, "https://cdn.example/reports/a b.csv"},
		{"query placeholder", ObjectURLConfig{AccessBaseURL: "https://api.example/obj?key={objectKey}"}, "https://api.example/obj?key=reports%2Fa+b.csv"},
		{"trailing query", ObjectURLConfig{AccessBaseURL: "https://api.example/obj?key="}, "https://api.example/obj?key=reports%2Fa+b.csv"},
		{"base path", ObjectURLConfig{AccessBaseURL: "https://cdn.example/"}, "https://cdn.example/reports/a b.csv"},
		{"gcs", ObjectURLConfig{Bucket: "mf-files"}, "https://storage.googleapis.com/mf-files/reports/a b.csv"},
		{"nothing configured", ObjectURLConfig{}, "reports/a b.csv"},
	}
	for _, tc := range cases {
		if got := BuildObjectAccessURL(tc.cfg, "reports/a b.csv"); got != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestNewObjectKey_SanitizesFolder(t *testing.T) {
	key := NewObjectKey("../Client Photos", ".jpg")
	if !strings.HasPrefix(key, "client_photos/") || !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("unexpected key %s", key)
	}
	if SanitizeSegment("..") != "uploads" {
		t.Fatalf("expected fallback folder")
	}
}
