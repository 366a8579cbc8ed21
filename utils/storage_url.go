package utils

import (
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ObjectURLConfig describes how stored objects are exposed publicly.
// AccessBaseURL wins over GCSHost/Bucket; it may contain an {objectKey} placeholder
// or end with a query parameter that takes the key.
type ObjectURLConfig struct {
	AccessBaseURL string
	GCSHost       string
	Bucket        string
}

func BuildObjectAccessURL(cfg ObjectURLConfig, objectKey string) string {
	base := strings.TrimSpace(cfg.AccessBaseURL)
	if base != "" {
		if strings.Contains(base, "{objectKey}") {
			escaped := objectKey
			if strings.Contains(base, "?") {
				escaped = url.QueryEscape(objectKey)
			}
			return strings.ReplaceAll(base, "{objectKey}", escaped)
		}
		if strings.Contains(base, "?") {
			return base + url.QueryEscape(objectKey)
		}
		return strings.TrimRight(base, "/") + "/" + objectKey
	}

	host := strings.TrimSpace(cfg.GCSHost)
	if host == "" {
		host = "storage.googleapis.com"
	}
	if bucket := strings.TrimSpace(cfg.Bucket); bucket != "" {
		return "https://" + host + "/" + bucket + "/" + objectKey
	}
	return objectKey
}

// NewObjectKey builds "<folder>/<uuid><ext>" with the folder reduced to safe characters.
func NewObjectKey(folder, ext string) string {
	return path.Join(SanitizeSegment(folder), uuid.NewString()+ext)
}

func SanitizeSegment(input string) string {
	var out strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(input)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '/':
			out.WriteRune(r)
		case r == ' ':
			out.WriteRune('_')
		}
	}
	cleaned := strings.Trim(path.Clean("/"+out.String()), "/")
	if cleaned == "" || cleaned == "." {
		return "uploads"
	}
	return cleaned
}
