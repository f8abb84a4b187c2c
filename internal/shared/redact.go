package shared

import (
	"regexp"
	"strings"
)

// Redacted replaces any secret udo finds in log output.
const Redacted = "[REDACTED]"

// secretRule matches one kind of credential. When keepPrefix is set the
// first capture group (the key name or scheme) survives redaction.
type secretRule struct {
	re         *regexp.Regexp
	keepPrefix bool
}

var secretRules = []secretRule{
	{regexp.MustCompile(`(?i)((?:api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|bearer)\s*[:=]\s*)"?[A-Za-z0-9_\-./+=]{16,}"?`), true},
	{regexp.MustCompile(`(?i)(Bearer\s+)[A-Za-z0-9_\-./+=]{16,}`), true},
	{regexp.MustCompile(`(?i)((?:token|secret|password)\s*[:=]\s*)"?[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}"?`), true},
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{30,}`), false},
	{regexp.MustCompile(`AIza[A-Za-z0-9_\-]{30,}`), false},
	{regexp.MustCompile(`sk-[A-Za-z0-9_\-]{20,}`), false},
}

// Redact masks credentials embedded in free text.
func Redact(s string) string {
	for _, r := range secretRules {
		if r.keepPrefix {
			s = r.re.ReplaceAllString(s, "${1}"+Redacted)
		} else {
			s = r.re.ReplaceAllLiteralString(s, Redacted)
		}
	}
	return s
}

var sensitiveKeyParts = []string{
	"token", "secret", "password", "authorization",
	"api_key", "apikey", "bearer", "credential",
}

// IsSensitiveKey reports whether a log attribute name suggests its value is
// a credential.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
