package logger

import (
	"regexp"
	"strings"
)

var dsnPasswordRegex = regexp.MustCompile(`(://[^:/@\s]+:)([^@\s]+)(@)`)

var secretKeys = []string{"password", "secret", "token", "api_key"}

// RedactDSN masks the password of a connection string.
// "postgres://app:hunter2@db:5432/keys" → "postgres://app:***@db:5432/keys"
func RedactDSN(dsn string) string {
	return dsnPasswordRegex.ReplaceAllString(dsn, "${1}***${3}")
}

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return "***"
		}
	}
	return dsnPasswordRegex.ReplaceAllString(val, "${1}***${3}")
}
