package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadDotEnv reads a .env file and applies it to the process environment.
// Variables already present in the environment win, so a real deployment
// is never overridden by a checked-in development file.
//
// The format is KEY=VALUE per line, with optional surrounding quotes on
// the value and an optional "export " prefix so the same file can be
// sourced by a shell. Blank lines, comments, and malformed lines are
// skipped. Intentionally hand-rolled; local development should not need
// extra tooling.
func LoadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err // missing file is fine, the caller may ignore it
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}
