package helpers

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Stage constants define the possible deployment/runtime environments.
const (
	StageProd  = "prod"
	StageDev   = "dev"
	StageLocal = "local"
)

// IsValidStage checks if the provided stage string is one of the defined valid stages.
func IsValidStage(stage string) bool {
	switch stage {
	case StageProd, StageDev, StageLocal:
		return true
	default:
		return false
	}
}

// StageOrDefault returns STAGE when it names a known stage, otherwise local.
func StageOrDefault() string {
	if s := strings.ToLower(os.Getenv("STAGE")); IsValidStage(s) {
		return s
	}
	return StageLocal
}

// EnvString returns the trimmed value of key or def when it is empty.
func EnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvInt parses key as an int. Empty values yield def; garbage is reported.
func EnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// EnvBool parses key as a bool, accepting the strconv.ParseBool forms.
func EnvBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

// EnvDuration parses key as a Go duration such as "30s".
func EnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

// SplitCSV splits a comma separated env value, dropping blanks.
func SplitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
