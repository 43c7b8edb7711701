package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/domainerr"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalInt(field, value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed <= 0 {
		return 0, domainerr.Invalid(field, "invalid_"+field, field+" must be a positive integer")
	}
	return parsed, nil
}

func parseSnowflakeParam(field, value string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || parsed == 0 {
		return 0, domainerr.Invalid(field, "invalid_"+field, "invalid identifier")
	}
	return parsed, nil
}

// parseOptionalTime accepts RFC3339 or a bare date. A date of an upper bound
// extends to the end of that day.
func parseOptionalTime(field, value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = parsed.AddDate(0, 0, 1)
		}
		return &parsed, nil
	}
	return nil, domainerr.Invalid(field, "invalid_"+field, "expected RFC3339 timestamp or YYYY-MM-DD")
}

// splitList reads a comma separated or repeated query value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
