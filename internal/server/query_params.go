package server

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const dateOnlyLayout = "2006-01-02"

var errInvalidID = errors.New("invalid_snowflake_id")

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errInvalidID
	}
	return &parsed, nil
}

// pathID parses the :id route parameter. A malformed id is reported as not
// found so that probing ids reveals nothing.
func pathID(c *gin.Context) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		return 0, ErrNotFound
	}
	return *id, nil
}

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parseRange reads the from/to query pair shared by list and analytics
// endpoints.
func parseRange(c *gin.Context) (*time.Time, *time.Time, error) {
	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		return nil, nil, newValidationError("from", "invalid_from", "invalid from")
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		return nil, nil, newValidationError("to", "invalid_to", "invalid to")
	}
	return from, to, nil
}

func parsePracticeQuery(c *gin.Context) (*snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Query("practiceId"))
	if err != nil {
		return nil, newValidationError("practiceId", "invalid_practice_id", "invalid practiceId")
	}
	return id, nil
}
