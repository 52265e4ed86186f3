package services

import (
	"strings"

	"service-queue/internal/status"

	"github.com/google/uuid"
)

// ParseLocationID returns the canonical lowercase form of a location UUID.
func ParseLocationID(text string) (string, error) {
	id, problem := canonicalLocationID(text)
	if problem != "" {
		return "", status.NewValidationError("location_id", problem)
	}
	return id, nil
}

func canonicalLocationID(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "is required"
	}
	id, err := uuid.Parse(text)
	if err != nil {
		return "", "must be a valid UUID"
	}
	return id.String(), ""
}
