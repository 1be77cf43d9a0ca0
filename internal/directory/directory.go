// Package directory adapts the read-only personnel system of record.
// Staffgate never writes to it; a missing record is a legitimate outcome.
package directory

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound means the subject has no personnel record.
	ErrNotFound = errors.New("directory: staff not found")
	// ErrUnavailable means the directory could not answer in time.
	// Distinct from ErrNotFound so callers can surface a retryable failure.
	ErrUnavailable = errors.New("directory: unavailable")
)

// StaffRecord is the personnel fact for one subject. Level ranges 1-3;
// Extension is the secondary verification attribute used at registration.
type StaffRecord struct {
	Subject    string
	Name       string
	Department string
	Level      int
	Extension  string
}

// Directory looks up personnel records.
type Directory interface {
	Lookup(ctx context.Context, subject string) (StaffRecord, error)
}

// Normalize canonicalizes a subject identifier before any lookup or storage.
func Normalize(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}
