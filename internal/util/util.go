package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

func newULID(prefix string) string {
	// ULID is sortable (nice for DB indexes and dashboards)
	t := time.Now().UTC()
	return prefix + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// NewRunID identifies one dispatch run in logs and summaries.
func NewRunID() string { return newULID("run_") }

func NewJobID() string { return newULID("job_") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
