package store

import (
	"errors"

	"github.com/shrimpsizemoose/semla/internal/models"
)

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

type DBConfig struct {
	DSN           string
	Type          DatabaseType
	MigrationsDir string
}

var (
	ErrNotFound = errors.New("record not found")
	// ErrStatusChanged means a conditional transition found the row in
	// another status than expected.
	ErrStatusChanged = errors.New("record status changed")
)

// SubmissionFilter narrows submission listings. Empty fields match anything.
type SubmissionFilter struct {
	Day            string
	Student        string
	ExcludeStudent string
	Status         models.SubmissionStatus
	ExcludeDay     string
}
