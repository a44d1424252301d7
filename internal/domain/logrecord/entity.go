// Package logrecord provides the domain model for persisted log records.
package logrecord

import (
	"time"

	"github.com/google/uuid"
)

// Log is a persisted application event. It is owned by the log store and is
// never created, mutated or deleted by this service.
type Log struct {
	id        uuid.UUID
	logType   string
	level     string
	message   string
	createdAt time.Time
	updatedAt time.Time
}

// ReconstructLog rebuilds a Log from persistence data.
func ReconstructLog(
	id uuid.UUID,
	logType string,
	level string,
	message string,
	createdAt time.Time,
	updatedAt time.Time,
) *Log {
	return &Log{
		id:        id,
		logType:   logType,
		level:     level,
		message:   message,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

// ID returns the storage-assigned identifier.
func (l *Log) ID() uuid.UUID { return l.id }

// Type returns the free-text category.
func (l *Log) Type() string { return l.logType }

// Level returns the severity.
func (l *Log) Level() string { return l.level }

// Message returns the message text.
func (l *Log) Message() string { return l.message }

// CreatedAt returns the creation timestamp.
func (l *Log) CreatedAt() time.Time { return l.createdAt }

// UpdatedAt returns the last update timestamp.
func (l *Log) UpdatedAt() time.Time { return l.updatedAt }
