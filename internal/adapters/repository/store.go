// Package repository defines the rating record store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/deborabastos/esplanada-ratings/internal/domain/model"
)

// Store provides read/write access to rating records and the subject
// registry. The active-record index enforces the at-most-one-active
// uniqueness invariant at the storage layer as well.
type Store interface {
	// Put stores a new active record. Returns ErrActiveExists when the
	// (identity, subject) pair already has an active record.
	Put(ctx context.Context, rec model.Record) error

	// Replace swaps the active record in place, keeping its id and
	// statistics slot. Returns ErrNotFound when the id is unknown.
	Replace(ctx context.Context, rec model.Record) error

	// Active returns the active record for (identity, subject).
	// ok=false means none exists.
	Active(ctx context.Context, identityDigest, subjectID string) (model.Record, bool, error)

	// Get returns a record by id. Returns ErrNotFound when unknown.
	Get(ctx context.Context, id string) (model.Record, error)

	// SubjectScores returns all current scores for a subject in first
	// acceptance order. This is the statistics rebuild source.
	SubjectScores(ctx context.Context, subjectID string) ([]int, error)

	// EnsureSubject registers a subject if it is not yet known. The
	// first registration wins; CreatedAt is never overwritten.
	EnsureSubject(ctx context.Context, sub model.Subject) error

	// SubjectCreatedAt returns when a subject was registered.
	// ok=false means the subject is unknown.
	SubjectCreatedAt(ctx context.Context, subjectID string) (time.Time, bool, error)

	// Subjects returns every registered subject.
	Subjects(ctx context.Context) ([]model.Subject, error)

	// Count returns the number of active rating records.
	Count(ctx context.Context) int

	// Close releases the underlying database.
	Close() error
}
