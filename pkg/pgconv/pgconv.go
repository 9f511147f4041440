// Package pgconv converts between nullable SQL column types and Go values.
// The pgtype helpers serve the postgres store, the database/sql ones the
// sqlite store.
package pgconv

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgtype"
)

// ToText converts a *string to pgtype.Text.
// Returns an invalid Text if s is nil.
func ToText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// FromText converts pgtype.Text to *string.
// Returns nil if the Text is not valid.
func FromText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

// TextOrNull maps the empty string to NULL
func TextOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToInt8 converts an *int64 to pgtype.Int8.
// Returns an invalid Int8 if i is nil.
func ToInt8(i *int64) pgtype.Int8 {
	if i == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: *i, Valid: true}
}

// FromInt8 converts pgtype.Int8 to *int64.
// Returns nil if the Int8 is not valid.
func FromInt8(i pgtype.Int8) *int64 {
	if !i.Valid {
		return nil
	}
	return &i.Int64
}

// NullStringOrNull maps the empty string to NULL
func NullStringOrNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ToNullInt64 converts an *int64 to sql.NullInt64.
func ToNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// FromNullInt64 converts sql.NullInt64 to *int64.
func FromNullInt64(i sql.NullInt64) *int64 {
	if !i.Valid {
		return nil
	}
	return &i.Int64
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Val returns the value p points to, or the zero value when p is nil.
func Val[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
