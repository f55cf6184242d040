package domain

import "time"

// FieldDelta is one detected transition between two consecutive snapshots.
// Prev is unknown for a first observation; Cur is Absent when the field
// disappeared.
type FieldDelta struct {
	Path      string
	Prev      FieldValue
	Cur       FieldValue
	Timestamp time.Time
}

// FirstObservation reports whether this delta records a field seen for the
// first time rather than a change.
func (d FieldDelta) FirstObservation() bool {
	return !d.Prev.Known() && d.Cur.Known()
}

// Disappeared reports whether the field vanished from the snapshot.
func (d FieldDelta) Disappeared() bool {
	return d.Cur.Kind == FieldAbsent
}
