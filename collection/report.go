package collection

import (
	"context"
	"log/slog"
)

// EventKind classifies a diagnostic event.
type EventKind int

const (
	// EventInvalidEntry is a stored entry dropped on load.
	EventInvalidEntry EventKind = iota + 1
	// EventRecovered is an unreadable snapshot replaced by an empty one.
	EventRecovered
	// EventSaveFailed is a snapshot write the store rejected.
	EventSaveFailed
	// EventImportRejected is an imported entry that was not accepted.
	EventImportRejected
	// EventDuplicateID is an identifier seen twice in one snapshot.
	EventDuplicateID
)

func (k EventKind) String() string {
	switch k {
	case EventInvalidEntry:
		return "invalid_entry"
	case EventRecovered:
		return "recovered"
	case EventSaveFailed:
		return "save_failed"
	case EventImportRejected:
		return "import_rejected"
	case EventDuplicateID:
		return "duplicate_id"
	}
	return "unknown"
}

// Event describes something the caller may want to know about but that did
// not fail the operation on its own.
type Event struct {
	Kind       EventKind
	Collection string
	ID         string
	Err        error
}

// Reporter receives diagnostic events from a Collection.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// NopReporter discards events.
type NopReporter struct{}

func (NopReporter) Report(Event) {}

// SlogReporter logs events. Save failures log at error level, everything
// else at warn.
type SlogReporter struct {
	Logger *slog.Logger
}

func (r SlogReporter) Report(e Event) {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelWarn
	if e.Kind == EventSaveFailed || e.Kind == EventDuplicateID {
		level = slog.LevelError
	}
	l.Log(context.Background(), level, "collection "+e.Kind.String(),
		"collection", e.Collection,
		"id", e.ID,
		"err", e.Err,
	)
}
