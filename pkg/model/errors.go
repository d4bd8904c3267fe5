package model

import (
	"errors"
	"fmt"
)

// Orchestration misuse.
var (
	ErrNoInput      = errors.New("no input file")
	ErrTooManyFiles = errors.New("format takes a single file")
	ErrEmptyProject = errors.New("project has no tracks")
	ErrCannotParse  = errors.New("format cannot be imported")
	ErrCannotExport = errors.New("format cannot be exported")
)

// UnsupportedReason distinguishes the UnsupportedFileFormat subtypes.
type UnsupportedReason int

const (
	UnsupportedUnknown UnsupportedReason = iota
	UnsupportedLegacy
	UnsupportedSchemaMismatch
)

// UnsupportedFileFormatError is returned for known-but-unsupported variants.
type UnsupportedFileFormatError struct {
	Format string
	Reason UnsupportedReason
	Detail string
}

func (e *UnsupportedFileFormatError) Error() string {
	switch e.Reason {
	case UnsupportedLegacy:
		return fmt.Sprintf("unsupported legacy %s file: %s", e.Format, e.Detail)
	case UnsupportedSchemaMismatch:
		return fmt.Sprintf("unsupported %s schema: %s", e.Format, e.Detail)
	default:
		return fmt.Sprintf("unsupported %s file: %s", e.Format, e.Detail)
	}
}

// IllegalFileKind distinguishes structural violations.
type IllegalFileKind int

const (
	UnknownVersion IllegalFileKind = iota
	MissingElement
	MissingAttribute
	IllegalElementValue
	Unparsable
)

func (k IllegalFileKind) String() string {
	switch k {
	case UnknownVersion:
		return "unknown version"
	case MissingElement:
		return "missing element"
	case MissingAttribute:
		return "missing attribute"
	case IllegalElementValue:
		return "illegal value"
	case Unparsable:
		return "unparsable content"
	default:
		return "illegal file"
	}
}

// IllegalFileError is a structural violation of a format grammar.
type IllegalFileError struct {
	Kind   IllegalFileKind
	Detail string
	Err    error
}

func (e *IllegalFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("illegal file, %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("illegal file, %s: %s", e.Kind, e.Detail)
}

func (e *IllegalFileError) Unwrap() error {
	return e.Err
}

// NewIllegalFile builds an IllegalFileError.
func NewIllegalFile(kind IllegalFileKind, detail string) *IllegalFileError {
	return &IllegalFileError{Kind: kind, Detail: detail}
}

// MissingElementError names the absent element.
func MissingElementError(name string) *IllegalFileError {
	return &IllegalFileError{Kind: MissingElement, Detail: name}
}

// UnparsableError wraps a container-level decode failure.
func UnparsableError(what string, err error) *IllegalFileError {
	return &IllegalFileError{Kind: Unparsable, Detail: what, Err: err}
}

// IllegalNotePositionError reports a note with a non-positive length or a
// negative position.
type IllegalNotePositionError struct {
	Track   int
	NoteID  int
	TickOn  int64
	TickOff int64
}

func (e *IllegalNotePositionError) Error() string {
	return fmt.Sprintf("illegal note position in track %d note %d: [%d, %d)", e.Track, e.NoteID, e.TickOn, e.TickOff)
}

// NotesOverlappingError reports overlapping notes a format cannot resolve.
type NotesOverlappingError struct {
	Track  int
	NoteID int
}

func (e *NotesOverlappingError) Error() string {
	return fmt.Sprintf("notes overlapping in track %d at note %d", e.Track, e.NoteID)
}

// ValueTooLargeError is returned when a variable-length integer cannot hold a value.
type ValueTooLargeError struct {
	Value int64
	Limit int64
}

func (e *ValueTooLargeError) Error() string {
	return fmt.Sprintf("value %d too large, must be below %d", e.Value, e.Limit)
}

// CannotReadFileError wraps an I/O failure at the boundary.
type CannotReadFileError struct {
	Name string
	Err  error
}

func (e *CannotReadFileError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Name, e.Err)
}

func (e *CannotReadFileError) Unwrap() error {
	return e.Err
}
