package serialize

import "errors"

var (
	// ErrCountMismatch is returned when a column holds a different number of
	// values than its archetype has entities.
	ErrCountMismatch = errors.New("column length does not match entity count")
	// ErrUnknownCodec is returned when a stream names a codec that is not
	// registered.
	ErrUnknownCodec = errors.New("unknown codec")
	// ErrMissingColumn is returned when a header names a column that the
	// stream does not carry.
	ErrMissingColumn = errors.New("missing column")
	// ErrBadSlot is returned for an opaque value slot outside the value table.
	ErrBadSlot = errors.New("opaque value slot out of range")
	// ErrValueGaps is returned when the opaque value table is not a dense
	// sequence starting at 1.
	ErrValueGaps = errors.New("opaque value table has gaps")
	// ErrForeignObject is returned when a component refers to an object of a
	// space other than the one being serialized.
	ErrForeignObject = errors.New("object belongs to another space")
	// ErrDuplicateCodec is returned when a codec name or component type is
	// registered twice.
	ErrDuplicateCodec = errors.New("duplicate codec")
)
