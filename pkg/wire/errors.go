package wire

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind   = errors.New("wire: unknown message kind")
	ErrTruncated     = errors.New("wire: truncated frame")
	ErrInvalidValue  = errors.New("wire: invalid field value")
	ErrTrailingBytes = errors.New("wire: trailing bytes after frame")
	ErrCountOverflow = errors.New("wire: length does not fit its prefix")
	ErrNilMessage    = errors.New("wire: nil message")
)

// DecodeError reports where a frame failed to decode. Kind is KindNone
// when the frame was rejected before its kind was read.
type DecodeError struct {
	Kind   Kind
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Kind == KindNone {
		return fmt.Sprintf("decode frame: %v", e.Err)
	}
	return fmt.Sprintf("decode %s at offset %d: %v", e.Kind, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
