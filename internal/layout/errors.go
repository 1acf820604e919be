package layout

import "errors"

// Codec errors. Every failure is fatal to the single Serialize/Deserialize call
// and wraps one of these.
var (
	ErrTruncated             = errors.New("layout: buffer too short")
	ErrTrailingBytes         = errors.New("layout: trailing bytes")
	ErrUnknownTag            = errors.New("layout: unknown switch tag")
	ErrOverflow              = errors.New("layout: value does not fit")
	ErrInvalidValue          = errors.New("layout: invalid value")
	ErrDiscriminatorMismatch = errors.New("layout: discriminator mismatch")
)
