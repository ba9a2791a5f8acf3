package vdp

import (
	"errors"
	"fmt"
)

// VarType is the discriminator of a Variant.
type VarType uint16

const (
	VTEmpty VarType = 0
	VTNull  VarType = 1
	VTI2    VarType = 2
	VTI4    VarType = 3
	VTR4    VarType = 4
	VTR8    VarType = 5
	VTI1    VarType = 16
	VTUI1   VarType = 17
	VTUI2   VarType = 18
	VTUI4   VarType = 19
	VTI8    VarType = 20
	VTUI8   VarType = 21
	VTLPStr VarType = 30
	VTBlob  VarType = 65
)

func (t VarType) String() string {
	switch t {
	case VTEmpty:
		return "empty"
	case VTNull:
		return "null"
	case VTI1, VTI2, VTI4, VTI8:
		return fmt.Sprintf("int(%d)", uint16(t))
	case VTUI1, VTUI2, VTUI4, VTUI8:
		return fmt.Sprintf("uint(%d)", uint16(t))
	case VTR4:
		return "float"
	case VTR8:
		return "double"
	case VTLPStr:
		return "string"
	case VTBlob:
		return "blob"
	default:
		return fmt.Sprintf("VarType(%d)", uint16(t))
	}
}

// ErrNotText is returned when a text payload is read from a non-string variant.
var ErrNotText = errors.New("variant does not hold a string")

// Variant is the tagged union the host uses to pass invocation parameters.
//
// Values filled by a ContextInterface may reference storage owned by the
// service library through Ref. Such a variant must be released exactly once
// with VariantInterface.Clear, after which it reads as empty.
type Variant struct {
	Type  VarType
	Int   int64
	Uint  uint64
	Float float64
	Str   string
	Blob  []byte

	// Ref identifies binding-owned storage. Zero means nothing to release
	// beyond the Go value itself.
	Ref uintptr
}

// StringVariant returns a VT_LPSTR variant holding s.
func StringVariant(s string) Variant {
	return Variant{Type: VTLPStr, Str: s}
}

// IntVariant returns a VT_I4 variant.
func IntVariant(i int32) Variant {
	return Variant{Type: VTI4, Int: int64(i)}
}

// BlobVariant returns a VT_BLOB variant holding a copy of b.
func BlobVariant(b []byte) Variant {
	return Variant{Type: VTBlob, Blob: append([]byte(nil), b...)}
}

// Text returns the string payload of a VT_LPSTR variant.
func (v *Variant) Text() (string, error) {
	if v.Type != VTLPStr {
		return "", fmt.Errorf("%w: type %s", ErrNotText, v.Type)
	}
	return v.Str, nil
}

// Reset zeroes the variant. Bindings call it after releasing host storage.
func (v *Variant) Reset() {
	*v = Variant{}
}
