package contentid

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ForcedThreshold is the first number the repository assigns on its own.
// Legacy numbers in [1, ForcedThreshold) must be reserved explicitly.
const ForcedThreshold uint64 = 300000

// ErrInvalidID is returned (wrapped) for every malformed identifier string.
var ErrInvalidID = errors.New("invalid identifier")

// Kind is the entity family an identifier belongs to.
type Kind int

const (
	KindUnknown Kind = iota
	KindModule
	KindCollection
	KindResource
)

// Kinds lists every known kind.
var Kinds = []Kind{KindModule, KindCollection, KindResource}

// Prefix returns the external prefix for the kind.
func (k Kind) Prefix() string {
	switch k {
	case KindModule:
		return "m"
	case KindCollection:
		return "col"
	case KindResource:
		return "r"
	default:
		return ""
	}
}

// String returns the lowercase kind name ("module", "collection", "resource").
func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindCollection:
		return "collection"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name as returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown kind %q", s)
}

// ID identifies one module, collection, or resource.
// The zero ID has no number and is used for "not yet assigned".
type ID struct {
	kind   Kind
	number uint64
}

// NewID creates an identifier. It does not validate the number.
func NewID(kind Kind, number uint64) ID {
	return ID{kind: kind, number: number}
}

// ParseID parses the external form of an identifier of the given kind.
// The form is the kind prefix followed by one or more decimal digits with no
// leading zero. Zero is never a valid identifier number.
func ParseID(kind Kind, s string) (ID, error) {
	prefix := kind.Prefix()
	if prefix == "" {
		return ID{}, fmt.Errorf("%w: unknown kind for %q", ErrInvalidID, s)
	}
	if !strings.HasPrefix(s, prefix) {
		return ID{}, fmt.Errorf("%w: %q does not start with %q", ErrInvalidID, s, prefix)
	}

	digits := s[len(prefix):]
	if digits == "" {
		return ID{}, fmt.Errorf("%w: %q has no digits", ErrInvalidID, s)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return ID{}, fmt.Errorf("%w: %q has a non-digit suffix", ErrInvalidID, s)
		}
	}
	if digits[0] == '0' {
		return ID{}, fmt.Errorf("%w: %q has a leading zero", ErrInvalidID, s)
	}

	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, s, err)
	}
	return ID{kind: kind, number: n}, nil
}

// MustParseID parses an identifier, panicking on error.
// This is useful for test fixtures where the identifier is known valid.
func MustParseID(kind Kind, s string) ID {
	id, err := ParseID(kind, s)
	if err != nil {
		panic(fmt.Sprintf("invalid ID: %s: %v", s, err))
	}
	return id
}

// ParseAnyID parses an identifier of any kind, detecting the kind from its
// prefix. The collection prefix is tried first because it is the longest.
func ParseAnyID(s string) (ID, error) {
	for _, k := range []Kind{KindCollection, KindModule, KindResource} {
		if strings.HasPrefix(s, k.Prefix()) {
			return ParseID(k, s)
		}
	}
	return ID{}, fmt.Errorf("%w: %q has no known prefix", ErrInvalidID, s)
}

// Kind returns the identifier kind.
func (id ID) Kind() Kind {
	return id.kind
}

// Number returns the numeric value.
func (id ID) Number() uint64 {
	return id.number
}

// IsZero returns true if the identifier has no number.
func (id ID) IsZero() bool {
	return id.number == 0
}

// IsForced reports whether the number lies in the legacy range that must be
// reserved explicitly at the repository.
func (id ID) IsForced() bool {
	return id.number > 0 && id.number < ForcedThreshold
}

// String returns the external form, e.g. "m1234". The zero ID renders as "".
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.kind.Prefix() + strconv.FormatUint(id.number, 10)
}

// Quoted returns the external form wrapped in double quotes, as it appears in
// collection manifests.
func (id ID) Quoted() string {
	return `"` + id.String() + `"`
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("ID must be a string: %w", err)
	}
	if s == "" || s == "null" {
		*id = ID{}
		return nil
	}
	parsed, err := ParseAnyID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler, used by YAML reports.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Scan implements sql.Scanner for database reading.
func (id *ID) Scan(value interface{}) error {
	if value == nil {
		*id = ID{}
		return nil
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	if s == "" {
		*id = ID{}
		return nil
	}

	parsed, err := ParseAnyID(s)
	if err != nil {
		return fmt.Errorf("cannot scan %q into ID: %w", s, err)
	}
	*id = parsed
	return nil
}

// Value implements driver.Valuer for database writing.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return id.String(), nil
}
