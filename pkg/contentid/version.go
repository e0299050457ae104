package contentid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// LatestToken is the external form of the latest-version sentinel.
const LatestToken = "latest"

var (
	// ErrInvalidVersion is returned (wrapped) for malformed version strings.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrNoSuccessor is returned when asking for the version after the
	// latest sentinel or after the largest representable ordinal.
	ErrNoSuccessor = errors.New("version has no successor")
)

// Version is either a concrete ordinal or the latest sentinel.
type Version struct {
	ordinal uint32
	latest  bool
}

// NewVersion returns the concrete version n.
func NewVersion(n uint32) Version {
	return Version{ordinal: n}
}

// Latest returns the "whatever is newest" sentinel.
func Latest() Version {
	return Version{latest: true}
}

// ParseVersion accepts "latest" or a decimal ordinal without leading zeros.
func ParseVersion(s string) (Version, error) {
	if s == LatestToken {
		return Latest(), nil
	}
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty", ErrInvalidVersion)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return Version{}, fmt.Errorf("%w: %q is zero-padded", ErrInvalidVersion, s)
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	return Version{ordinal: uint32(n)}, nil
}

// IsLatest reports whether this is the latest sentinel.
func (v Version) IsLatest() bool {
	return v.latest
}

// Ordinal returns the concrete ordinal. It is meaningless for the sentinel.
func (v Version) Ordinal() uint32 {
	return v.ordinal
}

// IsPublishable reports whether the version can name a created revision.
// Zero is a valid base to increment from but never a published version.
func (v Version) IsPublishable() bool {
	return !v.latest && v.ordinal >= 1
}

// Next returns the following version.
func (v Version) Next() (Version, error) {
	if v.latest {
		return Version{}, fmt.Errorf("%w: resolve %q to an ordinal first", ErrNoSuccessor, LatestToken)
	}
	if v.ordinal == math.MaxUint32 {
		return Version{}, fmt.Errorf("%w: %d is the largest version", ErrNoSuccessor, v.ordinal)
	}
	return Version{ordinal: v.ordinal + 1}, nil
}

// String returns "latest" or the decimal ordinal.
func (v Version) String() string {
	if v.latest {
		return LatestToken
	}
	return strconv.FormatUint(uint64(v.ordinal), 10)
}
