package types

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// AvailabilityRange describes the platform version range in which a
// declaration is usable. A nil Introduced means "always available",
// a nil Obsoleted means "never obsoleted".
type AvailabilityRange struct {
	Introduced *semver.Version
	Obsoleted  *semver.Version
}

// ParseAvailability builds a range from version strings. Empty strings
// leave the corresponding bound open.
func ParseAvailability(introduced, obsoleted string) (*AvailabilityRange, error) {
	var r AvailabilityRange
	if introduced != "" {
		v, err := semver.NewVersion(introduced)
		if err != nil {
			return nil, fmt.Errorf("invalid introduced version %q: %w", introduced, err)
		}
		r.Introduced = v
	}
	if obsoleted != "" {
		v, err := semver.NewVersion(obsoleted)
		if err != nil {
			return nil, fmt.Errorf("invalid obsoleted version %q: %w", obsoleted, err)
		}
		r.Obsoleted = v
	}
	return &r, nil
}

// Contains reports whether this range covers every version of other.
// An override's supported range must contain its base's range.
func (r *AvailabilityRange) Contains(other *AvailabilityRange) bool {
	if r == nil {
		// Always available contains everything.
		return true
	}
	if other == nil {
		other = &AvailabilityRange{}
	}
	if r.Introduced != nil {
		if other.Introduced == nil || r.Introduced.GreaterThan(other.Introduced) {
			return false
		}
	}
	if r.Obsoleted != nil {
		if other.Obsoleted == nil || r.Obsoleted.LessThan(other.Obsoleted) {
			return false
		}
	}
	return true
}

func (r *AvailabilityRange) String() string {
	if r == nil {
		return "always"
	}
	intro, obs := "*", "*"
	if r.Introduced != nil {
		intro = r.Introduced.String()
	}
	if r.Obsoleted != nil {
		obs = r.Obsoleted.String()
	}
	return fmt.Sprintf("[%s, %s)", intro, obs)
}
