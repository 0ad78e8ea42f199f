package display

import (
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Ext is the file extension for profile files in both tiers.
const Ext = ".yaml"

var (
	// ErrNotFound is returned when a profile exists in neither tier.
	ErrNotFound = errors.New("display profile not found")
	// ErrExists is returned on create-like operations when the target
	// override already exists.
	ErrExists = errors.New("display profile already exists")
	// ErrInvalidName is returned when a profile name violates the
	// identifier pattern.
	ErrInvalidName = errors.New("display profile name must contain only letters, digits, hyphens, and underscores")
)

// InvalidConfigError reports a profile file that failed structural or
// semantic validation. Name identifies the offending profile.
type InvalidConfigError struct {
	Name   string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid display profile %q: %s", e.Name, e.Reason)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name matches the profile identifier pattern.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Color is one palette entry as an RGB triple.
type Color [3]uint8

// Profile is the validated in-memory representation of one panel:
// target resolution, ordered color palette, and gamma. A Profile can only
// be obtained through ParseProfile, so an instance is always valid.
//
// Palette order is semantically significant: it fixes quantization index
// assignment, so it is never sorted or deduplicated.
type Profile struct {
	Name    string
	Width   int
	Height  int
	Palette []Color
	Gamma   float64
}

// profileFile mirrors the on-disk YAML mapping.
type profileFile struct {
	Resolution struct {
		Width  *int `yaml:"width"`
		Height *int `yaml:"height"`
	} `yaml:"resolution"`
	ColorMapping struct {
		Palette [][]int `yaml:"palette"`
	} `yaml:"color_mapping"`
	Gamma *float64 `yaml:"gamma"`
}

// ParseProfile parses and validates a profile file. It is the only
// constructor for Profile; every failure is an *InvalidConfigError naming
// the profile.
func ParseProfile(name string, content []byte) (Profile, error) {
	invalid := func(format string, args ...any) (Profile, error) {
		return Profile{}, &InvalidConfigError{Name: name, Reason: fmt.Sprintf(format, args...)}
	}

	var f profileFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return invalid("malformed YAML: %v", err)
	}

	if f.Resolution.Width == nil || f.Resolution.Height == nil {
		return invalid("missing or invalid resolution")
	}
	width, height := *f.Resolution.Width, *f.Resolution.Height
	if width <= 0 || height <= 0 {
		return invalid("resolution must be positive, got %dx%d", width, height)
	}

	if len(f.ColorMapping.Palette) == 0 {
		return invalid("missing or invalid color_mapping")
	}
	if len(f.ColorMapping.Palette) > 256 {
		return invalid("palette has %d entries, maximum is 256", len(f.ColorMapping.Palette))
	}

	palette := make([]Color, len(f.ColorMapping.Palette))
	for i, entry := range f.ColorMapping.Palette {
		if len(entry) != 3 {
			return invalid("palette entry %d: expected [R, G, B], got %v", i, entry)
		}
		for c, v := range entry {
			if v < 0 || v > 255 {
				return invalid("palette entry %d: channel value %d out of range 0-255", i, v)
			}
			palette[i][c] = uint8(v)
		}
	}

	gamma := 1.0
	if f.Gamma != nil {
		gamma = *f.Gamma
	}
	if gamma <= 0 {
		return invalid("gamma must be positive, got %v", gamma)
	}

	return Profile{
		Name:    name,
		Width:   width,
		Height:  height,
		Palette: palette,
		Gamma:   gamma,
	}, nil
}
