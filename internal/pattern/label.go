package pattern

import (
	"fmt"
	"strings"
)

// Label is a chart pattern class
type Label int

const (
	NoPattern Label = iota
	DoubleBottom
	DoubleTop
	RisingWedge
	FallingWedge
	HeadAndShoulders
)

var labelNames = map[Label]string{
	NoPattern:        "No Pattern",
	DoubleBottom:     "Double Bottom",
	DoubleTop:        "Double Top",
	RisingWedge:      "Rising Wedge",
	FallingWedge:     "Falling Wedge",
	HeadAndShoulders: "Head and Shoulders",
}

func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// IsWedge reports whether the label is either wedge direction
func (l Label) IsWedge() bool {
	return l == RisingWedge || l == FallingWedge
}

// MarshalText encodes the label by name
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a label name
func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLabel accepts display names case-insensitively, with or without spaces
func ParseLabel(s string) (Label, error) {
	key := normalize(s)
	for l, name := range labelNames {
		if normalize(name) == key {
			return l, nil
		}
	}
	return NoPattern, fmt.Errorf("unknown pattern label %q", s)
}

// Matches reports whether a model's class name refers to this label.
// A bare "Wedge" class matches both wedge directions.
func (l Label) Matches(className string) bool {
	key := normalize(className)
	if key == "wedge" {
		return l.IsWedge()
	}
	if key == "nopattern" || key == "none" {
		return l == NoPattern
	}
	return key == normalize(l.String())
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "&", "and")
}
