package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlagColor is one of the fixed flag colors a post can carry.
type FlagColor uint8

const (
	FlagBlue FlagColor = iota + 1
	FlagGreen
	FlagYellow
	FlagOrange
	FlagRed
	FlagPurple
)

// AllFlagColors lists every color in display order.
var AllFlagColors = []FlagColor{FlagBlue, FlagGreen, FlagYellow, FlagOrange, FlagRed, FlagPurple}

var flagNames = map[FlagColor]string{
	FlagBlue:   "blue",
	FlagGreen:  "green",
	FlagYellow: "yellow",
	FlagOrange: "orange",
	FlagRed:    "red",
	FlagPurple: "purple",
}

// ParseFlagColor maps a case-insensitive color name to a FlagColor.
func ParseFlagColor(s string) (FlagColor, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range flagNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown flag color: %q", s)
}

// Valid reports whether c is one of the enumerated colors.
func (c FlagColor) Valid() bool {
	_, ok := flagNames[c]
	return ok
}

func (c FlagColor) String() string {
	if n, ok := flagNames[c]; ok {
		return n
	}
	return fmt.Sprintf("flag(%d)", uint8(c))
}

// MarshalJSON encodes the color by name.
func (c FlagColor) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a color name.
func (c *FlagColor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFlagColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FlagSet is a set of flag colors stored as a bitmask.
type FlagSet uint8

// NewFlagSet builds a set from the given colors.
func NewFlagSet(colors ...FlagColor) FlagSet {
	var s FlagSet
	for _, c := range colors {
		s = s.With(c)
	}
	return s
}

func bit(c FlagColor) FlagSet {
	return 1 << (c - 1)
}

// Has reports whether the set carries c.
func (s FlagSet) Has(c FlagColor) bool {
	return c.Valid() && s&bit(c) != 0
}

// With returns the set with c added.
func (s FlagSet) With(c FlagColor) FlagSet {
	if !c.Valid() {
		return s
	}
	return s | bit(c)
}

// Without returns the set with c removed.
func (s FlagSet) Without(c FlagColor) FlagSet {
	if !c.Valid() {
		return s
	}
	return s &^ bit(c)
}

// Empty reports whether no flag is set.
func (s FlagSet) Empty() bool {
	return s == 0
}

// Intersects reports whether the sets share at least one color.
func (s FlagSet) Intersects(o FlagSet) bool {
	return s&o != 0
}

// Colors returns the colors in the set in display order.
func (s FlagSet) Colors() []FlagColor {
	colors := []FlagColor{}
	for _, c := range AllFlagColors {
		if s.Has(c) {
			colors = append(colors, c)
		}
	}
	return colors
}

// MarshalJSON encodes the set as an array of color names.
func (s FlagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Colors())
}

// UnmarshalJSON decodes an array of color names.
func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var colors []FlagColor
	if err := json.Unmarshal(data, &colors); err != nil {
		return err
	}
	*s = NewFlagSet(colors...)
	return nil
}
