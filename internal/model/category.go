package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Category is a tracked interaction kind. Each category owns one heatmap slot.
type Category uint8

const (
	CategoryClick Category = iota
	CategoryContext
	CategoryHover

	// NumCategories is the number of heatmap slots on a page.
	NumCategories = 3
)

var categoryNames = [NumCategories]string{"click", "context", "hover"}

// AllCategories returns every category in slot order.
func AllCategories() []Category {
	return []Category{CategoryClick, CategoryContext, CategoryHover}
}

func (c Category) Valid() bool { return int(c) < NumCategories }

func (c Category) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return categoryNames[c]
}

// ParseCategory maps an event name to its category.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, eris.Errorf("model: unknown category %q", s)
}

// ParseCategories parses a list of event names, rejecting duplicates.
func ParseCategories(names []string) ([]Category, error) {
	out := make([]Category, 0, len(names))
	seen := make(map[Category]bool, len(names))
	for _, n := range names {
		c, err := ParseCategory(n)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, eris.Errorf("model: duplicate category %q", n)
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, eris.Errorf("model: unknown category %d", c)
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Point is a viewport coordinate reported by a client.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
