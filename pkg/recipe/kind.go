package recipe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of recipe variants.
type Kind int

const (
	// Production transforms inputs into outputs in a manufacturing building.
	Production Kind = iota
	// Ore extracts a raw resource from a node with a given purity.
	Ore
	// Generator burns fuel to produce Power.
	Generator
)

var kindNames = [...]string{
	Production: "production",
	Ore:        "ore",
	Generator:  "generator",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= Production && k <= Generator
}

// ParseKind parses a kind name. The empty string means Production.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "production":
		return Production, nil
	case "ore":
		return Ore, nil
	case "generator":
		return Generator, nil
	}
	return 0, fmt.Errorf("unknown recipe kind %q", s)
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Purity of a resource node.
type Purity string

// Node purities.
const (
	Impure Purity = "Impure"
	Normal Purity = "Normal"
	Pure   Purity = "Pure"
)

// Purities lists node purities from poorest to richest.
var Purities = []Purity{Impure, Normal, Pure}

// Multiplier is the extraction rate factor of the purity.
func (p Purity) Multiplier() float64 {
	switch p {
	case Impure:
		return 0.5
	case Pure:
		return 2
	default:
		return 1
	}
}

// MinerMarks lists the extractor generations an ore recipe expands into.
var MinerMarks = []int{1, 2, 3}

// MarkMultiplier is the extraction rate factor of an extractor generation.
func MarkMultiplier(mark int) float64 {
	switch mark {
	case 2:
		return 2
	case 3:
		return 4
	default:
		return 1
	}
}

// OreNode describes the extractor and node behind an Ore recipe.
type OreNode struct {
	Mark   int    `json:"mark"`
	Purity Purity `json:"purity"`
}

// Multiplier is the combined rate factor of extractor and node.
func (n OreNode) Multiplier() float64 {
	return MarkMultiplier(n.Mark) * n.Purity.Multiplier()
}
