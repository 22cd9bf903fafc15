package engine

import (
	"encoding/json"
	"fmt"
)

// Variant is a named rule set loaded from a JSON file
type Variant struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rules
}

// ClassicVariant is the built-in 4x4 game to 2048
func ClassicVariant() *Variant {
	return &Variant{
		Name:        "Classic",
		Description: "4x4 grid, two start tiles, reach 2048",
		Rules:       DefaultRules(),
	}
}

// ValidateRules checks that the rules describe a playable game
func ValidateRules(r Rules) error {
	if r.Size < MinGridSize || r.Size > MaxGridSize {
		return fmt.Errorf("%w: grid_size must be between %d and %d, got %d", ErrInvalidRules, MinGridSize, MaxGridSize, r.Size)
	}
	if r.StartTiles < 1 || r.StartTiles >= r.Size*r.Size {
		return fmt.Errorf("%w: start_tiles must be between 1 and %d, got %d", ErrInvalidRules, r.Size*r.Size-1, r.StartTiles)
	}
	if r.WinValue < MinWinValue || !IsPowerOfTwo(r.WinValue) {
		return fmt.Errorf("%w: win_value must be a power of two >= %d, got %d", ErrInvalidRules, MinWinValue, r.WinValue)
	}
	if r.FourProbability < 0 || r.FourProbability > 1 {
		return fmt.Errorf("%w: four_probability must be within [0,1], got %g", ErrInvalidRules, r.FourProbability)
	}
	return nil
}

// ValidateVariant validates a variant's metadata and rules
func ValidateVariant(v *Variant) error {
	if v == nil {
		return fmt.Errorf("variant validation: variant is nil")
	}
	if v.Name == "" {
		return fmt.Errorf("variant validation: name is required")
	}
	if v.Description == "" {
		return fmt.Errorf("variant validation: description is required")
	}
	if err := ValidateRules(v.Rules); err != nil {
		return fmt.Errorf("variant validation: %w", err)
	}
	return nil
}

// ParseVariant decodes and validates a variant from JSON
func ParseVariant(data []byte) (*Variant, error) {
	var v Variant
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse variant: %w", err)
	}
	if err := ValidateVariant(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
