// Command validate checks the game variant JSON files in a directory
// (../configs by default). It checks:
//   - JSON structure, unknown fields and required fields
//   - Grid size, start tiles and four probability ranges
//   - Win value is a power of two
//   - Reachability: the win tile can be built on the grid at all
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wricardo/duel2048/game/agent"
	"github.com/wricardo/duel2048/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single variant file
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var variant engine.Variant
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&variant); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}

	if variant.Name == "" {
		result.fail("name is required")
	}
	if variant.Description == "" {
		result.fail("description is required")
	}

	rules := variant.Rules
	if rules.Size < engine.MinGridSize || rules.Size > engine.MaxGridSize {
		result.fail("grid_size must be between %d and %d, got %d", engine.MinGridSize, engine.MaxGridSize, rules.Size)
	}
	if rules.StartTiles < 1 || rules.StartTiles >= rules.Size*rules.Size {
		result.fail("start_tiles must be at least 1 and leave a free cell, got %d", rules.StartTiles)
	}
	if rules.WinValue < engine.MinWinValue || !engine.IsPowerOfTwo(rules.WinValue) {
		result.fail("win_value must be a power of two >= %d, got %d", engine.MinWinValue, rules.WinValue)
	}
	if rules.FourProbability < 0 || rules.FourProbability > 1 {
		result.fail("four_probability must be within [0,1], got %g", rules.FourProbability)
	}

	if result.Valid {
		reachability := validateReachability(rules)
		if !reachability.Valid {
			result.Valid = false
		}
		result.Errors = append(result.Errors, reachability.Errors...)
	}

	// Anything the checks above missed
	if result.Valid {
		if err := engine.ValidateVariant(&variant); err != nil {
			result.fail("%v", err)
		}
	}

	if result.Valid {
		result.Errors = append(result.Errors,
			fmt.Sprintf("✓ Name: %s", variant.Name),
			fmt.Sprintf("✓ Grid: %dx%d", rules.Size, rules.Size),
			fmt.Sprintf("✓ Start tiles: %d", rules.StartTiles),
			fmt.Sprintf("✓ Win tile: %d", rules.WinValue),
			fmt.Sprintf("✓ Four probability: %g", rules.FourProbability),
		)
		if rules.Size == agent.BoardSize {
			result.Errors = append(result.Errors, "✓ Agents: available")
		} else {
			result.Errors = append(result.Errors, "✓ Agents: not available (human play only)")
		}
	}

	return result
}

// maxTile is the largest tile a grid can ever hold. Building 2^k needs a
// ladder of k-1 distinct tiles plus the spawn that completes it, so the
// ladder must fit in the cells; a spawned 4 saves one rung.
func maxTile(rules engine.Rules) int {
	exp := rules.Size * rules.Size
	if rules.FourProbability > 0 {
		exp++
	}
	if exp > 62 {
		exp = 62
	}
	return 1 << exp
}

// validateReachability ensures the win tile fits the grid
func validateReachability(rules engine.Rules) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	limit := maxTile(rules)
	if rules.WinValue > limit {
		result.fail("Reachability failure: win tile %d cannot be built on a %dx%d grid (max %d)",
			rules.WinValue, rules.Size, rules.Size, limit)
		if rules.FourProbability == 0 {
			result.Errors = append(result.Errors, "Hint: a four_probability above 0 doubles the largest tile")
		}
		return result
	}

	result.Errors = append(result.Errors, fmt.Sprintf("✓ Reachability: win tile %d fits a %dx%d grid (max %d)",
		rules.WinValue, rules.Size, rules.Size, limit))
	return result
}

// main validates every *.json file in the directory given as the first
// argument, printing a concise report and exiting with non-zero status if
// any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(configDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No variant files found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All variants are valid!")
	} else {
		fmt.Println("❌ Some variants have errors")
		os.Exit(1)
	}
}
