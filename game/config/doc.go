// Package config manages the named game variants.
//
// A variant is a JSON file in the variants directory (configs/ by default)
// named <id>.json:
//
//	{
//	  "name": "Big",
//	  "description": "5x5 grid with room to breathe, reach 4096",
//	  "grid_size": 5,
//	  "start_tiles": 2,
//	  "win_value": 4096,
//	  "four_probability": 0.1
//	}
//
// The "classic" variant (4x4, two start tiles, 2048) is built in and is used
// when the directory does not define it. It is also the default for new
// sessions unless SetDefault picks another one.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	variant, err := manager.LoadConfig("big")
//	configs, err := manager.ListConfigs()
//
// Variants are validated on load and on save; files that fail validation
// are reported as ErrInvalidConfig and skipped by ListConfigs.
package config
