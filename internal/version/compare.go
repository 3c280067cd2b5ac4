package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckVersionCompatibility checks if the engine version and the version
// recorded in a persisted result file are compatible.
// Returns nil if compatible, error with details if not.
//
// Compatibility Rules:
//   - If either version is "main" (development build), compatibility check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 is compatible with 1.2.5)
//
// Examples:
//   - Engine 1.2.0, File 1.2.0 -> OK (exact match)
//   - Engine 1.2.1, File 1.2.0 -> OK (patch differs)
//   - Engine 1.3.0, File 1.2.0 -> ERROR (minor differs)
//   - Engine 2.0.0, File 1.2.0 -> ERROR (major differs)
//   - Engine main, File 1.2.0 -> OK (dev build, skip check)
//   - Engine 1.2.0, File main -> OK (dev build, skip check)
func CheckVersionCompatibility(engineVersion, fileVersion string) error {
	// Strip 'v' prefix if present for consistency
	engineVersion = strings.TrimPrefix(engineVersion, "v")
	fileVersion = strings.TrimPrefix(fileVersion, "v")

	// Skip version check for "main" (development builds)
	if engineVersion == "main" || fileVersion == "main" {
		return nil
	}

	// Parse engine version
	engineSemver, err := semver.NewVersion(engineVersion)
	if err != nil {
		return fmt.Errorf("invalid engine version '%s': %w", engineVersion, err)
	}

	// Parse result file version
	fileSemver, err := semver.NewVersion(fileVersion)
	if err != nil {
		return fmt.Errorf("invalid result file version '%s': %w", fileVersion, err)
	}

	// Check major version match
	if engineSemver.Major() != fileSemver.Major() {
		return fmt.Errorf("major version mismatch: engine is %d.x.x but result file was written by %d.x.x",
			engineSemver.Major(), fileSemver.Major())
	}

	// Check minor version match
	if engineSemver.Minor() != fileSemver.Minor() {
		return fmt.Errorf("minor version mismatch: engine is %d.%d.x but result file was written by %d.%d.x",
			engineSemver.Major(), engineSemver.Minor(),
			fileSemver.Major(), fileSemver.Minor())
	}

	// Patch versions can differ, so we're compatible
	return nil
}
