package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckVersionCompatibility(t *testing.T) {
	tests := []struct {
		name          string
		engineVersion string
		fileVersion   string
		expectError   bool
		errorContains string
	}{
		// Compatible cases
		{
			name:          "exact match",
			engineVersion: "1.2.0",
			fileVersion:   "1.2.0",
			expectError:   false,
		},
		{
			name:          "engine patch higher",
			engineVersion: "1.2.1",
			fileVersion:   "1.2.0",
			expectError:   false,
		},
		{
			name:          "file patch higher",
			engineVersion: "1.2.0",
			fileVersion:   "1.2.5",
			expectError:   false,
		},
		{
			name:          "same major minor different patch",
			engineVersion: "2.5.10",
			fileVersion:   "2.5.3",
			expectError:   false,
		},

		// Incompatible cases
		{
			name:          "engine minor higher",
			engineVersion: "1.3.0",
			fileVersion:   "1.2.0",
			expectError:   true,
			errorContains: "minor version mismatch",
		},
		{
			name:          "engine minor lower",
			engineVersion: "1.1.0",
			fileVersion:   "1.2.0",
			expectError:   true,
			errorContains: "minor version mismatch",
		},
		{
			name:          "major version differs",
			engineVersion: "2.0.0",
			fileVersion:   "1.2.0",
			expectError:   true,
			errorContains: "major version mismatch",
		},

		// Development builds skip the check
		{
			name:          "engine is main",
			engineVersion: "main",
			fileVersion:   "1.2.0",
			expectError:   false,
		},
		{
			name:          "engine is main with different file",
			engineVersion: "main",
			fileVersion:   "1.3.0",
			expectError:   false,
		},
		{
			name:          "both are main",
			engineVersion: "main",
			fileVersion:   "main",
			expectError:   false,
		},
		{
			name:          "file is main",
			engineVersion: "1.2.0",
			fileVersion:   "main",
			expectError:   false,
		},

		// Edge cases with v prefix
		{
			name:          "v prefix on engine",
			engineVersion: "v1.2.0",
			fileVersion:   "1.2.0",
			expectError:   false,
		},
		{
			name:          "v prefix on file",
			engineVersion: "1.2.0",
			fileVersion:   "v1.2.0",
			expectError:   false,
		},
		{
			name:          "v prefix on both",
			engineVersion: "v1.2.0",
			fileVersion:   "v1.2.0",
			expectError:   false,
		},

		// Edge cases with prerelease and metadata
		{
			name:          "prerelease version",
			engineVersion: "1.2.0-alpha",
			fileVersion:   "1.2.0",
			expectError:   false,
		},
		{
			name:          "build metadata",
			engineVersion: "1.2.0+build123",
			fileVersion:   "1.2.0",
			expectError:   false,
		},

		// Invalid versions
		{
			name:          "invalid engine version",
			engineVersion: "not-a-version",
			fileVersion:   "1.2.0",
			expectError:   true,
			errorContains: "invalid engine version",
		},
		{
			name:          "invalid result file version",
			engineVersion: "1.2.0",
			fileVersion:   "not-a-version",
			expectError:   true,
			errorContains: "invalid result file version",
		},
		{
			name:          "empty engine version",
			engineVersion: "",
			fileVersion:   "1.2.0",
			expectError:   true,
			errorContains: "invalid engine version",
		},
		{
			name:          "empty file version",
			engineVersion: "1.2.0",
			fileVersion:   "",
			expectError:   true,
			errorContains: "invalid result file version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVersionCompatibility(tt.engineVersion, tt.fileVersion)

			if tt.expectError {
				require.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v)
}
