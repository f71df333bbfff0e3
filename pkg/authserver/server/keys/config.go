// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

// Config holds configuration for creating a KeyProvider.
type Config struct {
	// KeyDir is the directory containing PEM-encoded private key files.
	// All key filenames are relative to this directory.
	KeyDir string `json:"key_dir,omitempty" yaml:"key_dir,omitempty"`

	// SigningKeyFile is the filename of the primary signing key (relative to KeyDir).
	// If both KeyDir and SigningKeyFile are empty, ephemeral keys are generated.
	SigningKeyFile string `json:"signing_key_file,omitempty" yaml:"signing_key_file,omitempty"`

	// FallbackKeyFiles are filenames of additional keys (relative to KeyDir).
	// They serve algorithm families the primary key does not, and keep
	// rotated-out keys in the JWKS document until their tokens expire.
	FallbackKeyFiles []string `json:"fallback_key_files,omitempty" yaml:"fallback_key_files,omitempty"`

	// DefaultAlgorithm is used when a caller does not ask for a specific one.
	DefaultAlgorithm string `json:"default_algorithm,omitempty" yaml:"default_algorithm,omitempty"`
}

// NewProviderFromConfig creates a KeyProvider based on the configuration.
//
// Behavior:
//   - If KeyDir is set: load keys from directory
//   - Otherwise: return GeneratingProvider (ephemeral keys for development)
func NewProviderFromConfig(cfg Config) (KeyProvider, error) {
	if cfg.KeyDir != "" {
		return NewFileProvider(cfg)
	}
	return NewGeneratingProvider(cfg.DefaultAlgorithm), nil
}
