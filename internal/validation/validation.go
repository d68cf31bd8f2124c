// Package validation provides input validation for the DEX client.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// Token symbols: uppercase alphanumeric, 2-12 chars, starting with a letter
var tokenSymbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,11}$`)

// Chain names as used in chainspecs, e.g. casper-net-1, casper-test
var chainNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

var hexHashRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ErrNodeTooOld is returned when a node reports an API version below the
// configured minimum.
var ErrNodeTooOld = errors.New("node API version below minimum")

// ValidateTokenSymbol validates a token symbol
func ValidateTokenSymbol(symbol string) error {
	if symbol == "" {
		return errors.New("token symbol cannot be empty")
	}
	if !tokenSymbolRegex.MatchString(strings.ToUpper(symbol)) {
		return errors.New("invalid token symbol: must be 2-12 alphanumeric characters starting with a letter")
	}
	return nil
}

// ValidateChainName validates a chain name
func ValidateChainName(name string) error {
	if name == "" {
		return errors.New("chain name cannot be empty")
	}
	if !chainNameRegex.MatchString(name) {
		return errors.New("invalid chain name: must be lowercase alphanumeric with hyphens")
	}
	return nil
}

// ValidateHash validates a 32-byte hex hash, with or without one of the
// allowed prefixes.
func ValidateHash(s string, prefixes ...string) error {
	raw := s
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			raw = strings.TrimPrefix(s, p)
			break
		}
	}
	if !hexHashRegex.MatchString(raw) {
		return fmt.Errorf("invalid hash %q: must be 64 hex characters", s)
	}
	return nil
}

// ValidateDeployHash validates a deploy hash (bare 64-char hex)
func ValidateDeployHash(s string) error {
	if err := ValidateHash(s); err != nil {
		return errors.New("invalid deploy hash: must be 64 hex characters")
	}
	return nil
}

// ValidateVersion validates a semantic version string
func ValidateVersion(v string) error {
	// Normalize: strip leading 'v' if present, then add it back for semver library
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("version cannot be empty")
	}

	// semver library expects version to start with 'v'
	versionWithV := "v" + normalized
	if !semver.IsValid(versionWithV) {
		return errors.New("invalid semver version: must be in format X.Y.Z or X.Y.Z-prerelease")
	}

	parts := strings.SplitN(normalized, "-", 2) // Split off prerelease/build
	mainPart := strings.SplitN(parts[0], "+", 2)[0]
	if strings.Count(mainPart, ".") < 2 {
		return errors.New("invalid semver version: must be in format X.Y.Z (major.minor.patch)")
	}

	return nil
}

// NormalizeVersion normalizes a version string (strips leading 'v')
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// CompareVersions compares two versions
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 string) int {
	n1 := "v" + NormalizeVersion(v1)
	n2 := "v" + NormalizeVersion(v2)
	return semver.Compare(n1, n2)
}

// CheckNodeAPIVersion reports whether a node's api_version satisfies min.
// An empty min accepts any valid version.
func CheckNodeAPIVersion(actual, min string) error {
	if err := ValidateVersion(actual); err != nil {
		return fmt.Errorf("node api_version %q: %w", actual, err)
	}
	if min == "" {
		return nil
	}
	if err := ValidateVersion(min); err != nil {
		return fmt.Errorf("minimum api version %q: %w", min, err)
	}
	if CompareVersions(actual, min) < 0 {
		return fmt.Errorf("%w: node %s, need %s", ErrNodeTooOld, NormalizeVersion(actual), NormalizeVersion(min))
	}
	return nil
}
