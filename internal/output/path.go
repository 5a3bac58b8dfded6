package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"el2mcp/internal/model"
)

// DefaultBaseDir returns the per-user desktop directory used as the sandbox
// root when no base path is configured. Falls back to the temp directory when
// the home directory cannot be determined.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return os.TempDir()
	}
	return filepath.Join(home, "Desktop")
}

// ResolveOutputDir turns an optional requested directory plus the configured
// base directory into an absolute directory that exists after the call.
//
// A relative request is resolved against base and must stay inside it; escape
// attempts fail with model.ErrInvalidPath. An absolute request bypasses the
// base entirely — this mirrors the resource URI contract and is the documented
// escape surface for callers that explicitly opt out of the sandbox.
func ResolveOutputDir(requested, base string) (string, error) {
	baseAbs, err := resolveBase(base)
	if err != nil {
		return "", err
	}

	req := strings.TrimSpace(requested)
	var target string
	switch {
	case req == "":
		target = baseAbs
	case filepath.IsAbs(req):
		target = filepath.Clean(req)
	default:
		target = filepath.Clean(filepath.Join(baseAbs, req))
		if !isWithin(baseAbs, target) {
			return "", fmt.Errorf("%w: output directory %q is outside of base directory %q", model.ErrInvalidPath, target, baseAbs)
		}
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("%w: create output directory %s: %v", model.ErrIOFailure, target, err)
	}

	// Containment is re-validated on the symlink-resolved paths. MkdirAll
	// above guarantees both directories exist, so EvalSymlinks only fails on
	// permission problems.
	if req != "" && !filepath.IsAbs(req) {
		baseReal, berr := filepath.EvalSymlinks(baseAbs)
		targetReal, terr := filepath.EvalSymlinks(target)
		if berr == nil && terr == nil && !isWithin(baseReal, targetReal) {
			return "", fmt.Errorf("%w: output directory %q resolves outside of base directory %q", model.ErrInvalidPath, targetReal, baseReal)
		}
	}

	return target, nil
}

func resolveBase(base string) (string, error) {
	baseDir := strings.TrimSpace(base)
	if baseDir == "" {
		baseDir = DefaultBaseDir()
	}
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("%w: base directory %q: %v", model.ErrInvalidPath, baseDir, err)
	}
	return filepath.Clean(baseAbs), nil
}

// isWithin reports whether target equals base or sits below it. Both paths
// must already be absolute and cleaned; the check is ancestor-based, never a
// raw string-prefix comparison.
func isWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
