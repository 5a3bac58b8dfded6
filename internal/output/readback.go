package output

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"el2mcp/internal/model"
)

// ReadResource dereferences a previously returned resource handle: a file
// name relative to the base directory.
//
// The handle is an untrusted string round-tripped through the caller, so
// containment is re-validated here independently of how the name was
// produced, and the check fails closed (model.ErrPathEscape) rather than
// serving anything outside the sandbox. A file that existed when named but
// has since been deleted fails with model.ErrNotFound. Absolute names bypass
// relative resolution entirely, matching ResolveOutputDir's contract.
func ReadResource(filename, base string) (*EmbeddedResource, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return nil, fmt.Errorf("%w: resource name is required", model.ErrNotFound)
	}

	baseAbs, err := resolveBase(base)
	if err != nil {
		return nil, err
	}

	var target string
	if filepath.IsAbs(name) {
		target = filepath.Clean(name)
	} else {
		target = filepath.Clean(filepath.Join(baseAbs, name))
		if !isWithin(baseAbs, target) {
			return nil, fmt.Errorf("%w: resource path %q is outside of allowed directory %q", model.ErrPathEscape, target, baseAbs)
		}
		// Second containment pass on the symlink-resolved location, so a
		// link planted under the base cannot point the read elsewhere.
		if targetReal, rerr := filepath.EvalSymlinks(target); rerr == nil {
			baseReal, berr := filepath.EvalSymlinks(baseAbs)
			if berr == nil && !isWithin(baseReal, targetReal) {
				return nil, fmt.Errorf("%w: resource path %q resolves outside of allowed directory %q", model.ErrPathEscape, targetReal, baseReal)
			}
			target = targetReal
		}
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: resource file not found: %s", model.ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: read resource %s: %v", model.ErrIOFailure, name, err)
	}

	mimeType := MIMETypeForExtension(strings.TrimPrefix(filepath.Ext(target), "."))
	resource := &EmbeddedResource{
		URI:      ResourceScheme + "://" + name,
		MIMEType: mimeType,
	}
	if isTextMIME(mimeType) {
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: resource %s is not valid UTF-8 despite textual MIME type %s", model.ErrIOFailure, name, mimeType)
		}
		resource.Text = string(data)
	} else {
		resource.Data = base64.StdEncoding.EncodeToString(data)
	}
	return resource, nil
}
