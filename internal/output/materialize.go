package output

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"el2mcp/internal/model"
)

// Mode selects how generated artifacts are returned to the caller. It is set
// once at startup and immutable for the process lifetime.
type Mode string

const (
	// ModeFiles writes artifacts to disk and returns the file path.
	ModeFiles Mode = "files"
	// ModeResources returns artifacts inline as embedded resources without
	// touching the disk.
	ModeResources Mode = "resources"
	// ModeBoth writes the file and returns the embedded resource.
	ModeBoth Mode = "both"
)

// ResourceScheme is the URI scheme under which delivered artifacts can be
// read back later.
const ResourceScheme = "elevenlabs"

const defaultSuccessTemplate = "Success. File saved as: {file_path}"

// ParseMode validates a configured output mode string. Anything other than
// the three known values is a fatal configuration error.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeFiles:
		return ModeFiles, nil
	case ModeResources:
		return ModeResources, nil
	case ModeBoth:
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("%w: output mode must be one of 'files', 'resources', 'both', got %q", model.ErrInvalidConfiguration, raw)
	}
}

// WritesFiles reports whether this mode persists artifacts to disk.
func (m Mode) WritesFiles() bool { return m == ModeFiles || m == ModeBoth }

// ReturnsResources reports whether this mode returns inline resources.
func (m Mode) ReturnsResources() bool { return m == ModeResources || m == ModeBoth }

// Config is the immutable process-wide delivery configuration, constructed at
// startup and injected into every component that delivers artifacts.
type Config struct {
	Mode    Mode
	BaseDir string
}

// EmbeddedResource is the in-band representation of an artifact: a URI of the
// form elevenlabs://{filename}, a MIME type, and the payload as UTF-8 text
// for textual MIME types or base64 otherwise. Exactly one of Text and Data is
// set.
type EmbeddedResource struct {
	URI      string
	MIMEType string
	Text     string
	Data     string
}

// Result is the outcome of delivering a single artifact. FilePath and Text
// are set in files/both modes, Resource in resources/both modes.
type Result struct {
	Text     string
	FilePath string
	Resource *EmbeddedResource
}

var mimeByExtension = map[string]string{
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"json": "application/json",
	"txt":  "text/plain",
	"zip":  "application/zip",
}

// MIMETypeForExtension maps a file extension (without the dot) to a MIME
// type, defaulting to application/octet-stream.
func MIMETypeForExtension(ext string) string {
	if m, ok := mimeByExtension[strings.ToLower(strings.TrimSpace(ext))]; ok {
		return m
	}
	return "application/octet-stream"
}

func isTextMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/")
}

// Deliver materializes one artifact according to mode.
//
// In files mode the artifact is written to directory/filename and the result
// text carries the absolute path, formatted through successTemplate's
// {file_path} placeholder when given. In resources mode nothing touches the
// disk and the artifact comes back as an EmbeddedResource. Both mode does
// both. A write failure surfaces as model.ErrIOFailure; it is never
// downgraded to a resources-only response.
func Deliver(data []byte, directory, filename string, mode Mode, successTemplate string) (Result, error) {
	res := Result{}

	if mode.WritesFiles() {
		path := filepath.Join(directory, filename)
		if err := writeFileAtomic(path, data); err != nil {
			return Result{}, fmt.Errorf("%w: write %s: %v", model.ErrIOFailure, path, err)
		}
		res.FilePath = path
		template := successTemplate
		if strings.TrimSpace(template) == "" {
			template = defaultSuccessTemplate
		}
		res.Text = strings.ReplaceAll(template, "{file_path}", path)
	}

	if mode.ReturnsResources() {
		resource, err := newEmbeddedResource(filename, data)
		if err != nil {
			return Result{}, err
		}
		res.Resource = resource
	}

	return res, nil
}

// newEmbeddedResource builds the in-band form of an artifact. Textual MIME
// types must hold valid UTF-8, the same rule ReadResource enforces, so a
// delivered resource always round-trips through a later read-back.
func newEmbeddedResource(filename string, data []byte) (*EmbeddedResource, error) {
	mimeType := MIMETypeForExtension(strings.TrimPrefix(filepath.Ext(filename), "."))
	resource := &EmbeddedResource{
		URI:      ResourceScheme + "://" + filename,
		MIMEType: mimeType,
	}
	if isTextMIME(mimeType) {
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: artifact %s is not valid UTF-8 despite textual MIME type %s", model.ErrUnsupportedContent, filename, mimeType)
		}
		resource.Text = string(data)
	} else {
		resource.Data = base64.StdEncoding.EncodeToString(data)
	}
	return resource, nil
}

// writeFileAtomic writes via a temp file in the target directory followed by
// a rename, so a half-written file is never observable under the final name.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
