package output

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"el2mcp/internal/model"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".flac": {},
	".ogg":  {},
	".aac":  {},
	".opus": {},
	".webm": {},
}

// HandleInputFile validates a user-supplied input file reference and returns
// its absolute path. Missing files fail with model.ErrFileNotFound; when
// audioCheck is set, files that do not look like a recognized audio container
// fail with model.ErrUnsupportedContent.
//
// Input files are read targets, not write targets, so there is deliberately
// no containment check against the base directory here — reads from
// arbitrary paths are allowed while writes stay sandboxed.
func HandleInputFile(path string, audioCheck bool) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", fmt.Errorf("%w: input file path is required", model.ErrFileNotFound)
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: input file path %q: %v", model.ErrFileNotFound, p, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: input file %s does not exist", model.ErrFileNotFound, abs)
		}
		return "", fmt.Errorf("%w: stat %s: %v", model.ErrIOFailure, abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory, not a file", model.ErrFileNotFound, abs)
	}

	if audioCheck && !looksLikeAudio(abs) {
		return "", fmt.Errorf("%w: %s does not look like a supported audio file", model.ErrUnsupportedContent, abs)
	}

	return abs, nil
}

// looksLikeAudio is a best-effort container guard: recognized extension, or a
// recognizable magic number for files with an unknown extension. Valid audio
// behind an unrecognized extension can still be rejected; that is an accepted
// limitation.
func looksLikeAudio(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := audioExtensions[ext]; ok {
		return true
	}
	return sniffAudioMagic(path)
}

func sniffAudioMagic(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 12)
	n, err := f.Read(head)
	if err != nil || n < 4 {
		return false
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("ID3")):
		return true // MP3 with ID3 tag
	case head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return true // raw MPEG audio frame sync
	case bytes.HasPrefix(head, []byte("RIFF")) && n >= 12 && bytes.Equal(head[8:12], []byte("WAVE")):
		return true
	case bytes.HasPrefix(head, []byte("OggS")):
		return true
	case bytes.HasPrefix(head, []byte("fLaC")):
		return true
	default:
		return false
	}
}
