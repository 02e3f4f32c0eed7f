package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// MaxFileBytes caps how much of a transcript file is read.
const MaxFileBytes = 4 << 20

// File captures a transcript file that another program appends to. A
// missing file reads as empty so the source can appear later.
type File struct {
	Path string
}

func (f *File) Capture(ctx context.Context) (string, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("opening transcript: %w", err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return "", fmt.Errorf("stat transcript: %w", err)
	}
	if size := info.Size(); size > MaxFileBytes {
		// Only the tail is read.
		if _, err := fh.Seek(size-MaxFileBytes, io.SeekStart); err != nil {
			return "", fmt.Errorf("seeking transcript: %w", err)
		}
	}

	data, err := io.ReadAll(io.LimitReader(fh, MaxFileBytes))
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
