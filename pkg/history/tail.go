package history

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// TailLines returns the last n lines of path, reading at most maxBytes from
// the end of the file.
func TailLines(path string, n int, maxBytes int64) ([]string, error) {
	if path == "" {
		return nil, errors.New("missing path")
	}
	if n <= 0 {
		n = 50
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open log")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat log")
	}
	start := int64(0)
	if info.Size() > maxBytes {
		start = info.Size() - maxBytes
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek log")
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read log")
	}
	// drop the partial first line
	if start > 0 {
		if i := bytes.IndexByte(b, '\n'); i >= 0 && i+1 < len(b) {
			b = b[i+1:]
		}
	}

	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = append([]string{}, lines[len(lines)-n:]...)
	}
	return lines, nil
}
