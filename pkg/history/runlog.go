package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

const fallbackLogName = "execucao"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName turns a script name into something safe for a file name:
// accents are stripped, everything else outside [A-Za-z0-9._-] becomes "-".
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r > unicode.MaxASCII || unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	s := unsafeNameChars.ReplaceAllString(b.String(), "-")
	s = strings.Trim(s, "-._")
	if s == "" {
		return fallbackLogName
	}
	return s
}

func LogFilename(scriptName string, startedAt time.Time) string {
	return fmt.Sprintf("%s-%s.log", startedAt.Format("20060102-150405"), SanitizeName(scriptName))
}

// RunLog appends a run's output lines to its log file.
type RunLog struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func OpenRunLog(dir, scriptName string, startedAt time.Time) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir logs dir")
	}
	path := filepath.Join(dir, LogFilename(scriptName, startedAt))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open run log")
	}
	l := &RunLog{path: path, f: f, w: bufio.NewWriter(f)}
	if _, err := fmt.Fprintf(l.w, "### Log de execução - %s ###\n", scriptName); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "write log header")
	}
	if err := l.w.Flush(); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "flush log header")
	}
	return l, nil
}

func (l *RunLog) Path() string { return l.path }

func (l *RunLog) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("run log closed")
	}
	if _, err := l.w.WriteString(strings.TrimRight(line, "\r\n") + "\n"); err != nil {
		return errors.Wrap(err, "write run log")
	}
	return errors.Wrap(l.w.Flush(), "flush run log")
}

func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	ferr := l.w.Flush()
	cerr := l.f.Close()
	l.f = nil
	if ferr != nil {
		return errors.Wrap(ferr, "flush run log")
	}
	return errors.Wrap(cerr, "close run log")
}

// LatestLog returns the most recently modified .log file in dir.
func LatestLog(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "read logs dir")
	}
	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", errors.Errorf("no logs in %s", dir)
	}
	return best, nil
}
