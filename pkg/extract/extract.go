package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/desktop"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrExtractionFailed means the code never showed up in the clipboard. Workers
// treat it as fatal.
var ErrExtractionFailed = errors.New("extraction failed")

var (
	averbacaoRe = regexp.MustCompile(`Número de Averbação:\s*(\d+)`)
	cteRe       = regexp.MustCompile(`(?i)\bCT-?e\b[^\d\n]{0,24}(\d{3,})`)
	accessKeyRe = regexp.MustCompile(`\b(\d{44})\b`)
)

// Finder pulls a code out of copied page text.
type Finder func(text string) (string, bool)

func FindAverbacao(text string) (string, bool) {
	return firstGroup(averbacaoRe, text)
}

// FindCTe returns the CT-e number following a "CT-e"/"CTE" label.
func FindCTe(text string) (string, bool) {
	return firstGroup(cteRe, text)
}

// FindAccessKey returns the first 44-digit document access key.
func FindAccessKey(text string) (string, bool) {
	return firstGroup(accessKeyRe, strings.ReplaceAll(text, " ", ""))
}

func firstGroup(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// Extractor reads the clipboard until a Finder matches. Copy is called before
// each read when set (usually ctrl+a, ctrl+c on the page).
type Extractor struct {
	Clipboard desktop.Clipboard
	Copy      func(ctx context.Context) error
	Attempts  int
	Delay     time.Duration
	// Publish puts the extracted value back on the clipboard.
	Publish bool
}

func New(cb desktop.Clipboard) *Extractor {
	return &Extractor{Clipboard: cb, Attempts: DefaultAttempts, Delay: DefaultDelay}
}

func (e *Extractor) Extract(ctx context.Context, name string, find Finder) (string, error) {
	if e.Clipboard == nil {
		return "", errors.Wrap(desktop.ErrUnsupported, "no clipboard")
	}
	attempts := e.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	for i := 1; i <= attempts; i++ {
		if i > 1 {
			t := time.NewTimer(e.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", errors.Wrap(ctx.Err(), "extract")
			case <-t.C:
			}
		}
		if e.Copy != nil {
			if err := e.Copy(ctx); err != nil {
				log.Warn().Err(err).Str("code", name).Int("attempt", i).Msg("copy failed")
				continue
			}
		}
		text, err := e.Clipboard.ReadText()
		if err != nil {
			log.Warn().Err(err).Str("code", name).Int("attempt", i).Msg("clipboard read failed")
			continue
		}
		if v, ok := find(text); ok {
			if e.Publish {
				if err := e.Clipboard.WriteText(v); err != nil {
					return "", errors.Wrap(err, "write clipboard")
				}
			}
			return v, nil
		}
		log.Debug().Str("code", name).Int("attempt", i).Msg("code not in clipboard")
	}
	return "", errors.Wrapf(ErrExtractionFailed, "%s not found after %d attempts", name, attempts)
}
