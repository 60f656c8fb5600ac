package desktop

import (
	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
)

// SystemClipboard is the OS clipboard as seen by atotto/clipboard.
type SystemClipboard struct{}

func (SystemClipboard) ReadText() (string, error) {
	s, err := clipboard.ReadAll()
	if err != nil {
		return "", errors.Wrap(err, "read clipboard")
	}
	return s, nil
}

func (SystemClipboard) WriteText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return errors.Wrap(err, "write clipboard")
	}
	return nil
}
