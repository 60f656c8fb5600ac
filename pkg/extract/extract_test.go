package extract

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeClipboard struct {
	reads   []string
	i       int
	written string
}

func (f *fakeClipboard) ReadText() (string, error) {
	if f.i >= len(f.reads) {
		return "", errors.New("empty")
	}
	s := f.reads[f.i]
	f.i++
	return s, nil
}

func (f *fakeClipboard) WriteText(s string) error {
	f.written = s
	return nil
}

func TestFinders(t *testing.T) {
	v, ok := FindAverbacao("Status: OK\nNúmero de Averbação:   0601234\nfim")
	require.True(t, ok)
	require.Equal(t, "0601234", v)

	_, ok = FindAverbacao("Número de Averbação: pendente")
	require.False(t, ok)

	v, ok = FindCTe("Documento CT-e nº 004512 autorizado")
	require.True(t, ok)
	require.Equal(t, "004512", v)

	v, ok = FindCTe("CTE: 98765")
	require.True(t, ok)
	require.Equal(t, "98765", v)

	_, ok = FindCTe("nenhum documento")
	require.False(t, ok)

	key := "3524 0312 3456 7800 0190 5700 1000 0045 1210 0004 5120"
	v, ok = FindAccessKey("Chave: " + key)
	require.True(t, ok)
	require.Len(t, v, 44)
}

func TestExtractRetriesThenSucceeds(t *testing.T) {
	cb := &fakeClipboard{reads: []string{"loading", "CT-e 1234"}}
	copies := 0
	e := &Extractor{
		Clipboard: cb,
		Attempts:  3,
		Delay:     time.Millisecond,
		Publish:   true,
		Copy:      func(context.Context) error { copies++; return nil },
	}
	v, err := e.Extract(context.Background(), "cte", FindCTe)
	require.NoError(t, err)
	require.Equal(t, "1234", v)
	require.Equal(t, 2, copies)
	require.Equal(t, "1234", cb.written)
}

func TestExtractGivesUp(t *testing.T) {
	cb := &fakeClipboard{reads: []string{"a", "b", "c", "CT-e 1"}}
	e := &Extractor{Clipboard: cb, Attempts: 3, Delay: time.Millisecond}
	_, err := e.Extract(context.Background(), "cte", FindCTe)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrExtractionFailed))
	require.Equal(t, 3, cb.i)
}

func TestExtractHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &Extractor{Clipboard: &fakeClipboard{reads: []string{"x", "x"}}, Attempts: 2, Delay: time.Hour}
	_, err := e.Extract(ctx, "cte", FindCTe)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractWithoutClipboard(t *testing.T) {
	_, err := (&Extractor{}).Extract(context.Background(), "cte", FindCTe)
	require.Error(t, err)
}
