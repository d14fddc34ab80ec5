package corpus

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Source) []string {
	t.Helper()
	out := []string{}
	for record, err := range s.All() {
		require.NoError(t, err)
		out = append(out, record)
	}
	return out
}

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func sliceStream(records ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestFromList_RepeatableInOrder(t *testing.T) {
	src := FromList([]string{"uno", "dos", "tres"})

	assert.Equal(t, KindList, src.Kind())
	assert.True(t, src.Materialized())
	assert.Equal(t, []string{"uno", "dos", "tres"}, drain(t, src))
	assert.Equal(t, []string{"uno", "dos", "tres"}, drain(t, src))
}

func TestFromPath_StripsTrailingNewlineAndRereads(t *testing.T) {
	path := writeCorpus(t, "hola gente\r\n  con espacios  \n\nultima")
	src := FromPath(path)

	expected := []string{"hola gente", "  con espacios  ", "", "ultima"}
	assert.Equal(t, KindPath, src.Kind())
	assert.False(t, src.Materialized())
	assert.Equal(t, expected, drain(t, src))

	// the file is opened again on every iteration
	require.NoError(t, os.WriteFile(path, []byte("cambiado\n"), 0644))
	assert.Equal(t, []string{"cambiado"}, drain(t, src))
}

func TestFromPath_MissingFileYieldsError(t *testing.T) {
	src := FromPath(filepath.Join(t.TempDir(), "missing.txt"))

	var got []error
	for _, err := range src.All() {
		got = append(got, err)
	}
	require.Len(t, got, 1)
	assert.Error(t, got[0])
}

func TestFromStream_SecondIterationYieldsNothing(t *testing.T) {
	src := FromStream(sliceStream("a", "b", "c"))

	assert.Equal(t, []string{"a", "b", "c"}, drain(t, src))
	assert.Empty(t, drain(t, src))
}

func TestFromStream_PartialIterationConsumesStream(t *testing.T) {
	src := FromStream(sliceStream("a", "b", "c"))

	for record := range src.All() {
		assert.Equal(t, "a", record)
		break
	}
	assert.Empty(t, drain(t, src))
}

func TestFromStream_StopsAfterError(t *testing.T) {
	boom := errors.New("boom")
	src := FromStream(func(yield func(string, error) bool) {
		if !yield("ok", nil) {
			return
		}
		if !yield("", boom) {
			return
		}
		yield("never", nil)
	})

	var records []string
	var errs []error
	for record, err := range src.All() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	assert.Equal(t, []string{"ok"}, records)
	assert.Equal(t, []error{boom}, errs)
}

func TestFromLines(t *testing.T) {
	lines := []string{"x", "y"}
	i := 0
	src := FromLines(func() (string, bool, error) {
		if i >= len(lines) {
			return "", false, nil
		}
		i++
		return lines[i-1], true, nil
	})

	assert.Equal(t, []string{"x", "y"}, drain(t, src))
}

func TestNew_DispatchesOnShape(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
	}{
		{"string slice", []string{"a"}, KindList},
		{"any slice of strings", []any{"a", "b"}, KindList},
		{"path", "corpus.txt", KindPath},
		{"seq2", sliceStream("a"), KindStream},
		{"plain func", func(yield func(string, error) bool) {}, KindStream},
		{"seq", iter.Seq[string](func(yield func(string) bool) {}), KindStream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, src.Kind())
		})
	}
}

func TestNew_RejectsUnsupportedShapes(t *testing.T) {
	for _, in := range []any{42, map[string]string{}, []any{"a", 1}, nil} {
		_, err := New(in)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCorpus), "input %#v", in)
	}
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	records, err := FromStream(sliceStream("a", "b")).Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, records)

	list := []string{"x"}
	copied, err := FromList(list).Collect(ctx)
	require.NoError(t, err)
	copied[0] = "changed"
	assert.Equal(t, "x", list[0])
}
