package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/corpus"
	apperrors "github.com/julchia/pypipe-preprocessing-tool/internal/pkg/errors"
	"github.com/julchia/pypipe-preprocessing-tool/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_OpenByAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "norm_only.yml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  regex_norm:\n    active: true\n"), 0644))

	aliases := map[string]string{"norm_only": path}
	svc := NewService(func(ref string) string {
		if p, ok := aliases[ref]; ok {
			return p
		}
		return ref
	}, WithLogger(logger.Discard()))

	byAlias, err := svc.Open("norm_only")
	require.NoError(t, err)
	assert.Equal(t, path, byAlias.Document().Source)

	byPath, err := svc.Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"regex_norm"}, byPath.Document().Active())

	_, err = svc.Open("prepro_9")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigError))
}

func TestService_OpenAliasRejectsPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "norm_only.yml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  regex_norm:\n    active: true\n"), 0644))

	svc := NewService(func(ref string) string {
		if ref == "norm_only" {
			return path
		}
		return ref
	}, WithLogger(logger.Discard()))

	p, err := svc.OpenAlias("norm_only")
	require.NoError(t, err)
	assert.Equal(t, path, p.Document().Source)

	_, err = svc.OpenAlias(path)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigError))

	_, err = NewService(nil).OpenAlias("norm_only")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfigError))
}

func TestDocument_Paths(t *testing.T) {
	doc, err := ParseDocument([]byte(`
pipeline:
  regex_norm:
    active: true
    path_to_save_normcorpus: out/norm
  countvec:
    active: true
    path_to_get_trained_model:
    path_to_save_model: ""
    path_to_save_vocabulary: models/vocab
    max_features: 10
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"out/norm", "models/vocab"}, doc.Paths())
}

func TestService_OpenDocumentAndRun(t *testing.T) {
	svc := NewService(nil, WithLogger(logger.Discard()))

	p, err := svc.OpenDocument([]byte(`{"pipeline": {"regex_norm": {"active": true}}}`))
	require.NoError(t, err)
	assert.Equal(t, InlineSource, p.Document().Source)

	ctx := context.Background()
	out, err := Run(ctx, p, "", corpus.FromList([]string{"HOLA"}), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"regex_norm"}, out.Stages)

	out, err = Run(ctx, p, "regex_norm", corpus.FromList([]string{"HOLA"}), false)
	require.NoError(t, err)
	records, err := out.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hola"}, records)
}
