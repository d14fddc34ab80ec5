package storage

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/julchia/pypipe-preprocessing-tool/internal/core/services/normalization"
)

// Target is where a process writes its output
type Target = normalization.Target

// Artifact selects the family of default directories a target falls back to
type Artifact int

const (
	// ArtifactOutput covers normalized corpora and trained models
	ArtifactOutput Artifact = iota
	// ArtifactVocabulary covers featurizer vocabularies
	ArtifactVocabulary
)

func (a Artifact) String() string {
	if a == ArtifactVocabulary {
		return "vocab"
	}
	return "process"
}

// CorpusStore manages pipeline artifacts in the local filesystem
type CorpusStore struct {
	basePath    string
	defaultDirs map[string]string
	vocabDirs   map[string]string
	logger      *slog.Logger
}

// StoreConfig for the corpus store
type StoreConfig struct {
	BasePath    string            // Base directory for defaults and uploads (e.g., "data")
	DefaultDirs map[string]string // process alias -> output directory, relative to BasePath
	VocabDirs   map[string]string // process alias -> vocabulary directory, relative to BasePath
}

// FileMetadata contains information about uploaded corpus files
type FileMetadata struct {
	ID           string
	OriginalName string
	StoredPath   string
	Size         int64
	Hash         string
	ContentType  string
	CreatedAt    time.Time
}

// NewCorpusStore creates a new store rooted at cfg.BasePath
func NewCorpusStore(cfg *StoreConfig, logger *slog.Logger) (*CorpusStore, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CorpusStore{
		basePath:    cfg.BasePath,
		defaultDirs: cfg.DefaultDirs,
		vocabDirs:   cfg.VocabDirs,
		logger:      logger,
	}, nil
}

// BasePath returns the root directory of the store
func (s *CorpusStore) BasePath() string {
	return s.basePath
}

// Resolve returns the file a target writes to. A configured directory that
// does not exist falls back to the default directory of the alias, with a
// warning. An unset directory falls back silently.
func (s *CorpusStore) Resolve(target Target, artifact Artifact) (string, error) {
	fileName := target.FileName
	if fileName == "" {
		fileName = normalization.DefaultCorpusFileName
	}

	if target.Dir != "" {
		info, err := os.Stat(target.Dir)
		if err == nil && info.IsDir() {
			return filepath.Join(target.Dir, fileName), nil
		}
		s.logger.Warn("no valid path found, falling back to default",
			slog.String("path", target.Dir),
			slog.String("artifact", artifact.String()),
			slog.String("alias", target.Alias))

		path, derr := s.defaultPath(target.Alias, fileName, artifact)
		if errors.Is(derr, normalization.ErrNoTarget) {
			return "", fmt.Errorf("invalid path %q and no default %s path for alias %q", target.Dir, artifact, target.Alias)
		}
		return path, derr
	}

	return s.defaultPath(target.Alias, fileName, artifact)
}

func (s *CorpusStore) defaultPath(alias, fileName string, artifact Artifact) (string, error) {
	dirs := s.defaultDirs
	if artifact == ArtifactVocabulary {
		dirs = s.vocabDirs
	}

	dir, ok := dirs[alias]
	if !ok {
		return "", fmt.Errorf("alias %q: %w", alias, normalization.ErrNoTarget)
	}

	full := filepath.Join(s.basePath, dir)
	if err := os.MkdirAll(full, 0755); err != nil {
		return "", fmt.Errorf("failed to create default %s directory: %w", artifact, err)
	}

	s.logger.Info("using default path",
		slog.String("alias", alias),
		slog.String("artifact", artifact.String()),
		slog.String("path", full))

	return filepath.Join(full, fileName), nil
}

// WriteAll writes records as a newline-delimited text file
func (s *CorpusStore) WriteAll(ctx context.Context, target Target, records []string) (string, error) {
	path, err := s.Resolve(target, ArtifactOutput)
	if err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create corpus file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, record := range records {
		if _, err := w.WriteString(record); err != nil {
			return "", fmt.Errorf("failed to write corpus file: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return "", fmt.Errorf("failed to write corpus file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush corpus file: %w", err)
	}

	s.logger.Info("corpus stored",
		slog.String("alias", target.Alias),
		slog.String("path", path),
		slog.Int("records", len(records)))

	return path, nil
}

// OpenWriter opens a streaming writer. Every record is flushed to disk as
// soon as it is written.
func (s *CorpusStore) OpenWriter(ctx context.Context, target Target) (normalization.RecordWriter, string, error) {
	path, err := s.Resolve(target, ArtifactOutput)
	if err != nil {
		return nil, "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create corpus file: %w", err)
	}

	s.logger.Info("streaming corpus to file",
		slog.String("alias", target.Alias),
		slog.String("path", path))

	return &lineWriter{file: file, w: bufio.NewWriter(file)}, path, nil
}

type lineWriter struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool
}

func (lw *lineWriter) Write(record string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.closed {
		return os.ErrClosed
	}
	if _, err := lw.w.WriteString(record); err != nil {
		return err
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return err
	}
	return lw.w.Flush()
}

func (lw *lineWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.closed {
		return nil
	}
	lw.closed = true
	flushErr := lw.w.Flush()
	closeErr := lw.file.Close()
	return errors.Join(flushErr, closeErr)
}

// SaveJSON stores v as indented JSON
func (s *CorpusStore) SaveJSON(ctx context.Context, target Target, artifact Artifact, v any) (string, error) {
	path, err := s.Resolve(target, artifact)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", artifact, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", artifact, err)
	}

	s.logger.Info("artifact stored",
		slog.String("alias", target.Alias),
		slog.String("artifact", artifact.String()),
		slog.String("path", path),
		slog.Int("size", len(data)))

	return path, nil
}

// SaveModel stores a trained featurizer model under the process directories
func (s *CorpusStore) SaveModel(ctx context.Context, target Target, v any) (string, error) {
	return s.SaveJSON(ctx, target, ArtifactOutput, v)
}

// SaveVocabulary stores a featurizer vocabulary under the vocabulary
// directories
func (s *CorpusStore) SaveVocabulary(ctx context.Context, target Target, v any) (string, error) {
	return s.SaveJSON(ctx, target, ArtifactVocabulary, v)
}

// LoadJSON decodes the JSON file at path into v. A missing file is reported
// with an error wrapping os.ErrNotExist.
func (s *CorpusStore) LoadJSON(ctx context.Context, path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no data to load in %q: %w", path, os.ErrNotExist)
		}
		return fmt.Errorf("failed to read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", path, err)
	}

	s.logger.Info("artifact loaded", slog.String("path", path))
	return nil
}

// SaveUpload stores an uploaded corpus file and returns its metadata. The
// stored path can be handed to the pipeline as a path corpus.
func (s *CorpusStore) SaveUpload(ctx context.Context, fileID string, filename string, reader io.Reader) (*FileMetadata, error) {
	uploadDir := filepath.Join(s.basePath, "uploads", fileID)
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Sanitize filename
	safeName := filepath.Base(filename)
	destPath := filepath.Join(uploadDir, safeName)

	destFile, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	// Calculate hash while copying
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(destFile, hash), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}

	fileHash := hex.EncodeToString(hash.Sum(nil))

	metadata := &FileMetadata{
		ID:           fileID,
		OriginalName: filename,
		StoredPath:   destPath,
		Size:         size,
		Hash:         fileHash,
		ContentType:  ContentType(filename),
		CreatedAt:    time.Now(),
	}

	s.logger.Info("corpus uploaded",
		slog.String("file_id", fileID),
		slog.String("filename", filename),
		slog.Int64("size", size),
		slog.String("hash", fileHash))

	return metadata, nil
}

// DeleteUpload removes an uploaded corpus
func (s *CorpusStore) DeleteUpload(ctx context.Context, fileID string) error {
	uploadDir := filepath.Join(s.basePath, "uploads", fileID)
	if err := os.RemoveAll(uploadDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete upload directory: %w", err)
	}

	s.logger.Info("upload deleted", slog.String("file_id", fileID))
	return nil
}

// ContentType returns the content type based on file extension
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return "text/plain"
	case ".xlsx", ".xls":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".jsonl", ".ndjson":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
