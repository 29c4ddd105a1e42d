package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	dirPerm      = 0o700
	readOnlyPerm = 0o444

	// DefaultOutputName is the file the generation worker writes into its working directory
	DefaultOutputName = "localmodelpaperStyledPhi3.pdf"
)

// Storage is the job-scoped staging arena. Every path it derives lives under
// <root>/<jobID>/, so artifacts of different jobs can never collide.
type Storage struct {
	root       string
	outputName string
	logger     *slog.Logger
}

// JobDir describes a job namespace found on disk
type JobDir struct {
	JobID   string
	ModTime time.Time
}

// NewStorage creates a new Storage rooted at root
func NewStorage(root, outputName string, logger *slog.Logger) (*Storage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage: root is required")
	}
	if outputName == "" {
		outputName = DefaultOutputName
	}
	if filepath.Base(outputName) != outputName {
		return nil, fmt.Errorf("storage: output name %q must be a bare file name", outputName)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure root: %w", err)
	}

	return &Storage{
		root:       abs,
		outputName: outputName,
		logger:     logger,
	}, nil
}

// Root returns the absolute staging root
func (s *Storage) Root() string {
	return s.root
}

// jobDir returns the namespace directory for jobID. Only canonical UUIDs are
// accepted so the identifier can never escape the root.
func (s *Storage) jobDir(jobID string) (string, error) {
	id, err := uuid.Parse(jobID)
	if err != nil || id.String() != jobID {
		return "", fmt.Errorf("%w: invalid job id %q", domain.ErrStorage, jobID)
	}
	return filepath.Join(s.root, jobID), nil
}

// JobDir returns the working directory of a job
func (s *Storage) JobDir(jobID string) (string, error) {
	return s.jobDir(jobID)
}

// CreateJobDir creates the job namespace. It fails if the namespace already
// exists: a job owns its directory exclusively.
func (s *Storage) CreateJobDir(jobID string) error {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: create job dir: %w", domain.ErrStorage, err)
	}
	return nil
}

// Stage persists one input artifact as input<index><ext>. Staged files are
// written exclusively and made read-only.
func (s *Storage) Stage(ctx context.Context, jobID string, index int, data []byte) (domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}
	dir, err := s.jobDir(jobID)
	if err != nil {
		return domain.Artifact{}, err
	}

	mtype := mimetype.Detect(data)
	ext := mtype.Extension()
	if ext == "" {
		ext = ".bin"
	}
	name := fmt.Sprintf("input%d%s", index, ext)
	path := filepath.Join(dir, name)

	if err := writeExclusive(path, data); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: write %s: %w", domain.ErrStorage, name, err)
	}

	s.logger.Debug("Input artifact staged",
		slog.String("job_id", jobID),
		slog.Int("index", index),
		slog.String("name", name),
		slog.Int("size", len(data)),
		slog.String("content_type", mtype.String()),
	)

	return domain.Artifact{
		JobID:       jobID,
		Index:       index,
		Name:        name,
		Path:        path,
		Size:        int64(len(data)),
		ContentType: mtype.String(),
	}, nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return os.Chmod(path, readOnlyPerm)
}

// ResolveOutputPath returns where the generation worker must leave its result.
// The file does not have to exist yet.
func (s *Storage) ResolveOutputPath(jobID string) (string, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, s.outputName), nil
}

// SealOutput confirms the output exists and is non-empty, then makes it
// read-only. A missing or empty file is ErrOutputMissing.
func (s *Storage) SealOutput(jobID string) (domain.Artifact, error) {
	path, err := s.ResolveOutputPath(jobID)
	if err != nil {
		return domain.Artifact{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Artifact{}, fmt.Errorf("%w: %s", domain.ErrOutputMissing, s.outputName)
		}
		return domain.Artifact{}, fmt.Errorf("%w: stat output: %w", domain.ErrStorage, err)
	}
	if !info.Mode().IsRegular() {
		return domain.Artifact{}, fmt.Errorf("%w: %s is not a regular file", domain.ErrOutputMissing, s.outputName)
	}
	if info.Size() == 0 {
		return domain.Artifact{}, fmt.Errorf("%w: %s is empty", domain.ErrOutputMissing, s.outputName)
	}

	if err := os.Chmod(path, readOnlyPerm); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: seal output: %w", domain.ErrStorage, err)
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(path); err == nil {
		contentType = mtype.String()
	}

	return domain.Artifact{
		JobID:       jobID,
		Index:       -1,
		Name:        s.outputName,
		Path:        path,
		Size:        info.Size(),
		ContentType: contentType,
	}, nil
}

// ReadOutput returns the bytes of the job's output artifact
func (s *Storage) ReadOutput(jobID string) ([]byte, error) {
	path, err := s.ResolveOutputPath(jobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOutputMissing, s.outputName)
		}
		return nil, fmt.Errorf("%w: read output: %w", domain.ErrStorage, err)
	}
	return data, nil
}

// Cleanup removes everything under the job namespace. It never fails: errors
// are logged and the call is safe to repeat.
func (s *Storage) Cleanup(jobID string) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		s.logger.Warn("Skipping cleanup of invalid job namespace",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return
	}

	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error("Failed to clean up job artifacts",
			slog.String("job_id", jobID),
			slog.String("dir", dir),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Debug("Job artifacts removed",
		slog.String("job_id", jobID),
	)
}

// ListJobDirs returns every job namespace currently present under the root.
// Entries that are not job namespaces are ignored.
func (s *Storage) ListJobDirs() ([]JobDir, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list root: %w", domain.ErrStorage, err)
	}

	dirs := make([]JobDir, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := s.jobDir(entry.Name()); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, JobDir{JobID: entry.Name(), ModTime: info.ModTime()})
	}
	return dirs, nil
}
