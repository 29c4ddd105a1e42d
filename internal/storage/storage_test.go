package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewStorage(t.TempDir(), "", logger)
	require.NoError(t, err)
	return s
}

func newJob(t *testing.T, s *Storage) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, s.CreateJobDir(id))
	return id
}

func TestNewStorage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewStorage("  ", "", logger)
	assert.Error(t, err)

	_, err = NewStorage(t.TempDir(), "../escape.pdf", logger)
	assert.Error(t, err)

	root := filepath.Join(t.TempDir(), "nested", "staging")
	s, err := NewStorage(root, "paper.pdf", logger)
	require.NoError(t, err)
	assert.DirExists(t, root)

	out, err := s.ResolveOutputPath(uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", filepath.Base(out))
}

func TestStorage_CreateJobDir(t *testing.T) {
	s := newTestStorage(t)
	id := uuid.NewString()

	require.NoError(t, s.CreateJobDir(id))
	assert.DirExists(t, filepath.Join(s.Root(), id))

	err := s.CreateJobDir(id)
	assert.ErrorIs(t, err, domain.ErrStorage, "a namespace is owned by exactly one job")
}

func TestStorage_RejectsInvalidJobIDs(t *testing.T) {
	s := newTestStorage(t)

	for _, id := range []string{"", "../etc", "job-1", "{" + uuid.NewString() + "}", "urn:uuid:" + uuid.NewString()} {
		t.Run(id, func(t *testing.T) {
			assert.ErrorIs(t, s.CreateJobDir(id), domain.ErrStorage)

			_, err := s.ResolveOutputPath(id)
			assert.ErrorIs(t, err, domain.ErrStorage)

			_, err = s.Stage(context.Background(), id, 0, samplePDF)
			assert.ErrorIs(t, err, domain.ErrStorage)
		})
	}
}

func TestStorage_Stage(t *testing.T) {
	s := newTestStorage(t)
	id := newJob(t, s)

	a, err := s.Stage(context.Background(), id, 0, samplePDF)
	require.NoError(t, err)
	assert.Equal(t, "input0.pdf", a.Name)
	assert.Equal(t, filepath.Join(s.Root(), id, "input0.pdf"), a.Path)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.Equal(t, int64(len(samplePDF)), a.Size)

	data, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, data)

	info, err := os.Stat(a.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(readOnlyPerm), info.Mode().Perm(), "staged inputs are immutable")

	_, err = s.Stage(context.Background(), id, 0, samplePDF)
	assert.ErrorIs(t, err, domain.ErrStorage, "restaging the same index must not overwrite")

	b, err := s.Stage(context.Background(), id, 1, []byte("plain notes"))
	require.NoError(t, err)
	assert.Equal(t, "input1.txt", b.Name)
}

func TestStorage_StageWithoutJobDir(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Stage(context.Background(), uuid.NewString(), 0, samplePDF)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestStorage_StageCanceled(t *testing.T) {
	s := newTestStorage(t)
	id := newJob(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Stage(ctx, id, 0, samplePDF)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStorage_SealAndReadOutput(t *testing.T) {
	s := newTestStorage(t)
	id := newJob(t, s)

	_, err := s.SealOutput(id)
	assert.ErrorIs(t, err, domain.ErrOutputMissing)

	_, err = s.ReadOutput(id)
	assert.ErrorIs(t, err, domain.ErrOutputMissing)

	path, err := s.ResolveOutputPath(id)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err = s.SealOutput(id)
	assert.ErrorIs(t, err, domain.ErrOutputMissing, "an empty output is not a result")

	require.NoError(t, os.WriteFile(path, samplePDF, 0o644))
	out, err := s.SealOutput(id)
	require.NoError(t, err)
	assert.Equal(t, DefaultOutputName, out.Name)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.Equal(t, int64(len(samplePDF)), out.Size)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(readOnlyPerm), info.Mode().Perm())

	data, err := s.ReadOutput(id)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, data)
}

func TestStorage_OutputPathsAreJobScoped(t *testing.T) {
	s := newTestStorage(t)
	a := newJob(t, s)
	b := newJob(t, s)

	pa, err := s.ResolveOutputPath(a)
	require.NoError(t, err)
	pb, err := s.ResolveOutputPath(b)
	require.NoError(t, err)

	assert.NotEqual(t, pa, pb)
	assert.Equal(t, filepath.Join(s.Root(), a), filepath.Dir(pa))
	assert.Equal(t, filepath.Join(s.Root(), b), filepath.Dir(pb))
}

func TestStorage_CleanupIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	id := newJob(t, s)

	_, err := s.Stage(context.Background(), id, 0, samplePDF)
	require.NoError(t, err)
	path, err := s.ResolveOutputPath(id)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, samplePDF, 0o644))
	_, err = s.SealOutput(id)
	require.NoError(t, err)

	s.Cleanup(id)
	assert.NoDirExists(t, filepath.Join(s.Root(), id))

	assert.NotPanics(t, func() {
		s.Cleanup(id)
		s.Cleanup("not-a-job")
	})
}

func TestStorage_ListJobDirs(t *testing.T) {
	s := newTestStorage(t)
	a := newJob(t, s)
	b := newJob(t, s)
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "lost+found"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "README"), []byte("x"), 0o644))

	dirs, err := s.ListJobDirs()
	require.NoError(t, err)

	ids := make([]string, 0, len(dirs))
	for _, d := range dirs {
		ids = append(ids, d.JobID)
		assert.False(t, d.ModTime.IsZero())
	}
	assert.ElementsMatch(t, []string{a, b}, ids)
}
