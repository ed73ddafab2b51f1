package packer

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/materials-commons/tierstore/pkg/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) (*storage.MainStore, *storage.ArchiveStore) {
	t.Helper()
	main, err := storage.NewMainStore(storage.TierOptions{BaseDir: t.TempDir()}, time.Hour)
	require.NoError(t, err)
	archive, err := storage.NewArchiveStore(storage.TierOptions{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return main, archive
}

var id = dsid.Identity{Facility: "HZB", Investigation: "18201234-ST", Visit: "1.1-P", Dataset: "ds1"}

func putFiles(t *testing.T, main *storage.MainStore, files map[string]string) {
	t.Helper()
	for name, content := range files {
		_, err := main.Put(id, name, strings.NewReader(content))
		require.NoError(t, err)
	}
}

func TestPack(t *testing.T) {
	for _, level := range []int{flate.DefaultCompression, flate.NoCompression, flate.BestSpeed} {
		main, archive := newStores(t)
		putFiles(t, main, map[string]string{"b.dat": strings.Repeat("b", 1000), "a.txt": "alpha"})

		var buf bytes.Buffer
		require.NoError(t, NewZipPacker(main, archive, WithLevel(level)).Pack(id, &buf))

		zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
		require.NoError(t, err)
		require.Len(t, zr.File, 2)
		require.Equal(t, "a.txt", zr.File[0].Name)
		require.Equal(t, "b.dat", zr.File[1].Name)
		require.False(t, zr.File[0].Modified.IsZero())

		if level == flate.NoCompression {
			require.Equal(t, zip.Store, zr.File[1].Method)
		} else {
			require.Equal(t, zip.Deflate, zr.File[1].Method)
		}

		r, err := zr.File[1].Open()
		require.NoError(t, err)
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, strings.Repeat("b", 1000), string(b))
	}
}

func TestPackMissingDataset(t *testing.T) {
	main, archive := newStores(t)
	err := NewZipPacker(main, archive).Pack(id, io.Discard)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRestore(t *testing.T) {
	main, archive := newStores(t)
	files := map[string]string{"a.txt": "alpha", "b.dat": "beta"}
	putFiles(t, main, files)

	p := NewZipPacker(main, archive, WithScratchDir(afero.NewOsFs(), t.TempDir()))

	var buf bytes.Buffer
	require.NoError(t, p.Pack(id, &buf))
	require.NoError(t, archive.Put(id, &buf))
	require.NoError(t, main.Delete(id))

	n, err := p.Restore(id)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for name, content := range files {
		location, err := main.Put(id, name, strings.NewReader("x"))
		require.ErrorIs(t, err, storage.ErrExists)
		require.Empty(t, location)

		rc, err := main.Get("HZB/182/18201234-ST/1.1-P/data/ds1/" + name)
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Equal(t, content, string(b))
	}

	// A second restore keeps what is there.
	n, err = p.Restore(id)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRestoreMissingArchive(t *testing.T) {
	main, archive := newStores(t)
	_, err := NewZipPacker(main, archive).Restore(id)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRestoreRejectsBadEntryNames(t *testing.T) {
	main, archive := newStores(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../../escape")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, archive.Put(id, &buf))

	n, err := NewZipPacker(main, archive).Restore(id)
	require.Error(t, err)
	require.Zero(t, n)

	exists, err := main.Exists(id)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestArchive(t *testing.T) {
	main, archive := newStores(t)
	putFiles(t, main, map[string]string{"a.txt": "alpha"})
	p := NewZipPacker(main, archive)

	require.NoError(t, p.Archive(context.Background(), id))

	rc, err := archive.Get(id)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	require.Equal(t, "a.txt", zr.File[0].Name)

	// The main tier copy stays.
	exists, err := main.Exists(id)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestArchiveMissingDataset(t *testing.T) {
	main, archive := newStores(t)
	err := NewZipPacker(main, archive).Archive(context.Background(), id)
	require.ErrorIs(t, err, storage.ErrNotFound)

	exists, err := archive.Exists(id)
	require.NoError(t, err)
	require.False(t, exists)
}
