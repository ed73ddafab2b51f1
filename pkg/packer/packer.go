// Package packer converts between a main tier dataset directory and the
// single zip artifact the archive tier stores for it.
package packer

import (
	"context"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/materials-commons/tierstore/pkg/storage"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Packer writes the artifact of a dataset to w.
type Packer interface {
	Pack(id dsid.Identity, w io.Writer) error
}

// Archiver packs a main tier dataset into the archive tier.
type Archiver interface {
	Archive(ctx context.Context, id dsid.Identity) error
}

// ZipPacker packs every file of a dataset as one zip entry named after the
// file.
type ZipPacker struct {
	main       *storage.MainStore
	archive    *storage.ArchiveStore
	level      int
	scratchFs  afero.Fs
	scratchDir string
}

type Option func(*ZipPacker)

// WithLevel sets the deflate level. flate.NoCompression stores entries
// as they are, which suits data that is already compressed.
func WithLevel(level int) Option {
	return func(p *ZipPacker) {
		p.level = level
	}
}

// WithScratchDir sets where Restore spools artifacts. Defaults to the
// system temporary directory.
func WithScratchDir(fs afero.Fs, dir string) Option {
	return func(p *ZipPacker) {
		p.scratchFs = fs
		p.scratchDir = dir
	}
}

func NewZipPacker(main *storage.MainStore, archive *storage.ArchiveStore, opts ...Option) *ZipPacker {
	p := &ZipPacker{
		main:      main,
		archive:   archive,
		level:     flate.DefaultCompression,
		scratchFs: afero.NewOsFs(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

type statter interface {
	Stat() (os.FileInfo, error)
}

// Pack reads the dataset from the main tier under a shared lock.
func (p *ZipPacker) Pack(id dsid.Identity, w io.Writer) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, p.level)
	})

	method := zip.Deflate
	if p.level == flate.NoCompression {
		method = zip.Store
	}

	err := p.main.ReadDataset(id, func(name string, r io.Reader) error {
		hdr := &zip.FileHeader{Name: name, Method: method}
		if f, ok := r.(statter); ok {
			if fi, err := f.Stat(); err == nil {
				hdr.Modified = fi.ModTime()
				hdr.SetMode(fi.Mode())
			}
		}

		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return errors.Wrapf(err, "add %s", name)
		}

		if _, err := io.Copy(fw, r); err != nil {
			return errors.Wrapf(err, "pack %s", name)
		}

		return nil
	})

	if err != nil {
		_ = zw.Close()
		return err
	}

	return errors.Wrapf(zw.Close(), "finish archive of %s", id)
}

// Archive streams the packed dataset into the archive tier, replacing an
// older artifact. The main tier copy is left alone.
func (p *ZipPacker) Archive(ctx context.Context, id dsid.Identity) error {
	pr, pw := io.Pipe()

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = pw.CloseWithError(ctx.Err())
		case <-done:
		}
	}()

	var g errgroup.Group

	g.Go(func() error {
		err := p.Pack(id, pw)
		_ = pw.CloseWithError(err)
		return err
	})

	g.Go(func() error {
		err := p.archive.Put(id, pr)
		_ = pr.CloseWithError(err)
		return err
	})

	return g.Wait()
}

// Restore unpacks the archived artifact of a dataset into the main tier.
// Files already present in the main tier are kept. The number of files
// written is returned.
func (p *ZipPacker) Restore(id dsid.Identity) (int, error) {
	rc, err := p.archive.Get(id)
	if err != nil {
		return 0, err
	}

	spool, err := afero.TempFile(p.scratchFs, p.scratchDir, "tierstore-restore-")
	if err != nil {
		_ = rc.Close()
		return 0, errors.Wrap(err, "create spool file")
	}
	defer func() {
		_ = spool.Close()
		_ = p.scratchFs.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, rc)
	_ = rc.Close()
	if err != nil {
		return 0, errors.Wrapf(err, "spool archive of %s", id)
	}

	zr, err := zip.NewReader(spool, size)
	if err != nil {
		return 0, errors.Wrapf(err, "read archive of %s", id)
	}

	restored := 0
	for _, zf := range zr.File {
		ok, err := p.restoreFile(id, zf)
		if err != nil {
			return restored, err
		}
		if ok {
			restored++
		}
	}

	clog.UsingCtx(clog.ArchiveCtx).Infof("Restored %d of %d files of %s", restored, len(zr.File), id)

	return restored, nil
}

func (p *ZipPacker) restoreFile(id dsid.Identity, zf *zip.File) (bool, error) {
	r, err := zf.Open()
	if err != nil {
		return false, errors.Wrapf(err, "open %s in archive of %s", zf.Name, id)
	}
	defer func() { _ = r.Close() }()

	_, err = p.main.Put(id, zf.Name, r)
	switch {
	case errors.Is(err, storage.ErrExists):
		clog.UsingCtx(clog.ArchiveCtx).Debugf("%s of %s already in main tier", zf.Name, id)
		return false, nil
	case err != nil:
		return false, err
	}

	return true, nil
}
