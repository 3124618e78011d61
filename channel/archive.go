package channel

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/achilleasa/lightmass/log"
)

var archiveLogger = log.New("channel archive")

// Pack a set of published channels into a zip archive so they can be shipped
// to a worker host that does not share the channel cache. Channel bytes are
// copied verbatim, compressed channels stay compressed.
func WriteArchive(store Store, names []string, filename string) error {
	archiveLogger.Noticef(`writing %d channels to "%s"`, len(names), filename)
	start := time.Now()

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		if err = copyToArchive(zw, store, name); err != nil {
			zw.Close()
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return err
	}

	archiveLogger.Noticef("wrote channel archive in %d ms", time.Since(start).Nanoseconds()/1e6)
	return nil
}

func copyToArchive(zw *zip.Writer, store Store, name string) error {
	ch, err := store.Open(name, Read|Raw)
	if err != nil {
		return err
	}
	defer ch.Close()

	cw, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(cw, ch)
	return err
}

// Unpack a channel archive into a store. It returns the names of the
// imported channels.
func ReadArchive(filename string, store Store) ([]string, error) {
	archiveLogger.Noticef(`reading channel archive "%s"`, filename)
	start := time.Now()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if err = copyFromArchive(f, store); err != nil {
			return nil, fmt.Errorf("channel archive: failed to load %s: %w", f.Name, err)
		}
		names = append(names, f.Name)
	}

	archiveLogger.Noticef("loaded %d channels in %d ms", len(names), time.Since(start).Nanoseconds()/1e6)
	return names, nil
}

func copyFromArchive(f *zip.File, store Store) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	ch, err := store.Open(f.Name, Write|Raw)
	if err != nil {
		return err
	}
	if _, err = io.Copy(ch, rc); err != nil {
		ch.Abort()
		return err
	}
	return ch.Close()
}
