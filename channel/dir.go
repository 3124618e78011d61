package channel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const pendingPrefix = ".pending-"

// A channel store backed by a directory. Each channel is a file whose name
// is the channel name. Writers stream into a hidden temp file which is
// renamed into place on Close so readers never observe partial channels.
type DirStore struct {
	root string
}

// Create a store rooted at dir, creating the directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("channel: could not create store dir %q: %w", dir, err)
	}
	return &DirStore{root: dir}, nil
}

// Get the store root directory.
func (s *DirStore) Root() string {
	return s.root
}

func (s *DirStore) Open(name string, flags Flags) (*Channel, error) {
	if err := validateOpen(name, flags); err != nil {
		return nil, err
	}

	if flags&Write != 0 {
		return s.openWriter(name, flags)
	}

	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
		}
		return nil, err
	}

	r, release, err := decodeReader(name, f, flags)
	if err != nil {
		f.Close()
		return nil, err
	}
	ch := &Channel{name: name, flags: flags, r: r, closeFn: f.Close}
	if release != nil {
		ch.closeFn = func() error {
			release()
			return f.Close()
		}
	}
	return ch, nil
}

func (s *DirStore) openWriter(name string, flags Flags) (*Channel, error) {
	f, err := os.CreateTemp(s.root, pendingPrefix+"*")
	if err != nil {
		return nil, err
	}

	w, finish, err := encodeWriter(f, flags)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	ch := &Channel{name: name, flags: flags, w: w}
	ch.closeFn = func() error {
		var err error
		if finish != nil {
			err = finish()
		}
		if err == nil {
			err = f.Sync()
		}
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(f.Name())
			return err
		}
		return os.Rename(f.Name(), filepath.Join(s.root, name))
	}
	ch.abortFn = func() error {
		f.Close()
		return os.Remove(f.Name())
	}
	return ch, nil
}

func (s *DirStore) Exists(name string) bool {
	if validateOpen(name, Read) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(s.root, name))
	return err == nil && info.Mode().IsRegular()
}

func (s *DirStore) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
