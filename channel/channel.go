// Package channel implements named, versioned binary streams that carry all
// data exchanged between the lighting build and the remote lighting workers.
//
// A channel name is a pure function of the identity of its content, the
// record format version and an extension. This allows the exporter to skip
// content that was already written by a previous build and allows the
// importer to re-open results after a worker reconnects.
package channel

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/achilleasa/lightmass/types"
)

var (
	ErrChannelNotFound = errors.New("channel: not found")
	ErrInvalidFlags    = errors.New("channel: invalid open flags")
	ErrInvalidName     = errors.New("channel: invalid channel name")
	ErrNotReadable     = errors.New("channel: opened for writing")
	ErrNotWritable     = errors.New("channel: opened for reading")
	ErrClosed          = errors.New("channel: already closed")
	ErrUnknownEncoding = errors.New("channel: unknown encoding tag")
)

// Flags select the access mode for an opened channel.
type Flags uint8

const (
	Read Flags = 1 << iota
	Write

	// Compress the channel contents using zlib. Every channel starts with an
	// encoding tag so readers detect compression on their own; the flag only
	// affects writers.
	Compressed

	// Copy the stored bytes verbatim, encoding tag included. Used to move
	// channels between stores.
	Raw
)

// Build the name of a channel from a content identifier, a format version and
// an extension (including the leading dot). Bumping the version produces a
// different name so readers never see bytes in a format they do not know.
func Name(id string, version types.GUID, ext string) string {
	return id + "_" + version.String() + ext
}

// Build the name of a channel whose content is identified by a GUID.
func NameForGUID(id types.GUID, version types.GUID, ext string) string {
	return Name(id.String(), version, ext)
}

// Build the name of a channel whose content is identified by a content hash.
func NameForHash(hash types.SHAHash, version types.GUID, ext string) string {
	return Name(hash.String(), version, ext)
}

// The Store interface is implemented by all channel backends.
type Store interface {
	// Open a channel for reading or writing. Opening a channel for reading
	// fails with ErrChannelNotFound if no channel with that name has been
	// closed yet.
	Open(name string, flags Flags) (*Channel, error)

	// Returns true if a channel with this name has been published.
	Exists(name string) bool

	// List the names of all published channels.
	Names() ([]string, error)
}

// A Channel is an open stream. Channels opened for writing become visible to
// readers only after Close returns successfully.
type Channel struct {
	name  string
	flags Flags

	r io.Reader
	w io.Writer

	closeOnce sync.Once
	closeFn   func() error
	abortFn   func() error
	closeErr  error
}

// Get the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Get the flags the channel was opened with.
func (c *Channel) Flags() Flags {
	return c.flags
}

func (c *Channel) Read(p []byte) (int, error) {
	if c.r == nil {
		return 0, ErrNotReadable
	}
	return c.r.Read(p)
}

func (c *Channel) Write(p []byte) (int, error) {
	if c.w == nil {
		return 0, ErrNotWritable
	}
	return c.w.Write(p)
}

// Flush and publish (writers) or release (readers) the channel. Calling
// Close more than once returns the result of the first call.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeErr = c.closeFn()
		}
	})
	return c.closeErr
}

// Discard a channel opened for writing without publishing it. For readers
// Abort is the same as Close. Once a channel is closed or aborted further
// calls return the result of the first call.
func (c *Channel) Abort() error {
	c.closeOnce.Do(func() {
		fn := c.abortFn
		if fn == nil {
			fn = c.closeFn
		}
		if fn != nil {
			c.closeErr = fn()
		}
	})
	return c.closeErr
}

func validateOpen(name string, flags Flags) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	mode := flags & (Read | Write)
	if mode != Read && mode != Write {
		return ErrInvalidFlags
	}
	if flags&Raw != 0 && flags&Compressed != 0 {
		return ErrInvalidFlags
	}
	return nil
}
