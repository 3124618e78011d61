package channel

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

// An in-memory channel store. It is safe for concurrent use.
type MemStore struct {
	mu       sync.RWMutex
	channels map[string][]byte
}

// Create a new empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		channels: make(map[string][]byte),
	}
}

func (s *MemStore) Open(name string, flags Flags) (*Channel, error) {
	if err := validateOpen(name, flags); err != nil {
		return nil, err
	}

	if flags&Write != 0 {
		return s.openWriter(name, flags)
	}

	s.mu.RLock()
	data, exists := s.channels[name]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}

	r, release, err := decodeReader(name, bytes.NewReader(data), flags)
	if err != nil {
		return nil, err
	}
	return &Channel{name: name, flags: flags, r: r, closeFn: release}, nil
}

func (s *MemStore) openWriter(name string, flags Flags) (*Channel, error) {
	buf := new(bytes.Buffer)
	w, finish, err := encodeWriter(buf, flags)
	if err != nil {
		return nil, err
	}

	ch := &Channel{name: name, flags: flags, w: w}
	ch.closeFn = func() error {
		if finish != nil {
			if err := finish(); err != nil {
				return err
			}
		}
		s.mu.Lock()
		s.channels[name] = buf.Bytes()
		s.mu.Unlock()
		return nil
	}
	ch.abortFn = func() error {
		buf.Reset()
		return nil
	}
	return ch, nil
}

func (s *MemStore) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.channels[name]
	return exists
}

func (s *MemStore) Names() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Remove a published channel. It returns false if the channel did not exist.
func (s *MemStore) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.channels[name]
	delete(s.channels, name)
	return exists
}
