package types

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// A 128-bit globally unique identifier stored as four 32-bit words so that
// it can be written verbatim into channel records.
type GUID struct {
	A, B, C, D uint32
}

// Generate a new random GUID.
func NewGUID() GUID {
	id := uuid.New()
	return GUID{
		A: binary.BigEndian.Uint32(id[0:4]),
		B: binary.BigEndian.Uint32(id[4:8]),
		C: binary.BigEndian.Uint32(id[8:12]),
		D: binary.BigEndian.Uint32(id[12:16]),
	}
}

// Parse a GUID from its 32 character hex representation. Dashes are ignored
// so that uuid-formatted strings are also accepted.
func ParseGUID(s string) (GUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return GUID{}, fmt.Errorf("guid: invalid length %d for %q", len(s), s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return GUID{}, fmt.Errorf("guid: %q: %w", s, err)
	}
	return GUID{
		A: binary.BigEndian.Uint32(raw[0:4]),
		B: binary.BigEndian.Uint32(raw[4:8]),
		C: binary.BigEndian.Uint32(raw[8:12]),
		D: binary.BigEndian.Uint32(raw[12:16]),
	}, nil
}

// Derive a stable GUID from a parent GUID and a salt string.
func DeriveGUID(parent GUID, salt string) GUID {
	h := sha1.New()
	h.Write(parent.Bytes())
	h.Write([]byte(salt))
	sum := h.Sum(nil)
	return GUID{
		A: binary.BigEndian.Uint32(sum[0:4]),
		B: binary.BigEndian.Uint32(sum[4:8]),
		C: binary.BigEndian.Uint32(sum[8:12]),
		D: binary.BigEndian.Uint32(sum[12:16]),
	}
}

// Returns true if any of the GUID words is non-zero.
func (g GUID) IsValid() bool {
	return (g.A | g.B | g.C | g.D) != 0
}

// Get the big-endian byte representation.
func (g GUID) Bytes() []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint32(out[0:], g.A)
	binary.BigEndian.PutUint32(out[4:], g.B)
	binary.BigEndian.PutUint32(out[8:], g.C)
	binary.BigEndian.PutUint32(out[12:], g.D)
	return out
}

func (g GUID) String() string {
	return fmt.Sprintf("%08X%08X%08X%08X", g.A, g.B, g.C, g.D)
}

// Compare two GUIDs word by word.
func (g GUID) Less(o GUID) bool {
	if g.A != o.A {
		return g.A < o.A
	}
	if g.B != o.B {
		return g.B < o.B
	}
	if g.C != o.C {
		return g.C < o.C
	}
	return g.D < o.D
}

func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *GUID) UnmarshalText(text []byte) error {
	parsed, err := ParseGUID(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// A SHA-1 content hash.
type SHAHash [sha1.Size]byte

// Hash a list of GUIDs after sorting and removing duplicates so that the
// result does not depend on the order the GUIDs were collected in.
func HashGUIDs(guids []GUID) SHAHash {
	sorted := append([]GUID(nil), guids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	h := sha1.New()
	for index, g := range sorted {
		if index > 0 && sorted[index-1] == g {
			continue
		}
		h.Write(g.Bytes())
	}

	var out SHAHash
	copy(out[:], h.Sum(nil))
	return out
}

func (h SHAHash) String() string {
	return strings.ToUpper(hex.EncodeToString(h[:]))
}
