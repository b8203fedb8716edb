// Package arena implements the interpreter's single growable byte-buffer
// heap: a lazily grown byte slice seeded with a single zero byte so
// offset 0 is never a valid allocation, plus a monotonic temp-id counter
// for generating unique synthetic names. There is no garbage collector:
// Free is a bookkeeping no-op, since this interpreter never reclaims
// arena memory.
package arena

import (
	"encoding/binary"
	"fmt"
)

// Arena is the runtime heap: one monotonically growing byte slice shared
// by every value in a running program.
type Arena struct {
	memory        []byte
	tempIDCounter int
}

// New returns an Arena whose offset 0 is reserved and never a valid
// allocation.
func New() *Arena {
	return &Arena{memory: []byte{0}}
}

// Len reports the current size of the backing buffer.
func (a *Arena) Len() int { return len(a.memory) }

// Alloc grows the arena by n bytes and returns the offset of the first
// new byte.
func (a *Arena) Alloc(n int) int {
	offset := len(a.memory)
	a.memory = append(a.memory, make([]byte, n)...)
	return offset
}

// Free is a deliberate no-op: the interpreter never reclaims memory.
func (a *Arena) Free(offset int) {}

// NextTempID returns a fresh, monotonically increasing integer used to
// build unique synthetic variable names (e.g. return-value temporaries,
// desugared loop counters).
func (a *Arena) NextTempID() int {
	a.tempIDCounter++
	return a.tempIDCounter
}

func (a *Arena) checkBounds(offset, size int) error {
	if offset <= 0 {
		return fmt.Errorf("arena: offset %d is reserved or invalid", offset)
	}
	if offset+size > len(a.memory) {
		return fmt.Errorf("arena: access [%d:%d] out of bounds (len %d)", offset, offset+size, len(a.memory))
	}
	return nil
}

// ReadI64 reads a little-endian 8-byte signed integer at offset.
func (a *Arena) ReadI64(offset int) (int64, error) {
	if err := a.checkBounds(offset, 8); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(a.memory[offset : offset+8])), nil
}

// WriteI64 writes v as a little-endian 8-byte signed integer at offset.
func (a *Arena) WriteI64(offset int, v int64) error {
	if err := a.checkBounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(a.memory[offset:offset+8], uint64(v))
	return nil
}

// ReadU8 reads a single byte at offset.
func (a *Arena) ReadU8(offset int) (byte, error) {
	if err := a.checkBounds(offset, 1); err != nil {
		return 0, err
	}
	return a.memory[offset], nil
}

// WriteU8 writes a single byte at offset.
func (a *Arena) WriteU8(offset int, v byte) error {
	if err := a.checkBounds(offset, 1); err != nil {
		return err
	}
	a.memory[offset] = v
	return nil
}

// ReadBytes returns a copy of n bytes starting at offset.
func (a *Arena) ReadBytes(offset, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if err := a.checkBounds(offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, a.memory[offset:offset+n])
	return out, nil
}

// WriteBytes copies data into the arena starting at offset.
func (a *Arena) WriteBytes(offset int, data []byte) error {
	if err := a.checkBounds(offset, len(data)); err != nil {
		return err
	}
	copy(a.memory[offset:offset+len(data)], data)
	return nil
}

// Str is the runtime shape of a string value: a pointer to a NUL-terminated
// byte run plus its length.
type Str struct {
	CString int64
	Cap     int64
}

// InsertStr allocates s's bytes plus a trailing NUL and returns the
// {CString, Cap} pair describing it.
func (a *Arena) InsertStr(s string) Str {
	data := append([]byte(s), 0)
	offset := a.Alloc(len(data))
	copy(a.memory[offset:], data)
	return Str{CString: int64(offset), Cap: int64(len(s))}
}

// ReadStr reads the string described by a Str pair back out of the arena.
func (a *Arena) ReadStr(s Str) (string, error) {
	b, err := a.ReadBytes(int(s.CString), int(s.Cap))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// structTemplates caches the zero-filled "default instance" byte layout
// for each struct type, keyed by struct name, so InsertStruct can grow
// the arena with a single append + memcpy instead of field-by-field
// writes; templates are created lazily on first use.
type structTemplates struct {
	byName map[string][]byte
}

// NewStructTemplates builds an empty template cache.
func NewStructTemplates() *structTemplates {
	return &structTemplates{byName: map[string][]byte{}}
}

// Template returns the cached byte layout for name, computing and caching
// it via build on first use.
func (t *structTemplates) Template(name string, build func() []byte) []byte {
	if tpl, ok := t.byName[name]; ok {
		return tpl
	}
	tpl := build()
	t.byName[name] = tpl
	return tpl
}

// InsertStructTemplate allocates a fresh copy of a cached struct layout
// and returns its base offset via a single O(size) memcpy.
func (a *Arena) InsertStructTemplate(tpl []byte) int {
	offset := a.Alloc(len(tpl))
	copy(a.memory[offset:], tpl)
	return offset
}

// EnumLayout is the runtime shape of an enum value: an 8-byte
// little-endian tag followed by the payload bytes for that variant (0
// bytes for a payload-less variant).
type EnumLayout struct {
	Tag     int64
	Payload []byte
}

// InsertEnum writes a tag plus payload and returns the base offset.
func (a *Arena) InsertEnum(e EnumLayout) int {
	offset := a.Alloc(8 + len(e.Payload))
	binary.LittleEndian.PutUint64(a.memory[offset:offset+8], uint64(e.Tag))
	if len(e.Payload) > 0 {
		copy(a.memory[offset+8:], e.Payload)
	}
	return offset
}

// ReadEnumTag reads only the tag at offset, without touching the payload.
func (a *Arena) ReadEnumTag(offset int) (int64, error) {
	return a.ReadI64(offset)
}

// CopyFields copies size bytes from src into a freshly allocated block
// and returns the block's offset. It is a flat byte copy; offsets stored
// inside the copied bytes are not followed. The `copy` and `mut`
// parameter-passing strategies use it so the callee's block never aliases
// the caller's storage.
func (a *Arena) CopyFields(src int, size int) (int, error) {
	data, err := a.ReadBytes(src, size)
	if err != nil {
		return 0, err
	}
	dst := a.Alloc(size)
	copy(a.memory[dst:], data)
	return dst, nil
}
