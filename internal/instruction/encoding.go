package instruction

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// Discriminator is the 8-byte method selector prefixed to every
// token_basics instruction: sha256("global:<method>")[:8].
type Discriminator [8]byte

func discriminator(method string) Discriminator {
	var d Discriminator
	hash := sha256.Sum256([]byte("global:" + method))
	copy(d[:], hash[:8])
	return d
}

// ErrShortData is returned when instruction data ends before all fields are read.
var ErrShortData = errors.New("instruction data too short")

// encoder appends Borsh-encoded fields.
type encoder struct {
	buf []byte
}

func newEncoder(d Discriminator) *encoder {
	e := &encoder{buf: make([]byte, 0, 64)}
	e.buf = append(e.buf, d[:]...)
	return e
}

func (e *encoder) u64(v uint64) *encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

// str writes a u32 little-endian length prefix followed by the UTF-8 bytes.
func (e *encoder) str(s string) *encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(s)))
	e.buf = append(e.buf, s...)
	return e
}

func (e *encoder) bytes() []byte {
	return e.buf
}

// decoder reads Borsh-encoded fields in order.
type decoder struct {
	data   []byte
	offset int
}

func (d *decoder) u64() (uint64, error) {
	if d.offset+8 > len(d.data) {
		return 0, ErrShortData
	}
	v := binary.LittleEndian.Uint64(d.data[d.offset:])
	d.offset += 8
	return v, nil
}

func (d *decoder) str() (string, error) {
	if d.offset+4 > len(d.data) {
		return "", ErrShortData
	}
	n := int(binary.LittleEndian.Uint32(d.data[d.offset:]))
	d.offset += 4
	if n < 0 || d.offset+n > len(d.data) {
		return "", fmt.Errorf("string of length %d: %w", n, ErrShortData)
	}
	s := string(d.data[d.offset : d.offset+n])
	d.offset += n
	return s, nil
}

func (d *decoder) done() error {
	if d.offset != len(d.data) {
		return fmt.Errorf("%d trailing bytes after instruction args", len(d.data)-d.offset)
	}
	return nil
}
