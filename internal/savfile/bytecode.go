package savfile

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	codePadding = 0
	codeEOF     = 252
	codeRaw     = 253
	codeSpaces  = 254
	codeSysmis  = 255
)

type slotKind int

const (
	slotRaw slotKind = iota
	slotNumber
	slotSpaces
	slotSysmis
)

type slot struct {
	kind slotKind
	num  float64
	raw  [slotSize]byte
}

type slotFunc func() (slot, error)

// bytecodeReader expands the bytecode compression scheme: blocks of eight
// one-byte commands, each followed by the raw 8-byte values they reference.
type bytecodeReader struct {
	r     io.Reader
	order binary.ByteOrder
	bias  float64
	cmds  [slotSize]byte
	pos   int
	done  bool
}

func newBytecodeReader(r io.Reader, order binary.ByteOrder, bias float64) *bytecodeReader {
	return &bytecodeReader{r: r, order: order, bias: bias, pos: slotSize}
}

func (b *bytecodeReader) next() (slot, error) {
	var s slot
	for {
		if b.done {
			return s, io.EOF
		}
		if b.pos == slotSize {
			if _, err := io.ReadFull(b.r, b.cmds[:]); err != nil {
				if errors.Is(err, io.ErrUnexpectedEOF) {
					return s, err
				}
				return s, io.EOF
			}
			b.pos = 0
		}
		code := b.cmds[b.pos]
		b.pos++

		switch code {
		case codePadding:
			continue
		case codeEOF:
			b.done = true
			return s, io.EOF
		case codeRaw:
			if _, err := io.ReadFull(b.r, s.raw[:]); err != nil {
				return s, io.ErrUnexpectedEOF
			}
			s.kind = slotRaw
		case codeSpaces:
			s.kind = slotSpaces
		case codeSysmis:
			s.kind = slotSysmis
		default:
			s.kind = slotNumber
			s.num = float64(code) - b.bias
		}
		return s, nil
	}
}
