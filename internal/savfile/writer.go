package savfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"
)

const product = "@(#) SPSS DATA FILE surveydash"

// Create writes f to path, replacing any existing file.
func Create(path string, f *File) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(fh, f); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// Write encodes f as a little-endian system file. Header.Compression selects
// the data layout; ZLib is not supported. Variables get generated short
// names and their full names are kept in the long variable names record.
func Write(w io.Writer, f *File) error {
	if f.Header.Compression != CompressionNone && f.Header.Compression != CompressionBytecode {
		return fmt.Errorf("%w: code %d", ErrUnsupportedCompression, f.Header.Compression)
	}
	if len(f.Variables) == 0 {
		return fmt.Errorf("%w: no variables", ErrMalformed)
	}
	for i, row := range f.Cases {
		if len(row) != len(f.Variables) {
			return fmt.Errorf("%w: case %d has %d values, want %d", ErrMalformed, i+1, len(row), len(f.Variables))
		}
	}

	e := &encoder{w: bufio.NewWriter(w), order: binary.LittleEndian}
	e.header(f)
	e.dictionary(f)
	if err := e.cases(f); err != nil {
		return err
	}
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

type encoder struct {
	w     *bufio.Writer
	order binary.ByteOrder
	err   error
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) int32(v int32) {
	var buf [4]byte
	e.order.PutUint32(buf[:], uint32(v))
	e.write(buf[:])
}

func (e *encoder) float64(v float64) {
	var buf [8]byte
	e.order.PutUint64(buf[:], math.Float64bits(v))
	e.write(buf[:])
}

func (e *encoder) padded(s string, n int) {
	buf := bytes.Repeat([]byte{' '}, n)
	copy(buf, s)
	e.write(buf)
}

func (e *encoder) header(f *File) {
	slots := 0
	for _, v := range f.Variables {
		slots += v.slots()
	}

	now := time.Now()
	date, clock := f.Header.CreationDate, f.Header.CreationTime
	if date == "" {
		date = now.Format("02 Jan 06")
	}
	if clock == "" {
		clock = now.Format("15:04:05")
	}

	e.write([]byte("$FL2"))
	e.padded(product, 60)
	e.int32(2)
	e.int32(int32(slots))
	e.int32(int32(f.Header.Compression))
	e.int32(0)
	e.int32(int32(len(f.Cases)))
	e.float64(defaultBias)
	e.padded(date, 9)
	e.padded(clock, 8)
	e.padded(f.Header.FileLabel, 64)
	e.padded("", 3)
}

// dictionary writes the variable, value label and extension records.
func (e *encoder) dictionary(f *File) {
	first := make([]int32, len(f.Variables))
	var longNames []string
	slot := int32(1)

	for i, v := range f.Variables {
		short := fmt.Sprintf("V%d", i+1)
		longNames = append(longNames, short+"="+v.Name)
		first[i] = slot

		e.int32(recVariable)
		e.int32(int32(v.Width))
		if v.Label != "" {
			e.int32(1)
		} else {
			e.int32(0)
		}
		missing := v.MissingValues
		if v.IsString() || len(missing) > 3 {
			missing = nil
		}
		e.int32(int32(len(missing)))
		format := int32(5<<16 | 8<<8 | 2)
		if v.IsString() {
			format = int32(1<<16 | v.Width<<8)
		}
		e.int32(format)
		e.int32(format)
		e.padded(short, 8)
		if v.Label != "" {
			label := v.Label
			if len(label) > 255 {
				label = label[:255]
			}
			e.int32(int32(len(label)))
			e.padded(label, int(roundUp(int32(len(label)), 4)))
		}
		for _, m := range missing {
			e.float64(m)
		}
		slot++

		for seg := 1; seg < v.slots(); seg++ {
			e.int32(recVariable)
			e.int32(-1)
			e.int32(0)
			e.int32(0)
			e.int32(0)
			e.int32(0)
			e.padded("", 8)
			slot++
		}
	}

	for i, v := range f.Variables {
		e.valueLabels(v, first[i])
	}

	e.extension(extLongNames, 1, []byte(strings.Join(longNames, "\t")))
	e.extension(extEncoding, 1, []byte("UTF-8"))

	e.int32(recDictTerminate)
	e.int32(0)
}

func (e *encoder) valueLabels(v *Variable, index int32) {
	type entry struct {
		raw   [slotSize]byte
		label string
	}
	var entries []entry

	if v.IsString() {
		if v.Width > slotSize {
			return
		}
		keys := make([]string, 0, len(v.StringLabels))
		for k := range v.StringLabels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			var en entry
			copy(en.raw[:], bytes.Repeat([]byte{' '}, slotSize))
			copy(en.raw[:], k)
			en.label = v.StringLabels[k]
			entries = append(entries, en)
		}
	} else {
		keys := make([]float64, 0, len(v.ValueLabels))
		for k := range v.ValueLabels {
			keys = append(keys, k)
		}
		sort.Float64s(keys)
		for _, k := range keys {
			var en entry
			e.order.PutUint64(en.raw[:], math.Float64bits(k))
			en.label = v.ValueLabels[k]
			entries = append(entries, en)
		}
	}
	if len(entries) == 0 {
		return
	}

	e.int32(recValueLabels)
	e.int32(int32(len(entries)))
	for _, en := range entries {
		label := en.label
		if len(label) > maxLabelSize {
			label = label[:maxLabelSize]
		}
		e.write(en.raw[:])
		e.write([]byte{byte(len(label))})
		e.padded(label, int(roundUp(int32(len(label))+1, slotSize)-1))
	}
	e.int32(recLabelVars)
	e.int32(1)
	e.int32(index)
}

func (e *encoder) extension(subtype, size int32, data []byte) {
	e.int32(recExtension)
	e.int32(subtype)
	e.int32(size)
	e.int32(int32(len(data)) / size)
	e.write(data)
}

func (e *encoder) cases(f *File) error {
	if f.Header.Compression == CompressionBytecode {
		bw := &bytecodeWriter{e: e}
		for _, row := range f.Cases {
			for i, v := range f.Variables {
				bw.value(v, row[i])
			}
		}
		bw.flush()
		return e.err
	}

	for _, row := range f.Cases {
		for i, v := range f.Variables {
			if v.IsString() {
				e.padded(row[i].Str, v.slots()*slotSize)
				continue
			}
			if row[i].SysMissing {
				e.float64(SysMissing)
				continue
			}
			e.float64(row[i].Num)
		}
	}
	return e.err
}

type bytecodeWriter struct {
	e    *encoder
	cmds []byte
	data bytes.Buffer
}

func (b *bytecodeWriter) value(v *Variable, val Value) {
	if !v.IsString() {
		x := val.Num
		switch {
		case val.SysMissing:
			b.code(codeSysmis, nil)
		case x == math.Trunc(x) && x >= 1-defaultBias && x <= 251-defaultBias:
			b.code(byte(x+defaultBias), nil)
		default:
			var raw [slotSize]byte
			b.e.order.PutUint64(raw[:], math.Float64bits(x))
			b.code(codeRaw, raw[:])
		}
		return
	}

	text := bytes.Repeat([]byte{' '}, v.slots()*slotSize)
	copy(text, val.Str)
	for off := 0; off < len(text); off += slotSize {
		chunk := text[off : off+slotSize]
		if bytes.Equal(chunk, []byte("        ")) {
			b.code(codeSpaces, nil)
			continue
		}
		b.code(codeRaw, chunk)
	}
}

func (b *bytecodeWriter) code(c byte, raw []byte) {
	b.cmds = append(b.cmds, c)
	if raw != nil {
		b.data.Write(raw)
	}
	if len(b.cmds) == slotSize {
		b.emit()
	}
}

func (b *bytecodeWriter) emit() {
	b.e.write(b.cmds)
	b.e.write(b.data.Bytes())
	b.cmds = b.cmds[:0]
	b.data.Reset()
}

func (b *bytecodeWriter) flush() {
	if len(b.cmds) == 0 {
		return
	}
	for len(b.cmds) < slotSize {
		b.cmds = append(b.cmds, codePadding)
	}
	b.emit()
}
