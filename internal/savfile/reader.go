package savfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	recVariable      = 2
	recValueLabels   = 3
	recLabelVars     = 4
	recDocument      = 6
	recExtension     = 7
	recDictTerminate = 999

	extFloatInfo = 4
	extLongNames = 13
	extEncoding  = 20
)

// Limits on lengths and counts read from the dictionary. Files that exceed
// them are rejected as malformed.
const (
	maxVarLabel    = 65535
	maxValueLabels = 1 << 20
	maxExtension   = 16 << 20

	// reads larger than this grow with the data instead of being allocated up
	// front.
	readChunk = 64 << 10
)

// Open reads the system file at path.
func Open(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Read(fh)
}

// Read decodes a system file from r.
func Read(r io.Reader) (*File, error) {
	d := &decoder{
		r:      bufio.NewReader(r),
		sysmis: SysMissing,
	}
	f, err := d.decode()
	if err != nil {
		return nil, err
	}
	return f, nil
}

type decoder struct {
	r      *bufio.Reader
	order  binary.ByteOrder
	sysmis float64

	file *File
	// slotVar maps each 8-byte dictionary slot to its variable, or -1 for
	// continuation slots of long strings.
	slotVar []int
}

func (d *decoder) decode() (*File, error) {
	d.file = &File{}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	if err := d.readDictionary(); err != nil {
		return nil, err
	}
	if err := d.readCases(); err != nil {
		return nil, err
	}
	d.transcode()
	return d.file, nil
}

func (d *decoder) readHeader() error {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return fmt.Errorf("%w: header: %v", ErrNotSAV, err)
	}
	magic := string(buf[0:4])
	if magic != "$FL2" && magic != "$FL3" {
		return fmt.Errorf("%w: bad magic %q", ErrNotSAV, magic)
	}

	switch {
	case isLayoutCode(binary.LittleEndian.Uint32(buf[64:68])):
		d.order = binary.LittleEndian
	case isLayoutCode(binary.BigEndian.Uint32(buf[64:68])):
		d.order = binary.BigEndian
	default:
		return fmt.Errorf("%w: unknown layout code", ErrNotSAV)
	}

	h := &d.file.Header
	h.Product = trimField(buf[4:64])
	h.LayoutCode = int32(d.order.Uint32(buf[64:68]))
	h.NominalCaseSize = int32(d.order.Uint32(buf[68:72]))
	h.Compression = Compression(int32(d.order.Uint32(buf[72:76])))
	h.WeightIndex = int32(d.order.Uint32(buf[76:80]))
	h.Cases = int32(d.order.Uint32(buf[80:84]))
	h.Bias = math.Float64frombits(d.order.Uint64(buf[84:92]))
	h.CreationDate = trimField(buf[92:101])
	h.CreationTime = trimField(buf[101:109])
	h.FileLabel = trimField(buf[109:173])

	if magic == "$FL3" || h.Compression == CompressionZLib {
		return fmt.Errorf("%w: zlib-compressed (.zsav) data", ErrUnsupportedCompression)
	}
	if h.Compression != CompressionNone && h.Compression != CompressionBytecode {
		return fmt.Errorf("%w: code %d", ErrUnsupportedCompression, h.Compression)
	}
	if h.Bias == 0 {
		h.Bias = defaultBias
	}
	return nil
}

func isLayoutCode(v uint32) bool {
	return v == 2 || v == 3
}

func (d *decoder) readDictionary() error {
	for {
		recType, err := d.int32()
		if err != nil {
			return fmt.Errorf("%w: dictionary: %v", ErrMalformed, err)
		}
		switch recType {
		case recVariable:
			err = d.readVariable()
		case recValueLabels:
			err = d.readValueLabels()
		case recDocument:
			err = d.readDocument()
		case recExtension:
			err = d.readExtension()
		case recDictTerminate:
			_, err = d.int32()
			if err != nil {
				return fmt.Errorf("%w: dictionary terminator: %v", ErrMalformed, err)
			}
			if len(d.file.Variables) == 0 {
				return fmt.Errorf("%w: no variables", ErrMalformed)
			}
			return nil
		default:
			return fmt.Errorf("%w: unexpected record type %d", ErrMalformed, recType)
		}
		if err != nil {
			return err
		}
	}
}

func (d *decoder) readVariable() error {
	var fields [5]int32
	for i := range fields {
		v, err := d.int32()
		if err != nil {
			return fmt.Errorf("%w: variable record: %v", ErrMalformed, err)
		}
		fields[i] = v
	}
	typ, hasLabel, nMissing := fields[0], fields[1], fields[2]

	name, err := d.bytes(8)
	if err != nil {
		return fmt.Errorf("%w: variable name: %v", ErrMalformed, err)
	}

	var label string
	if hasLabel == 1 {
		n, err := d.int32()
		if err != nil || n < 0 || n > maxVarLabel {
			return fmt.Errorf("%w: variable label length %d", ErrMalformed, n)
		}
		raw, err := d.bytes(int(roundUp(n, 4)))
		if err != nil {
			return fmt.Errorf("%w: variable label: %v", ErrMalformed, err)
		}
		label = string(raw[:n])
	}

	count := int(nMissing)
	if count < 0 {
		count = -count
	}
	if count > 3 {
		return fmt.Errorf("%w: %d missing values", ErrMalformed, nMissing)
	}
	missing := make([][]byte, count)
	for i := range missing {
		if missing[i], err = d.bytes(slotSize); err != nil {
			return fmt.Errorf("%w: missing values: %v", ErrMalformed, err)
		}
	}

	if typ == -1 {
		if len(d.slotVar) == 0 {
			return fmt.Errorf("%w: continuation record without variable", ErrMalformed)
		}
		d.slotVar = append(d.slotVar, -1)
		return nil
	}
	if typ < 0 || typ > 255 {
		return fmt.Errorf("%w: variable width %d", ErrMalformed, typ)
	}

	short := strings.TrimRight(string(name), " ")
	v := &Variable{
		Name:      short,
		ShortName: short,
		Label:     label,
		Width:     int(typ),
	}
	if v.IsString() {
		for _, m := range missing {
			v.MissingStrings = append(v.MissingStrings, strings.TrimRight(string(m), " "))
		}
	} else {
		values := make([]float64, len(missing))
		for i, m := range missing {
			values[i] = math.Float64frombits(d.order.Uint64(m))
		}
		if nMissing < 0 {
			v.MissingRange = &[2]float64{values[0], values[1]}
			values = values[2:]
		}
		v.MissingValues = values
	}

	d.slotVar = append(d.slotVar, len(d.file.Variables))
	d.file.Variables = append(d.file.Variables, v)
	return nil
}

func (d *decoder) readValueLabels() error {
	count, err := d.int32()
	if err != nil || count < 0 || count > maxValueLabels {
		return fmt.Errorf("%w: value label count %d", ErrMalformed, count)
	}
	type pair struct {
		raw   []byte
		label string
	}
	var pairs []pair
	for i := int32(0); i < count; i++ {
		raw, err := d.bytes(slotSize)
		if err != nil {
			return fmt.Errorf("%w: value label: %v", ErrMalformed, err)
		}
		n, err := d.r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: value label length: %v", ErrMalformed, err)
		}
		padded := roundUp(int32(n)+1, slotSize) - 1
		text, err := d.bytes(int(padded))
		if err != nil {
			return fmt.Errorf("%w: value label text: %v", ErrMalformed, err)
		}
		pairs = append(pairs, pair{raw: raw, label: string(text[:n])})
	}

	recType, err := d.int32()
	if err != nil || recType != recLabelVars {
		return fmt.Errorf("%w: value labels not followed by variable index record", ErrMalformed)
	}
	nVars, err := d.int32()
	if err != nil || nVars < 0 {
		return fmt.Errorf("%w: value label variable count", ErrMalformed)
	}
	for i := int32(0); i < nVars; i++ {
		idx, err := d.int32()
		if err != nil {
			return fmt.Errorf("%w: value label variable index: %v", ErrMalformed, err)
		}
		if idx < 1 || int(idx) > len(d.slotVar) || d.slotVar[idx-1] < 0 {
			return fmt.Errorf("%w: value label variable index %d", ErrMalformed, idx)
		}
		v := d.file.Variables[d.slotVar[idx-1]]
		for _, p := range pairs {
			if v.IsString() {
				if v.StringLabels == nil {
					v.StringLabels = make(map[string]string)
				}
				v.StringLabels[strings.TrimRight(string(p.raw), " ")] = p.label
				continue
			}
			if v.ValueLabels == nil {
				v.ValueLabels = make(map[float64]string)
			}
			v.ValueLabels[math.Float64frombits(d.order.Uint64(p.raw))] = p.label
		}
	}
	return nil
}

func (d *decoder) readDocument() error {
	n, err := d.int32()
	if err != nil || n < 0 {
		return fmt.Errorf("%w: document line count", ErrMalformed)
	}
	for i := int32(0); i < n; i++ {
		line, err := d.bytes(80)
		if err != nil {
			return fmt.Errorf("%w: document: %v", ErrMalformed, err)
		}
		d.file.Documents = append(d.file.Documents, strings.TrimRight(string(line), " "))
	}
	return nil
}

func (d *decoder) readExtension() error {
	var fields [3]int32
	for i := range fields {
		v, err := d.int32()
		if err != nil {
			return fmt.Errorf("%w: extension record: %v", ErrMalformed, err)
		}
		fields[i] = v
	}
	subtype, size, count := fields[0], fields[1], fields[2]
	if size < 0 || count < 0 || int64(size)*int64(count) > maxExtension {
		return fmt.Errorf("%w: extension record %d size %d x %d", ErrMalformed, subtype, size, count)
	}
	data, err := d.bytes(int(size * count))
	if err != nil {
		return fmt.Errorf("%w: extension record %d: %v", ErrMalformed, subtype, err)
	}

	switch subtype {
	case extFloatInfo:
		if size == 8 && count >= 1 {
			d.sysmis = math.Float64frombits(d.order.Uint64(data[0:8]))
		}
	case extLongNames:
		d.applyLongNames(string(data))
	case extEncoding:
		d.file.Encoding = strings.TrimSpace(string(data))
	}
	return nil
}

func (d *decoder) applyLongNames(body string) {
	long := make(map[string]string)
	for _, pair := range strings.Split(body, "\t") {
		short, name, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		long[strings.ToUpper(short)] = name
	}
	for _, v := range d.file.Variables {
		if name, ok := long[strings.ToUpper(v.ShortName)]; ok {
			v.Name = name
		}
	}
}

func (d *decoder) readCases() error {
	var next slotFunc
	switch d.file.Header.Compression {
	case CompressionBytecode:
		next = newBytecodeReader(d.r, d.order, d.file.Header.Bias).next
	default:
		next = d.rawSlot
	}

	limit := int(d.file.Header.Cases)
	for limit < 0 || len(d.file.Cases) < limit {
		row, err := d.readCase(next)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		d.file.Cases = append(d.file.Cases, row)
	}
	return nil
}

// readCase returns io.EOF only when the data ends exactly at a case boundary.
func (d *decoder) readCase(next slotFunc) ([]Value, error) {
	row := make([]Value, len(d.file.Variables))
	for i, v := range d.file.Variables {
		if !v.IsString() {
			s, err := next()
			if err != nil {
				return nil, d.caseErr(i, err)
			}
			switch s.kind {
			case slotSysmis:
				row[i] = Missing()
			case slotNumber:
				row[i] = d.number(s.num)
			default:
				row[i] = d.number(math.Float64frombits(d.order.Uint64(s.raw[:])))
			}
			continue
		}

		var text bytes.Buffer
		for seg := 0; seg < v.slots(); seg++ {
			s, err := next()
			if err != nil {
				return nil, d.caseErr(i+seg, err)
			}
			if s.kind == slotSpaces {
				text.WriteString("        ")
				continue
			}
			text.Write(s.raw[:])
		}
		raw := text.Bytes()
		if len(raw) > v.Width {
			raw = raw[:v.Width]
		}
		row[i] = String(strings.TrimRight(string(raw), " \x00"))
	}
	return row, nil
}

func (d *decoder) caseErr(pos int, err error) error {
	if errors.Is(err, io.EOF) && pos == 0 {
		return io.EOF
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: case %d: %v", ErrMalformed, len(d.file.Cases)+1, err)
}

func (d *decoder) number(x float64) Value {
	if x == d.sysmis {
		return Missing()
	}
	return Number(x)
}

func (d *decoder) rawSlot() (slot, error) {
	var s slot
	if _, err := io.ReadFull(d.r, s.raw[:]); err != nil {
		return s, err
	}
	s.kind = slotRaw
	return s, nil
}

// transcode converts labels and string cells to UTF-8 using the encoding
// record, falling back to Windows-1252 for invalid UTF-8 when none exists.
func (d *decoder) transcode() {
	var dec *encoding.Decoder
	if name := d.file.Encoding; name != "" && !strings.EqualFold(name, "UTF-8") {
		if enc, err := htmlindex.Get(name); err == nil {
			dec = enc.NewDecoder()
		}
	}
	conv := func(s string) string {
		if dec == nil {
			if utf8.ValidString(s) {
				return s
			}
			out, err := charmap.Windows1252.NewDecoder().String(s)
			if err != nil {
				return s
			}
			return out
		}
		out, err := dec.String(s)
		if err != nil {
			return s
		}
		return out
	}

	for _, v := range d.file.Variables {
		v.Name = conv(v.Name)
		v.Label = conv(v.Label)
		for k, l := range v.ValueLabels {
			v.ValueLabels[k] = conv(l)
		}
		if len(v.StringLabels) > 0 {
			labels := make(map[string]string, len(v.StringLabels))
			for k, l := range v.StringLabels {
				labels[conv(k)] = conv(l)
			}
			v.StringLabels = labels
		}
		for i, m := range v.MissingStrings {
			v.MissingStrings[i] = conv(m)
		}
	}
	for _, row := range d.file.Cases {
		for i, v := range d.file.Variables {
			if v.IsString() {
				row[i].Str = conv(row[i].Str)
			}
		}
	}
}

func (d *decoder) int32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return int32(d.order.Uint32(buf[:])), nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n > readChunk {
		var buf bytes.Buffer
		if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return buf.Bytes(), nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func roundUp(n, to int32) int32 {
	return (n + to - 1) / to * to
}

func trimField(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}
