package savfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func satisfactionFile(compression Compression) *File {
	return &File{
		Header: Header{Compression: compression, FileLabel: "November wave"},
		Variables: []*Variable{
			{
				Name:  "Q2",
				Label: "How would you rate your overall satisfaction?",
				ValueLabels: map[float64]string{
					1:  "1 (Very Dissatisfied)",
					10: "10 (Very Satisfied)",
				},
			},
			{
				Name:  "Q4A",
				Width: 3,
				StringLabels: map[string]string{
					"Y": "Yes",
					"N": "No",
				},
			},
			{Name: "Comments_Long_Name", Width: 20},
			{Name: "Weight", MissingValues: []float64{-9}},
		},
		Cases: [][]Value{
			{Number(10), String("Y"), String("great machine thanks"), Number(1.25)},
			{Number(1), String("N"), String(""), Number(-9)},
			{Number(7), String("Y"), String("ok"), Missing()},
			{Missing(), String(""), String("x"), Number(1234.5)},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name        string
		compression Compression
	}{
		{"uncompressed", CompressionNone},
		{"bytecode", CompressionBytecode},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, satisfactionFile(tc.compression)))

			f, err := Read(&buf)
			require.NoError(t, err)

			assert.Equal(t, tc.compression, f.Header.Compression)
			assert.Equal(t, "November wave", f.Header.FileLabel)
			assert.Equal(t, int32(4), f.Header.Cases)
			assert.Equal(t, "UTF-8", f.Encoding)

			require.Len(t, f.Variables, 4)
			assert.Equal(t, "Q2", f.Variables[0].Name)
			assert.Equal(t, "V1", f.Variables[0].ShortName)
			assert.Equal(t, "How would you rate your overall satisfaction?", f.Variables[0].Label)
			assert.Equal(t, "Comments_Long_Name", f.Variables[2].Name)
			assert.Equal(t, 20, f.Variables[2].Width)
			assert.Equal(t, []float64{-9}, f.Variables[3].MissingValues)

			require.Len(t, f.Cases, 4)
			display := func(row int) []string {
				out := make([]string, len(f.Variables))
				for i := range f.Variables {
					out[i] = f.Display(i, f.Cases[row][i])
				}
				return out
			}
			assert.Equal(t, []string{"10 (Very Satisfied)", "Yes", "great machine thanks", "1.25"}, display(0))
			assert.Equal(t, []string{"1 (Very Dissatisfied)", "No", "", ""}, display(1))
			assert.Equal(t, []string{"7", "Yes", "ok", ""}, display(2))
			assert.Equal(t, []string{"", "", "x", "1234.5"}, display(3))
		})
	}
}

func TestCreateAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wave.sav")
	require.NoError(t, Create(path, satisfactionFile(CompressionBytecode)))

	f, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, f.Cases, 4)
}

func TestRead_NotSAV(t *testing.T) {
	t.Run("short input", func(t *testing.T) {
		_, err := Read(bytes.NewReader([]byte("hello")))
		assert.ErrorIs(t, err, ErrNotSAV)
	})

	t.Run("bad magic", func(t *testing.T) {
		buf := make([]byte, headerSize)
		copy(buf, "PK\x03\x04")
		_, err := Read(bytes.NewReader(buf))
		assert.ErrorIs(t, err, ErrNotSAV)
	})

	t.Run("bad layout code", func(t *testing.T) {
		buf := make([]byte, headerSize)
		copy(buf, "$FL2")
		binary.LittleEndian.PutUint32(buf[64:68], 77)
		_, err := Read(bytes.NewReader(buf))
		assert.ErrorIs(t, err, ErrNotSAV)
	})
}

func TestRead_ZSAVUnsupported(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "$FL3")
	binary.LittleEndian.PutUint32(buf[64:68], 2)
	binary.LittleEndian.PutUint32(buf[72:76], uint32(CompressionZLib))

	_, err := Read(bytes.NewReader(buf))
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

// dictionary returns a little-endian header followed by the given 32-bit
// words and raw bytes.
func dictionary(parts ...any) []byte {
	var buf bytes.Buffer
	header := make([]byte, headerSize)
	copy(header, "$FL2")
	binary.LittleEndian.PutUint32(header[64:68], 2)
	buf.Write(header)
	for _, p := range parts {
		switch p := p.(type) {
		case int:
			_ = binary.Write(&buf, binary.LittleEndian, int32(p))
		case string:
			buf.WriteString(p)
		}
	}
	return buf.Bytes()
}

func TestRead_OversizedLengths(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "variable label length",
			data: dictionary(recVariable, 0, 1, 0, 0, 0, "Q1      ", 0x7fffffff),
		},
		{
			name: "negative variable label length",
			data: dictionary(recVariable, 0, 1, 0, 0, 0, "Q1      ", -4),
		},
		{
			name: "value label count",
			data: dictionary(recVariable, 0, 0, 0, 0, 0, "Q1      ", recValueLabels, 0x7fffffff),
		},
		{
			name: "extension size",
			data: dictionary(recVariable, 0, 0, 0, 0, 0, "Q1      ", recExtension, extLongNames, 1, 0x7fffffff),
		},
		{
			name: "extension size times count",
			data: dictionary(recVariable, 0, 0, 0, 0, 0, "Q1      ", recExtension, extLongNames, 0x10000, 0x10000),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = Read(bytes.NewReader(tt.data))
			})
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestRead_LargeExtensionTruncated(t *testing.T) {
	// declared within limits but the data stops short
	data := dictionary(recVariable, 0, 0, 0, 0, 0, "Q1      ", recExtension, extLongNames, 1, 1<<20, "Q1=Satisfaction")

	_, err := Read(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRead_TruncatedData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, satisfactionFile(CompressionNone)))
	raw := buf.Bytes()

	_, err := Read(bytes.NewReader(raw[:len(raw)-5]))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRead_TruncatedDictionary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, satisfactionFile(CompressionNone)))

	_, err := Read(bytes.NewReader(buf.Bytes()[:headerSize+20]))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWrite_Validation(t *testing.T) {
	t.Run("no variables", func(t *testing.T) {
		err := Write(&bytes.Buffer{}, &File{})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("ragged case", func(t *testing.T) {
		f := &File{
			Variables: []*Variable{{Name: "Q1"}},
			Cases:     [][]Value{{Number(1), Number(2)}},
		}
		assert.ErrorIs(t, Write(&bytes.Buffer{}, f), ErrMalformed)
	})

	t.Run("zlib", func(t *testing.T) {
		f := &File{Header: Header{Compression: CompressionZLib}, Variables: []*Variable{{Name: "Q1"}}}
		assert.ErrorIs(t, Write(&bytes.Buffer{}, f), ErrUnsupportedCompression)
	})
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.sav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
