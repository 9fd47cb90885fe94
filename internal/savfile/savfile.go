// Package savfile reads and writes SPSS system files (.sav), the export
// format survey tools produce for each wave of responses.
//
// Only the parts of the format a respondent table needs are supported:
// numeric and string variables, variable and value labels, user-missing
// values, long variable names, the character encoding record, and both the
// uncompressed and bytecode-compressed data layouts.
package savfile

import (
	"errors"
	"math"
	"strconv"
)

var (
	ErrNotSAV                 = errors.New("not an SPSS system file")
	ErrUnsupportedCompression = errors.New("unsupported compression")
	ErrMalformed              = errors.New("malformed system file")
)

// Compression identifies how case data is laid out.
type Compression int32

const (
	CompressionNone     Compression = 0
	CompressionBytecode Compression = 1
	CompressionZLib     Compression = 2
)

const (
	headerSize   = 176
	slotSize     = 8
	defaultBias  = 100.0
	maxLabelSize = 120
)

// SysMissing is the default system-missing value, -DBL_MAX.
var SysMissing = -math.MaxFloat64

// Header is the fixed-size file header.
type Header struct {
	Product         string
	LayoutCode      int32
	NominalCaseSize int32
	Compression     Compression
	WeightIndex     int32
	Cases           int32
	Bias            float64
	CreationDate    string
	CreationTime    string
	FileLabel       string
}

// Variable is one column of the dictionary.
type Variable struct {
	Name      string
	ShortName string
	Label     string
	// Width is 0 for numeric variables and the byte width for strings.
	Width int

	MissingValues  []float64
	MissingRange   *[2]float64
	MissingStrings []string

	ValueLabels  map[float64]string
	StringLabels map[string]string
}

// IsString reports whether the variable holds text.
func (v *Variable) IsString() bool {
	return v.Width > 0
}

func (v *Variable) slots() int {
	if v.Width == 0 {
		return 1
	}
	return (v.Width + slotSize - 1) / slotSize
}

func (v *Variable) isMissingNumber(x float64) bool {
	for _, m := range v.MissingValues {
		if m == x {
			return true
		}
	}
	if v.MissingRange != nil && x >= v.MissingRange[0] && x <= v.MissingRange[1] {
		return true
	}
	return false
}

func (v *Variable) isMissingString(s string) bool {
	for _, m := range v.MissingStrings {
		if m == s {
			return true
		}
	}
	return false
}

// Value is one cell. Str is used for string variables, Num otherwise.
type Value struct {
	Num        float64
	Str        string
	SysMissing bool
}

// Number returns a numeric cell.
func Number(x float64) Value {
	return Value{Num: x}
}

// String returns a string cell.
func String(s string) Value {
	return Value{Str: s}
}

// Missing returns a system-missing numeric cell.
func Missing() Value {
	return Value{SysMissing: true}
}

// File is a decoded system file.
type File struct {
	Header    Header
	Variables []*Variable
	Encoding  string
	Documents []string
	Cases     [][]Value
}

// Display renders cell v of variable i the way a reader of the survey
// expects it: value labels applied, user- and system-missing values as "",
// unlabeled numbers in their shortest decimal form.
func (f *File) Display(i int, v Value) string {
	vr := f.Variables[i]
	if vr.IsString() {
		if vr.isMissingString(v.Str) {
			return ""
		}
		if l, ok := vr.StringLabels[v.Str]; ok {
			return l
		}
		return v.Str
	}
	if v.SysMissing || vr.isMissingNumber(v.Num) {
		return ""
	}
	if l, ok := vr.ValueLabels[v.Num]; ok {
		return l
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}
