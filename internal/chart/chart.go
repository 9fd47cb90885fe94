// Package chart draws grouped horizontal bar charts of a Breakdown.
package chart

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/godilite/surveydash/internal/service"
)

// Format is the output image format.
type Format string

const (
	SVG Format = "svg"
	PNG Format = "png"
)

var ErrNothingToDraw = errors.New("nothing to draw")

const (
	defaultWidth = 900
	barHeight    = 16
	groupGap     = 12
	padding      = 12
	labelGap     = 8
	valueSpace   = 64
	legendSwatch = 10
	wrapAt       = 42
)

// palette matches the familiar tab10 cycle.
var palette = []drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
	drawing.ColorFromHex("e377c2"),
	drawing.ColorFromHex("7f7f7f"),
	drawing.ColorFromHex("bcbd22"),
	drawing.ColorFromHex("17becf"),
}

// Options controls the look of a chart.
type Options struct {
	Format Format
	Width  int
	// Title is drawn above the legend when set.
	Title string
	// ValueFormat is the fmt verb used for bar labels, "%.1f%%" by default.
	ValueFormat string
	FontSize    float64
}

func (o Options) withDefaults(b service.Breakdown) Options {
	if o.Format == "" {
		o.Format = SVG
	}
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.ValueFormat == "" {
		o.ValueFormat = "%.1f%%"
		if b.Unit == service.UnitScore {
			o.ValueFormat = "%.2f"
		}
	}
	if o.FontSize <= 0 {
		o.FontSize = 10
	}
	return o
}

// ContentType returns the MIME type for a format.
func ContentType(f Format) string {
	if f == PNG {
		return "image/png"
	}
	return "image/svg+xml"
}

// Color returns the bar color used for the i-th source.
func Color(i int) drawing.Color {
	return palette[i%len(palette)]
}

// Render draws b as a grouped horizontal bar chart: one group per category,
// the first category at the bottom, and one bar per source in source order,
// each labelled with its value. There are no value ticks or gridlines, only
// the category axis and a legend of sources.
func Render(w io.Writer, b service.Breakdown, opts Options) error {
	if len(b.Categories) == 0 || len(b.Sources) == 0 {
		return ErrNothingToDraw
	}
	opts = opts.withDefaults(b)

	provider := chart.SVG
	if opts.Format == PNG {
		provider = chart.PNG
	}

	font, err := chart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("load font: %w", err)
	}

	l := newLayout(b, opts)
	measure, err := provider(opts.Width, 100)
	if err != nil {
		return err
	}
	measure.SetFont(font)
	measure.SetFontSize(opts.FontSize)
	l.measure(measure)

	r, err := provider(opts.Width, l.height)
	if err != nil {
		return err
	}
	r.SetFont(font)
	r.SetFontSize(opts.FontSize)

	l.draw(r)
	return r.Save(w)
}

type layout struct {
	b      service.Breakdown
	opts   Options
	labels [][]string
	lineH  int
	left   int
	top    int
	height int
	max    float64
}

func newLayout(b service.Breakdown, opts Options) *layout {
	l := &layout{b: b, opts: opts}
	l.labels = make([][]string, len(b.Categories))
	for i, c := range b.Categories {
		l.labels[i] = wrap(c, wrapAt)
	}
	for _, row := range b.Values {
		for _, v := range row {
			if v > l.max {
				l.max = v
			}
		}
	}
	if l.max == 0 {
		l.max = 1
	}
	return l
}

func (l *layout) groupHeight() int {
	return len(l.b.Sources)*barHeight + groupGap
}

func (l *layout) measure(r chart.Renderer) {
	l.lineH = r.MeasureText("Ag").Height() + 2
	widest := 0
	for _, lines := range l.labels {
		for _, line := range lines {
			if w := r.MeasureText(line).Width(); w > widest {
				widest = w
			}
		}
	}
	maxLeft := l.opts.Width / 2
	l.left = min(padding+widest+labelGap, maxLeft)

	l.top = padding
	if l.opts.Title != "" {
		l.top += l.lineH + padding/2
	}
	l.top += l.lineH + padding // legend row
	l.height = l.top + len(l.b.Categories)*l.groupHeight() + padding
}

func (l *layout) draw(r chart.Renderer) {
	r.SetFillColor(drawing.ColorWhite)
	rect(r, 0, 0, l.opts.Width, l.height)
	r.Fill()

	y := padding
	if l.opts.Title != "" {
		y += l.lineH
		r.SetFontColor(drawing.ColorBlack)
		l.text(r, l.opts.Title, padding, y)
		y += padding / 2
	}
	l.drawLegend(r, y)

	plotBottom := l.height - padding
	plotWidth := l.opts.Width - l.left - valueSpace - padding
	n := len(l.b.Categories)
	for i := range n {
		// first category at the bottom
		groupTop := plotBottom - (i+1)*l.groupHeight() + groupGap/2
		l.drawCategoryLabel(r, i, groupTop)
		for j := range l.b.Sources {
			v := l.b.Values[i][j]
			barTop := groupTop + j*barHeight
			barW := int(v / l.max * float64(plotWidth))
			if barW > 0 {
				r.SetFillColor(Color(j))
				rect(r, l.left, barTop+1, l.left+barW, barTop+barHeight-1)
				r.Fill()
			}
			r.SetFontColor(drawing.ColorBlack)
			l.text(r, fmt.Sprintf(l.opts.ValueFormat, v), l.left+barW+4, barTop+barHeight-4)
		}
	}

	r.SetStrokeColor(drawing.ColorBlack)
	r.SetStrokeWidth(1)
	r.MoveTo(l.left, l.top)
	r.LineTo(l.left, plotBottom)
	r.Stroke()
}

func (l *layout) drawLegend(r chart.Renderer, y int) {
	x := padding
	baseline := y + l.lineH
	for j, src := range l.b.Sources {
		r.SetFillColor(Color(j))
		rect(r, x, baseline-legendSwatch, x+legendSwatch, baseline)
		r.Fill()
		x += legendSwatch + 4
		r.SetFontColor(drawing.ColorBlack)
		l.text(r, src, x, baseline)
		x += r.MeasureText(src).Width() + padding
	}
}

func (l *layout) drawCategoryLabel(r chart.Renderer, i, groupTop int) {
	lines := l.labels[i]
	block := len(lines) * l.lineH
	center := groupTop + len(l.b.Sources)*barHeight/2
	y := center - block/2 + l.lineH - 2
	r.SetFontColor(drawing.ColorBlack)
	for _, line := range lines {
		w := r.MeasureText(line).Width()
		x := max(l.left-labelGap-w, 2)
		l.text(r, line, x, y)
		y += l.lineH
	}
}

// text draws s at (x, y). The SVG renderer writes text bodies verbatim, so
// labels taken from export files are escaped first.
func (l *layout) text(r chart.Renderer, s string, x, y int) {
	if l.opts.Format == SVG {
		s = html.EscapeString(s)
	}
	r.Text(s, x, y)
}

func rect(r chart.Renderer, x0, y0, x1, y1 int) {
	r.MoveTo(x0, y0)
	r.LineTo(x1, y0)
	r.LineTo(x1, y1)
	r.LineTo(x0, y1)
	r.Close()
}

// wrap breaks s into lines of at most width runes at spaces. Words longer
// than width get a line of their own.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{s}
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len([]rune(line))+1+len([]rune(w)) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
