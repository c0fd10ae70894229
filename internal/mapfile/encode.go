package mapfile

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
)

type writer struct {
	w     *bufio.Writer
	depth int
}

func (w *writer) line(parts ...string) {
	w.w.WriteString(strings.Repeat("  ", w.depth))
	w.w.WriteString(strings.Join(parts, " "))
	w.w.WriteByte('\n')
}

func (w *writer) open(kw string) { w.line(kw); w.depth++ }

func (w *writer) end() { w.depth--; w.line("END") }

func (w *writer) str(kw, v string) {
	if v != "" {
		w.line(kw, quote(v))
	}
}

func (w *writer) raw(kw, v string) {
	if v != "" {
		w.line(kw, v)
	}
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func nums(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, " ")
}

func ints(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

// Encode writes m in mapfile syntax.
func Encode(out io.Writer, m Map) error {
	w := &writer{w: bufio.NewWriter(out)}
	w.open("MAP")
	w.str("NAME", m.Name)
	if len(m.Extent) == 4 {
		w.line("EXTENT", nums(m.Extent))
	}
	if m.Size[0] > 0 {
		w.line("SIZE", strconv.Itoa(m.Size[0]), strconv.Itoa(m.Size[1]))
	}
	w.raw("UNITS", m.Units)
	w.str("IMAGETYPE", m.ImageType)
	for _, it := range m.Config {
		w.line("CONFIG", quote(it.Key), quote(it.Value))
	}
	projection(w, m.Projection)

	w.open("WEB")
	metadata(w, m.Web.Metadata)
	w.end()

	for _, f := range m.OutputFormats {
		w.open("OUTPUTFORMAT")
		w.str("NAME", f.Name)
		w.str("DRIVER", f.Driver)
		w.str("MIMETYPE", f.MimeType)
		w.str("EXTENSION", f.Extension)
		w.raw("IMAGEMODE", f.ImageMode)
		if f.Transparent {
			w.line("TRANSPARENT", "ON")
		}
		for _, o := range f.FormatOptions {
			w.str("FORMATOPTION", o)
		}
		w.end()
	}

	for _, s := range m.Symbols {
		w.open("SYMBOL")
		w.str("NAME", s.Name)
		w.raw("TYPE", s.Type)
		if s.Filled {
			w.line("FILLED", "TRUE")
		}
		if len(s.Points) > 0 {
			w.line("POINTS", nums(s.Points), "END")
		}
		w.end()
	}

	for _, l := range m.Layers {
		encodeLayer(w, l)
	}
	w.end()
	return w.w.Flush()
}

// EncodeLayer renders a single LAYER block.
func EncodeLayer(l Layer) []byte {
	var buf bytes.Buffer
	w := &writer{w: bufio.NewWriter(&buf)}
	encodeLayer(w, l)
	_ = w.w.Flush()
	return buf.Bytes()
}

func encodeLayer(w *writer, l Layer) {
	w.open("LAYER")
	w.str("NAME", l.Name)
	w.raw("TYPE", l.Type)
	w.raw("STATUS", l.Status)
	w.raw("CONNECTIONTYPE", l.ConnectionType)
	w.str("CONNECTION", l.Connection)
	w.str("DATA", l.Data)
	w.str("TILEINDEX", l.TileIndex)
	w.str("TILEITEM", l.TileItem)
	w.str("TEMPLATE", l.Template)
	if l.Dump {
		w.line("DUMP", "TRUE")
	}
	if l.Tolerance > 0 {
		w.line("TOLERANCE", strconv.Itoa(l.Tolerance))
	}
	w.str("CLASSGROUP", l.ClassGroup)
	projection(w, l.Projection)
	if len(l.Metadata) > 0 {
		metadata(w, l.Metadata)
	}
	for _, c := range l.Classes {
		w.open("CLASS")
		w.str("NAME", c.Name)
		w.str("GROUP", c.Group)
		if c.Expression != "" {
			if strings.HasPrefix(c.Expression, "(") {
				w.line("EXPRESSION", c.Expression)
			} else {
				w.line("EXPRESSION", quote(c.Expression))
			}
		}
		for _, s := range c.Styles {
			w.open("STYLE")
			if len(s.Color) > 0 {
				w.line("COLOR", ints(s.Color))
			}
			if len(s.OutlineColor) > 0 {
				w.line("OUTLINECOLOR", ints(s.OutlineColor))
			}
			if len(s.ColorRange) > 0 {
				w.line("COLORRANGE", ints(s.ColorRange))
			}
			if len(s.DataRange) > 0 {
				w.line("DATARANGE", nums(s.DataRange))
			}
			w.str("RANGEITEM", s.RangeItem)
			w.str("SYMBOL", s.Symbol)
			if s.Size > 0 {
				w.line("SIZE", strconv.FormatFloat(s.Size, 'f', -1, 64))
			}
			if s.Width > 0 {
				w.line("WIDTH", strconv.FormatFloat(s.Width, 'f', -1, 64))
			}
			w.end()
		}
		w.end()
	}
	w.end()
}

func projection(w *writer, p []string) {
	if len(p) == 0 {
		return
	}
	w.open("PROJECTION")
	for _, s := range p {
		for _, tok := range projTokens(s) {
			w.line(quote(tok))
		}
	}
	w.end()
}

// projTokens splits "+proj=longlat +datum=WGS84" into one entry per
// parameter. init references stay whole.
func projTokens(s string) []string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "+") {
		return []string{s}
	}
	var out []string
	for _, f := range strings.Fields(s) {
		out = append(out, strings.TrimPrefix(f, "+"))
	}
	return out
}

func metadata(w *writer, md Metadata) {
	w.open("METADATA")
	for _, it := range md {
		w.line(quote(it.Key), quote(it.Value))
	}
	w.end()
}
