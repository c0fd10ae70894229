package temporal

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BandTimeIndex maps 1-based band numbers onto timestamps. Timestamps are
// strictly increasing.
type BandTimeIndex struct {
	step  Step
	stamp []Timestamp
}

// Index builds the band-to-time mapping for count units starting at start.
func Index(start string, step Step, count int) (BandTimeIndex, error) {
	if step != Annual && step != Monthly {
		return BandTimeIndex{}, fmt.Errorf("%w: %d", ErrInvalidStep, int(step))
	}
	if count < 1 {
		return BandTimeIndex{}, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	ym, err := ParseStart(start, step)
	if err != nil {
		return BandTimeIndex{}, err
	}
	out := BandTimeIndex{step: step, stamp: make([]Timestamp, count)}
	for i := 1; i <= count; i++ {
		out.stamp[i-1] = unit(ym, step, i)
	}
	return out, nil
}

func unit(start YearMonth, step Step, i int) Timestamp {
	if step == Annual {
		return Timestamp{YearMonth: YearMonth{Year: start.Year + (i - 1), Month: start.Month}, Step: Annual}
	}
	return Timestamp{YearMonth: FromAbs(start.Abs() + (i - 1)), Step: Monthly}
}

func (b BandTimeIndex) Len() int   { return len(b.stamp) }
func (b BandTimeIndex) Step() Step { return b.step }

// At returns the timestamp of band i (1-based).
func (b BandTimeIndex) At(i int) (Timestamp, bool) {
	if i < 1 || i > len(b.stamp) {
		return Timestamp{}, false
	}
	return b.stamp[i-1], true
}

// Timestamps returns a copy of the ordered timestamps.
func (b BandTimeIndex) Timestamps() []Timestamp {
	out := make([]Timestamp, len(b.stamp))
	copy(out, b.stamp)
	return out
}

// BandNames renders every timestamp as a WCS band label.
func (b BandTimeIndex) BandNames() []string {
	out := make([]string, len(b.stamp))
	for i, t := range b.stamp {
		out[i] = t.BandName()
	}
	return out
}

// Extent is a begin/end/step time declaration.
type Extent struct {
	Begin string
	End   string
	Step  Step
}

// ParseExtent reads "begin/end/step".
func ParseExtent(s string) (Extent, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return Extent{}, fmt.Errorf("%w: extent %q is not begin/end/step", ErrInvalidStart, s)
	}
	step, err := ParseStep(parts[2])
	if err != nil {
		return Extent{}, err
	}
	e := Extent{Begin: parts[0], End: parts[1], Step: step}
	if _, err := e.bounds(); err != nil {
		return Extent{}, err
	}
	return e, nil
}

func (e Extent) String() string { return e.Begin + "/" + e.End + "/" + e.Step.String() }

func (e Extent) bounds() ([2]YearMonth, error) {
	b, err := ParseStart(e.Begin, e.Step)
	if err != nil {
		return [2]YearMonth{}, err
	}
	end, err := ParseStart(e.End, e.Step)
	if err != nil {
		return [2]YearMonth{}, err
	}
	return [2]YearMonth{b, end}, nil
}

// Span is the number of steps between begin and end, both inclusive. It is
// zero when end precedes begin.
func (e Extent) Span() (int, error) {
	bd, err := e.bounds()
	if err != nil {
		return 0, err
	}
	var n int
	if e.Step == Annual {
		n = bd[1].Year - bd[0].Year + 1
	} else {
		n = bd[1].Abs() - bd[0].Abs() + 1
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// Range enumerates every timestamp of the extent in order.
func (e Extent) Range() ([]Timestamp, error) {
	n, err := e.Span()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	idx, err := Index(e.Begin, e.Step, n)
	if err != nil {
		return nil, err
	}
	return idx.stamp, nil
}

// FromFilename derives the timestamp of a single-band source from the
// trailing _YYYY or _YYYY-MM of its base name.
func FromFilename(name string) (Timestamp, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	i := strings.LastIndex(base, "_")
	if i < 0 {
		return Timestamp{}, fmt.Errorf("%w: no time suffix in %q", ErrInvalidStart, name)
	}
	suffix := base[i+1:]
	step := Annual
	if strings.Contains(suffix, "-") {
		step = Monthly
	}
	ym, err := ParseStart(suffix, step)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{YearMonth: ym, Step: step}, nil
}
