// Package temporal maps storage units (bands, files) of climate datasets onto
// calendar time at monthly or annual granularity.
package temporal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidStep  = errors.New("temporal: invalid step")
	ErrInvalidStart = errors.New("temporal: invalid start")
	ErrInvalidCount = errors.New("temporal: count must be >= 1")
)

// Step is the band interval of a time-enabled layer.
type Step int

const (
	Annual Step = iota + 1
	Monthly
)

func ParseStep(s string) (Step, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P1Y":
		return Annual, nil
	case "P1M":
		return Monthly, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStep, s)
}

func (s Step) String() string {
	switch s {
	case Annual:
		return "P1Y"
	case Monthly:
		return "P1M"
	}
	return "Step(" + strconv.Itoa(int(s)) + ")"
}

// YearMonth is a calendar month. Month is 1..12.
type YearMonth struct {
	Year  int
	Month int
}

// Abs returns the absolute month count year*12+month.
func (ym YearMonth) Abs() int { return ym.Year*12 + ym.Month }

// FromAbs reverses Abs with floor division; a zero remainder is December of
// the previous year.
func FromAbs(abs int) YearMonth {
	year := floorDiv(abs, 12)
	month := abs - year*12
	if month == 0 {
		year--
		month = 12
	}
	return YearMonth{Year: year, Month: month}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Timestamp is a band time at a given step granularity.
type Timestamp struct {
	YearMonth
	Step Step
}

// Compact renders YYYY for annual steps and YYYY-MM for monthly ones.
func (t Timestamp) Compact() string {
	if t.Step == Annual {
		return fmt.Sprintf("%04d", t.Year)
	}
	return fmt.Sprintf("%04d-%02d", t.Year, t.Month)
}

// CatalogStamp renders the form stored in tile indexes. Annual stamps always
// carry January.
func (t Timestamp) CatalogStamp() string {
	m := t.Month
	if t.Step == Annual {
		m = 1
	}
	return fmt.Sprintf("%04d-%02d-00T00:00:00", t.Year, m)
}

// BandName is the WCS band label.
func (t Timestamp) BandName() string { return "B" + t.Compact() }

func (t Timestamp) String() string { return t.Compact() }

// ParseStart reads the start of a series. Annual series accept YYYY or
// YYYY-MM, monthly series require YYYY-MM.
func ParseStart(s string, step Step) (YearMonth, error) {
	s = strings.TrimSpace(s)
	year, month, hasMonth, ok := splitYearMonth(s)
	if !ok {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidStart, s)
	}
	switch step {
	case Annual:
		if !hasMonth {
			month = 1
		}
	case Monthly:
		if !hasMonth {
			return YearMonth{}, fmt.Errorf("%w: %q needs a month for %s", ErrInvalidStart, s, step)
		}
	default:
		return YearMonth{}, fmt.Errorf("%w: %d", ErrInvalidStep, int(step))
	}
	return YearMonth{Year: year, Month: month}, nil
}

func splitYearMonth(s string) (year, month int, hasMonth, ok bool) {
	ys, ms, found := strings.Cut(s, "-")
	if len(ys) != 4 || !digits(ys) {
		return 0, 0, false, false
	}
	year, _ = strconv.Atoi(ys)
	if !found {
		return year, 0, false, true
	}
	if len(ms) != 2 || !digits(ms) {
		return 0, 0, false, false
	}
	month, _ = strconv.Atoi(ms)
	if month < 1 || month > 12 {
		return 0, 0, false, false
	}
	return year, month, true, true
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
