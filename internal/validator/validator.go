// Package validator checks the TIME parameter of a request against the time
// extent compiled for the requested layer.
//
// A check walks Start -> FormatChecked -> RangeChecked and ends Accepted or
// Rejected. Validation never mutates the extent it reads, so one Validator is
// shared by every request.
package validator

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ECCC-CCCS/geomet-climate/internal/core/observability"
	"github.com/ECCC-CCCS/geomet-climate/internal/temporal"
)

type State int

const (
	Start State = iota
	FormatChecked
	RangeChecked
	Accepted
	Rejected
)

func (s State) String() string {
	switch s {
	case Start:
		return "start"
	case FormatChecked:
		return "format_checked"
	case RangeChecked:
		return "range_checked"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Code is the OGC exception code of a rejection.
type Code string

const (
	InvalidDimensionValue Code = "InvalidDimensionValue"
	NoMatch               Code = "NoMatch"
)

// Rejection messages, French first as the service has always sent them.
const (
	msgFormatYear  = "Format de temps invalide, format attendu : YYYY / Invalid time format, expected format: YYYY"
	msgFormatMonth = "Format de temps invalide, format attendu YYYY-MM / Invalid time format, expected format: YYYY-MM"
	msgRange       = "Temps en dehors des heures valides / Time outside valid hours"
	msgValue       = "Valeur de temps invalide / Time value is invalid"
)

// Result is the terminal state of one check. Timestamp and Band are set only
// when accepted; Code and Message only when rejected.
type Result struct {
	State     State
	Timestamp string
	Band      int
	Code      Code
	Message   string
}

func (r Result) Accepted() bool { return r.State == Accepted }

// RejectedFormat reports a request that does not match the step granularity.
func (r Result) RejectedFormat() bool {
	return r.State == Rejected && r.Code == InvalidDimensionValue
}

// RejectedRange reports a well-formed request outside the extent.
func (r Result) RejectedRange() bool { return r.State == Rejected && r.Code == NoMatch }

type steps struct {
	step  temporal.Step
	bands map[string]int
}

type Validator struct {
	memo *lru.Cache[string, steps]
}

const DefaultMemoSize = 512

// New returns a Validator that remembers the enumeration of up to size
// distinct extents.
func New(size int) (*Validator, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	c, err := lru.New[string, steps](size)
	if err != nil {
		return nil, fmt.Errorf("validator: %w", err)
	}
	return &Validator{memo: c}, nil
}

// Validate checks requested against extent, a "begin/end/step" string as
// published in ows_timeextent.
func (v *Validator) Validate(extent, requested string) Result {
	res := v.validate(extent, requested)
	outcome := "accepted"
	if res.State == Rejected {
		outcome = string(res.Code)
	}
	observability.IncTimeValidation(outcome)
	return res
}

func (v *Validator) validate(extent, requested string) Result {
	st, err := v.enumerate(extent)
	if err != nil {
		return reject(InvalidDimensionValue, msgValue)
	}

	// Start -> FormatChecked
	t, err := parseISO(requested)
	if err != nil {
		return reject(InvalidDimensionValue, msgValue)
	}
	rendered, msg := t.Format("2006"), msgFormatYear
	if st.step == temporal.Monthly {
		rendered, msg = t.Format("2006-01"), msgFormatMonth
	}
	if rendered != requested {
		return reject(InvalidDimensionValue, msg)
	}

	// FormatChecked -> RangeChecked
	band, ok := st.bands[rendered]
	if !ok {
		return reject(NoMatch, msgRange)
	}
	return Result{State: Accepted, Timestamp: rendered, Band: band}
}

func reject(c Code, msg string) Result {
	return Result{State: Rejected, Code: c, Message: msg}
}

func (v *Validator) enumerate(extent string) (steps, error) {
	if st, ok := v.memo.Get(extent); ok {
		return st, nil
	}
	e, err := temporal.ParseExtent(extent)
	if err != nil {
		return steps{}, err
	}
	all, err := e.Range()
	if err != nil {
		return steps{}, err
	}
	st := steps{step: e.Step, bands: make(map[string]int, len(all))}
	for i, ts := range all {
		st.bands[ts.Compact()] = i + 1
	}
	v.memo.Add(extent, st)
	return st, nil
}

// isoLayouts are the ISO 8601 calendar forms a client may send.
var isoLayouts = []string{
	"2006",
	"2006-01",
	"2006-01-02",
	"2006-01-02T15:04",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO 8601 date: %q", s)
}
