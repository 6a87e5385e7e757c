package billing

import (
	"strconv"
	"time"
)

// Period is a billing period encoded as YYYYMM.
type Period string

// ParsePeriod validates a YYYYMM string.
func ParsePeriod(value string) (Period, error) {
	if len(value) != 6 {
		return "", ErrInvalidPeriod
	}
	year, err := strconv.Atoi(value[:4])
	if err != nil || year < 1900 {
		return "", ErrInvalidPeriod
	}
	month, err := strconv.Atoi(value[4:])
	if err != nil || month < 1 || month > 12 {
		return "", ErrInvalidPeriod
	}
	return Period(value), nil
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() (time.Time, error) {
	if _, err := ParsePeriod(string(p)); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse("200601", string(p))
	if err != nil {
		return time.Time{}, ErrInvalidPeriod
	}
	return t.UTC(), nil
}

// Label renders the period as YYYY-MM.
func (p Period) Label() string {
	if len(p) != 6 {
		return string(p)
	}
	return string(p[:4]) + "-" + string(p[4:])
}

func (p Period) String() string { return string(p) }

// PeriodRange is an inclusive period filter. Empty bounds are open.
type PeriodRange struct {
	From Period
	To   Period
}

// Validate checks both bounds.
func (r PeriodRange) Validate() error {
	if r.From != "" {
		if _, err := ParsePeriod(string(r.From)); err != nil {
			return err
		}
	}
	if r.To != "" {
		if _, err := ParsePeriod(string(r.To)); err != nil {
			return err
		}
	}
	if r.From != "" && r.To != "" && r.From > r.To {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether p falls inside the range.
func (r PeriodRange) Contains(p Period) bool {
	if r.From != "" && p < r.From {
		return false
	}
	if r.To != "" && p > r.To {
		return false
	}
	return true
}
