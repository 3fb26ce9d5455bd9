package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// Severity orders the outcome of validation. Severities at or above Error
// force a rollback.
type Severity int

const (
	OK Severity = iota
	Info
	Warning
	Error
	Cancel
)

var severityNames = map[Severity]string{
	OK:      "ok",
	Info:    "info",
	Warning: "warning",
	Error:   "error",
	Cancel:  "cancel",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return "severity(" + strconv.Itoa(int(s)) + ")"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(d []byte) error {
	for ss, n := range severityNames {
		if n == strings.ToLower(string(d)) {
			*s = ss
			return nil
		}
	}
	return fmt.Errorf("unrecognized severity %q", d)
}

// Status is the result of validation, possibly made of other statuses.
type Status struct {
	Severity Severity
	Message  string
	Children []Status
}

// StatusOK is the zero status.
var StatusOK = Status{}

func NewStatus(sev Severity, msg string) Status {
	return Status{Severity: sev, Message: msg}
}

func Errorf(sev Severity, format string, args ...any) Status {
	return Status{Severity: sev, Message: fmt.Sprintf(format, args...)}
}

func (s Status) IsOK() bool {
	return s.Severity == OK
}

// Merge combines statuses. The result has the highest severity among
// them. OK statuses are dropped, and a single remaining status is returned
// as is.
func Merge(ss ...Status) Status {
	var kept []Status
	for _, s := range ss {
		if !s.IsOK() {
			kept = append(kept, s)
		}
	}
	switch len(kept) {
	case 0:
		return StatusOK
	case 1:
		return kept[0]
	}
	res := Status{Children: kept}
	for _, s := range kept {
		res.Severity = max(res.Severity, s.Severity)
	}
	res.Message = fmt.Sprintf("%d problems", len(kept))
	return res
}

func (s Status) String() string {
	if s.IsOK() && s.Message == "" {
		return "ok"
	}
	if len(s.Children) == 0 {
		return s.Severity.String() + ": " + s.Message
	}
	parts := make([]string, len(s.Children))
	for i, c := range s.Children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s: %s [%s]", s.Severity, s.Message, strings.Join(parts, "; "))
}

// Err returns s as an error if its severity is Error or worse.
func (s Status) Err() error {
	if s.Severity < Error {
		return nil
	}
	return &StatusError{Status: s}
}

type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return e.Status.String()
}
