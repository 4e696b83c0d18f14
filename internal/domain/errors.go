package domain

import "errors"

// User-input failure kinds. These surface as chat replies with an example
// hint and are never treated as operational failures.
var (
	ErrUnparseableTime = errors.New("unable to extract a date from the message")
	ErrUnparseableDays = errors.New("unable to parse the weekday expression")
	ErrPastTime        = errors.New("the resolved time is in the past")
)

// Setting validation failures, surfaced by the !lunch config command.
var (
	ErrBadTimezone = errors.New("unknown timezone, expected an IANA name like Europe/Zurich")
	ErrBadLocale   = errors.New("unsupported language, expected en or de")
	ErrBadPrice    = errors.New("unknown price category, expected int, ext, stud or off")
	ErrBadSetting  = errors.New("unknown setting")
)

const (
	dateExamples = "Examples: `tuesday at noon`, `2026-11-30 10:15pm`, `july 2`, `6 hours`, `8pm`, `4d`, `2wk`"
	cronExamples = "Valid weekday examples: `mon-fri`, `mon,tue,thu`, `mon-wed,fri`"
)

// SyntaxError carries a user-facing message plus a syntax example hint.
// It wraps one of the sentinel kinds above so callers can test with
// errors.Is while the command layer replies with UserMessage.
type SyntaxError struct {
	kind    error
	Message string
	Hint    string
}

func newSyntaxError(kind error, message, hint string) *SyntaxError {
	return &SyntaxError{kind: kind, Message: message, Hint: hint}
}

func (e *SyntaxError) Error() string { return e.Message }
func (e *SyntaxError) Unwrap() error { return e.kind }

// UserMessage is the full reply body: message plus example hint.
func (e *SyntaxError) UserMessage() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + "\n\n" + e.Hint
}
