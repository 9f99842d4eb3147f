// Package errdefs defines the error kinds shared by every archdev component
// and their mapping onto HTTP status codes.
package errdefs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrHostNotFound            = errors.New("host not found")
	ErrVMNotFound              = errors.New("vm not found")
	ErrDispatchTimeout         = errors.New("dispatch timeout")
	ErrCommandFailed           = errors.New("command failed")
	ErrPortAllocationExhausted = errors.New("port allocation exhausted")
	ErrReservationNotFound     = errors.New("reservation not found")
	ErrInvalidQuantity         = errors.New("invalid quantity")
)

// Error carries a kind sentinel, a human readable message and an optional cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CommandFailedError is returned when a dispatched command exits non-zero or
// the transport to the host fails. ExitCode is -1 for transport failures.
type CommandFailedError struct {
	Host     string
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("command failed on host %s (exit %d): %s", e.Host, e.ExitCode, summarize(e.Command))
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + summarize(out)
	}
	return msg
}

func (e *CommandFailedError) Is(target error) bool {
	return target == ErrCommandFailed
}

func Validation(message string, cause error) error {
	return &Error{Kind: ErrValidation, Message: message, Cause: cause}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func HostNotFound(id string) error {
	return &Error{Kind: ErrHostNotFound, Message: fmt.Sprintf("host %q not found", id)}
}

func VMNotFound(name string) error {
	return &Error{Kind: ErrVMNotFound, Message: fmt.Sprintf("vm %q not found", name)}
}

func DispatchTimeout(host, command string, cause error) error {
	return &Error{
		Kind:    ErrDispatchTimeout,
		Message: fmt.Sprintf("command on host %s timed out: %s", host, summarize(command)),
		Cause:   cause,
	}
}

func PortAllocationExhausted(host string, attempts int) error {
	return &Error{
		Kind:    ErrPortAllocationExhausted,
		Message: fmt.Sprintf("no free port pair on host %s after %d attempts", host, attempts),
	}
}

func ReservationNotFound(host, name string) error {
	return &Error{
		Kind:    ErrReservationNotFound,
		Message: fmt.Sprintf("no port reservation for %s on host %s", name, host),
	}
}

func InvalidQuantity(value string) error {
	return &Error{Kind: ErrInvalidQuantity, Message: fmt.Sprintf("invalid quantity %q", value)}
}

// HTTPStatus maps an error onto the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, ErrVMNotFound), errors.Is(err, ErrHostNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

const maxSummary = 160

// summarize keeps the first line of s and truncates it, domain XML and
// command output can be large.
func summarize(s string) string {
	first, _, multi := strings.Cut(s, "\n")
	if len(first) > maxSummary {
		cut := maxSummary
		for cut > 0 && !utf8.RuneStart(first[cut]) {
			cut--
		}
		return first[:cut] + "..."
	}
	if multi {
		return first + " ..."
	}
	return first
}
