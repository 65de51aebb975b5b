package comm

import (
	"errors"
	"fmt"
	"strings"
)

// MessageSendingError is returned when none of the delivery paths worked.
type MessageSendingError struct {
	ConnectionID string
	Label        string
	MessageID    string
	Errors       []error
	msg          string
}

func newSendingError(out *OutboundMessage, errs []error, format string, a ...any) *MessageSendingError {
	e := &MessageSendingError{
		MessageID: out.Message.ID(),
		Errors:    errs,
		msg:       fmt.Sprintf(format, a...),
	}
	if out.Connection != nil {
		e.ConnectionID = out.Connection.ID
		e.Label = out.Connection.TheirLabel
	}
	return e
}

func (e *MessageSendingError) Error() string {
	if len(e.Errors) == 0 {
		return e.msg
	}
	s := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		s[i] = err.Error()
	}
	return e.msg + ": " + strings.Join(s, "; ")
}

func (e *MessageSendingError) Unwrap() []error {
	return e.Errors
}

// UnsupportedProtocolVersionError is returned when no handler matches the
// message type, or the type cannot be parsed.
type UnsupportedProtocolVersionError struct {
	MessageType string
	Code        string
}

func (e *UnsupportedProtocolVersionError) Error() string {
	return fmt.Sprintf("unsupported message type %q (%s)", e.MessageType, e.Code)
}

// ErrNoConnection is returned for outbound messages without connection and
// service.
var ErrNoConnection = errors.New("outbound message has no associated connection")
