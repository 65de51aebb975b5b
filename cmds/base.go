package cmds

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lainio/err2/try"
)

const seedLength = 32

var ErrInvalid = errors.New("invalid command, check arguments")

type Result interface {
	JSON() ([]byte, error)
}

type Command interface {
	Validate() error
	Exec(w io.Writer) (r Result, err error)
}

// JSONResult is a Result of any JSON marshalable value.
type JSONResult struct {
	V any
}

func (r JSONResult) JSON() ([]byte, error) {
	return json.Marshal(r.V)
}

func ValidateSeed(seed string) error {
	if seed != "" && len(seed) != seedLength {
		return errors.New("seed must be empty or length of 32")
	}
	return nil
}

// ValidateTime checks that s is a clock time, e.g. 21:45 or 01:37:48.
func ValidateTime(s string) error {
	if _, err := time.Parse("15:04", s); err == nil {
		return nil
	}
	if _, err := time.Parse("15:04:05", s); err == nil {
		return nil
	}
	return fmt.Errorf("invalid time of day: %s", s)
}

// Fprintln is fmt.Fprintln but it allows writer to be nil. Note! it throws an
// error.
func Fprintln(w io.Writer, a ...any) {
	if w != nil {
		try.To1(fmt.Fprintln(w, a...))
	}
}

// Fprintf is fmt.Fprintf but it allows writer to be nil. Note! it throws an
// error.
func Fprintf(w io.Writer, format string, a ...any) {
	if w != nil {
		try.To1(fmt.Fprintf(w, format, a...))
	}
}

// ParseLoggingArgs feeds the glog flags, e.g. "-logtostderr=true -v=3", to
// the standard flag set.
func ParseLoggingArgs(s string) {
	args := make([]string, 1, 12)
	args[0] = os.Args[0]
	args = append(args, strings.Fields(s)...)
	orgArgs := os.Args
	os.Args = args
	flag.Parse()
	os.Args = orgArgs
}
