package x11

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoDisplay means neither a flag nor $DISPLAY named an X server
var ErrNoDisplay = errors.New("no X11 display configured")

// ResolveDisplay returns the endpoint to connect to: the explicit value if set,
// otherwise $DISPLAY. ok is false when neither is set.
func ResolveDisplay(explicit string) (display string, ok bool) {
	if d := strings.TrimSpace(explicit); d != "" {
		return d, true
	}
	if d := strings.TrimSpace(os.Getenv("DISPLAY")); d != "" {
		return d, true
	}
	return "", false
}

// OpenError explains why a display could not be opened
type OpenError struct {
	Display string
	Err     error
}

func (e *OpenError) Error() string {
	if e.Display == "" {
		return "could not open display, DISPLAY environment variable not set, are you sure the X server is started?"
	}
	return fmt.Sprintf("could not open display %s, check if your X server is running and/or the DISPLAY environment value is correct: %v", e.Display, e.Err)
}

func (e *OpenError) Unwrap() error {
	if e.Display == "" {
		return ErrNoDisplay
	}
	return e.Err
}

// Connect resolves the display and opens a session on it. Failures come back
// as *OpenError; errors.Is(err, ErrNoDisplay) tells the two cases apart.
func Connect(explicit string) (*Session, error) {
	display, ok := ResolveDisplay(explicit)
	if !ok {
		return nil, &OpenError{}
	}

	s, err := Open(display)
	if err != nil {
		return nil, &OpenError{Display: display, Err: err}
	}
	return s, nil
}
