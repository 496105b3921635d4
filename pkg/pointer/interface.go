package pointer

import "fmt"

// Window identifies the window a grab is anchored to
type Window uint32

// Cursor identifies a server-side cursor resource
type Cursor uint32

// EventMask selects the pointer event classes reported during a grab
type EventMask uint16

const (
	ButtonPressMask EventMask = 1 << 2
	MotionMask      EventMask = 1 << 6

	// DefaultMask is what the idle loop listens for
	DefaultMask = MotionMask | ButtonPressMask
)

// GrabStatus is the server's answer to a grab request
type GrabStatus byte

const (
	GrabSuccess GrabStatus = iota
	AlreadyGrabbed
	InvalidTime
	NotViewable
	Frozen
)

func (s GrabStatus) String() string {
	switch s {
	case GrabSuccess:
		return "success"
	case AlreadyGrabbed:
		return "already grabbed"
	case InvalidTime:
		return "invalid time"
	case NotViewable:
		return "not viewable"
	case Frozen:
		return "frozen"
	}
	return fmt.Sprintf("unknown status %d", byte(s))
}

// AllowMode controls how a frozen synchronous grab resumes
type AllowMode byte

const (
	// AllowSyncPointer lets one pointer event through, then freezes again
	AllowSyncPointer AllowMode = iota
	// AllowReplayPointer re-injects the frozen event to the rest of the session
	AllowReplayPointer
)

func (m AllowMode) String() string {
	switch m {
	case AllowSyncPointer:
		return "sync-pointer"
	case AllowReplayPointer:
		return "replay-pointer"
	}
	return fmt.Sprintf("allow-mode(%d)", byte(m))
}

// EventKind classifies a delivered event
type EventKind int

const (
	EventOther EventKind = iota
	EventMotion
	EventButtonPress
)

func (k EventKind) String() string {
	switch k {
	case EventMotion:
		return "motion"
	case EventButtonPress:
		return "button-press"
	}
	return "other"
}

// Event is one item read from the session's event source.
// Err is set when the server reported an error instead of an event.
type Event struct {
	Kind EventKind
	Time uint32
	Err  error
}

// Device is the pointer side of a windowing session
type Device interface {
	// CreateInvisibleCursor allocates an empty cursor usable for a grab
	CreateInvisibleCursor(win Window) (Cursor, error)

	// FreeCursor destroys a cursor from CreateInvisibleCursor
	FreeCursor(c Cursor) error

	// GrabPointer issues one synchronous grab request and reports the server's status
	GrabPointer(win Window, c Cursor, mask EventMask) (GrabStatus, error)

	// UngrabPointer releases a grab held by this client
	UngrabPointer() error

	// AllowEvents resumes a frozen synchronous grab
	AllowEvents(mode AllowMode) error

	// Sync flushes outgoing requests and waits until the server processed them
	Sync() error

	// Events is the event source. It is closed when the session ends.
	Events() <-chan Event
}
