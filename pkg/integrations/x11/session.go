package x11

import (
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/hhpc/hhpc/pkg/pointer"
)

const eventBuffer = 256

// Session implements pointer.Device over one X11 connection
type Session struct {
	conn   *xgb.Conn
	screen int
	root   xproto.Window

	events    chan pointer.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Open connects to display, or to $DISPLAY when display is empty
func Open(display string) (*Session, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open X11 display")
	}

	setup := xproto.Setup(conn)
	if setup == nil || len(setup.Roots) == 0 {
		conn.Close()
		return nil, errors.New("X11 server reported no screens")
	}

	s := &Session{
		conn:   conn,
		screen: conn.DefaultScreen,
		root:   setup.DefaultScreen(conn).Root,
		events: make(chan pointer.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	go s.pump(conn.WaitForEvent)
	return s, nil
}

// pump forwards everything next reads until the connection or the session is closed
func (s *Session) pump(next func() (xgb.Event, xgb.Error)) {
	defer close(s.events)
	for {
		ev, xerr := next()
		if ev == nil && xerr == nil {
			return
		}

		var out pointer.Event
		if xerr != nil {
			out.Err = errors.New(xerr.Error())
		} else {
			out = translate(ev)
		}

		select {
		case s.events <- out:
		case <-s.done:
			return
		}
	}
}

func translate(ev xgb.Event) pointer.Event {
	switch e := ev.(type) {
	case xproto.MotionNotifyEvent:
		return pointer.Event{Kind: pointer.EventMotion, Time: uint32(e.Time)}
	case xproto.ButtonPressEvent:
		return pointer.Event{Kind: pointer.EventButtonPress, Time: uint32(e.Time)}
	}
	return pointer.Event{Kind: pointer.EventOther}
}

// Root is the root window of the default screen
func (s *Session) Root() pointer.Window {
	return pointer.Window(s.root)
}

// Screen is the default screen number
func (s *Session) Screen() int {
	return s.screen
}

// CreateInvisibleCursor builds a cursor from a cleared 1x1 bitmap used as both
// source and mask, so nothing is drawn.
func (s *Session) CreateInvisibleCursor(win pointer.Window) (pointer.Cursor, error) {
	drawable := xproto.Drawable(win)

	pixmap, err := xproto.NewPixmapId(s.conn)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate pixmap id")
	}
	if err := xproto.CreatePixmapChecked(s.conn, 1, pixmap, drawable, 1, 1).Check(); err != nil {
		return 0, errors.Wrap(err, "failed to create bitmap")
	}
	defer xproto.FreePixmap(s.conn, pixmap)

	gc, err := xproto.NewGcontextId(s.conn)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate graphics context id")
	}
	if err := xproto.CreateGCChecked(s.conn, gc, xproto.Drawable(pixmap), xproto.GcForeground, []uint32{0}).Check(); err != nil {
		return 0, errors.Wrap(err, "failed to create graphics context")
	}
	defer xproto.FreeGC(s.conn, gc)

	rect := []xproto.Rectangle{{X: 0, Y: 0, Width: 1, Height: 1}}
	if err := xproto.PolyFillRectangleChecked(s.conn, xproto.Drawable(pixmap), gc, rect).Check(); err != nil {
		return 0, errors.Wrap(err, "failed to clear bitmap")
	}

	cursor, err := xproto.NewCursorId(s.conn)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate cursor id")
	}
	if err := xproto.CreateCursorChecked(s.conn, cursor, pixmap, pixmap, 0, 0, 0, 0, 0, 0, 0, 0).Check(); err != nil {
		return 0, errors.Wrap(err, "failed to create cursor")
	}
	return pointer.Cursor(cursor), nil
}

func (s *Session) FreeCursor(c pointer.Cursor) error {
	return errors.Wrap(xproto.FreeCursorChecked(s.conn, xproto.Cursor(c)).Check(), "FreeCursor")
}

// GrabPointer grabs with the pointer frozen (synchronous) and the keyboard
// untouched, reporting events relative to win.
func (s *Session) GrabPointer(win pointer.Window, c pointer.Cursor, mask pointer.EventMask) (pointer.GrabStatus, error) {
	reply, err := xproto.GrabPointer(s.conn, true, xproto.Window(win), uint16(mask),
		xproto.GrabModeSync, xproto.GrabModeAsync, xproto.WindowNone,
		xproto.Cursor(c), xproto.TimeCurrentTime).Reply()
	if err != nil {
		return 0, errors.Wrap(err, "GrabPointer")
	}
	return grabStatus(reply.Status), nil
}

func grabStatus(status byte) pointer.GrabStatus {
	switch status {
	case xproto.GrabStatusSuccess:
		return pointer.GrabSuccess
	case xproto.GrabStatusAlreadyGrabbed:
		return pointer.AlreadyGrabbed
	case xproto.GrabStatusInvalidTime:
		return pointer.InvalidTime
	case xproto.GrabStatusNotViewable:
		return pointer.NotViewable
	case xproto.GrabStatusFrozen:
		return pointer.Frozen
	}
	return pointer.GrabStatus(status)
}

func (s *Session) UngrabPointer() error {
	return errors.Wrap(xproto.UngrabPointerChecked(s.conn, xproto.TimeCurrentTime).Check(), "UngrabPointer")
}

func (s *Session) AllowEvents(mode pointer.AllowMode) error {
	var m byte
	switch mode {
	case pointer.AllowSyncPointer:
		m = xproto.AllowSyncPointer
	case pointer.AllowReplayPointer:
		m = xproto.AllowReplayPointer
	default:
		return errors.Errorf("unsupported allow mode %s", mode)
	}
	return errors.Wrap(xproto.AllowEventsChecked(s.conn, m, xproto.TimeCurrentTime).Check(), "AllowEvents")
}

// Sync makes a round trip so every earlier request has reached the server
func (s *Session) Sync() error {
	_, err := xproto.GetInputFocus(s.conn).Reply()
	return errors.Wrap(err, "sync")
}

func (s *Session) Events() <-chan pointer.Event {
	return s.events
}

// Close drops the connection. The event channel closes once the reader notices.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
	return nil
}
