// Package pointertest provides a scripted pointer.Device for tests.
package pointertest

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hhpc/hhpc/pkg/pointer"
)

// Device is an in-memory pointer.Device. Grab requests answer from a script of
// statuses; once the script is exhausted the last status repeats.
type Device struct {
	mu sync.Mutex

	script    []pointer.GrabStatus
	grabTimes []time.Time
	grabbed   bool
	ungrabs   int
	allowed   []pointer.AllowMode
	syncs     int

	nextCursor pointer.Cursor
	live       map[pointer.Cursor]bool
	freed      int

	grabErr   error
	ungrabErr error
	allowErr  error
	syncErr   error
	cursorErr error
	freeErr   error

	events    chan pointer.Event
	closeOnce sync.Once
}

// New returns a device answering grab requests with statuses in order.
// With no statuses every grab succeeds.
func New(statuses ...pointer.GrabStatus) *Device {
	return &Device{
		script:     statuses,
		nextCursor: 1,
		live:       make(map[pointer.Cursor]bool),
		events:     make(chan pointer.Event, 64),
	}
}

func (d *Device) CreateInvisibleCursor(win pointer.Window) (pointer.Cursor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cursorErr != nil {
		return 0, d.cursorErr
	}
	c := d.nextCursor
	d.nextCursor++
	d.live[c] = true
	return c, nil
}

func (d *Device) FreeCursor(c pointer.Cursor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.freeErr != nil {
		return d.freeErr
	}
	if !d.live[c] {
		return errors.Errorf("cursor %d is not allocated", c)
	}
	delete(d.live, c)
	d.freed++
	return nil
}

func (d *Device) GrabPointer(win pointer.Window, c pointer.Cursor, mask pointer.EventMask) (pointer.GrabStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.grabTimes = append(d.grabTimes, time.Now())
	if d.grabErr != nil {
		return 0, d.grabErr
	}

	status := pointer.GrabSuccess
	if n := len(d.grabTimes); len(d.script) > 0 {
		if n <= len(d.script) {
			status = d.script[n-1]
		} else {
			status = d.script[len(d.script)-1]
		}
	}
	if status == pointer.GrabSuccess {
		d.grabbed = true
	}
	return status, nil
}

func (d *Device) UngrabPointer() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ungrabs++
	if d.ungrabErr != nil {
		return d.ungrabErr
	}
	d.grabbed = false
	return nil
}

func (d *Device) AllowEvents(mode pointer.AllowMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allowed = append(d.allowed, mode)
	return d.allowErr
}

func (d *Device) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.syncs++
	return d.syncErr
}

func (d *Device) Events() <-chan pointer.Event {
	return d.events
}

// Push queues an event on the event source
func (d *Device) Push(ev pointer.Event) {
	d.events <- ev
}

// PushAfter queues an event once delay has elapsed
func (d *Device) PushAfter(delay time.Duration, ev pointer.Event) {
	time.AfterFunc(delay, func() { d.Push(ev) })
}

// Close ends the event source like a dropped connection
func (d *Device) Close() {
	d.closeOnce.Do(func() { close(d.events) })
}

func (d *Device) SetGrabError(err error)   { d.set(&d.grabErr, err) }
func (d *Device) SetUngrabError(err error) { d.set(&d.ungrabErr, err) }
func (d *Device) SetAllowError(err error)  { d.set(&d.allowErr, err) }
func (d *Device) SetSyncError(err error)   { d.set(&d.syncErr, err) }
func (d *Device) SetCursorError(err error) { d.set(&d.cursorErr, err) }
func (d *Device) SetFreeError(err error)   { d.set(&d.freeErr, err) }

func (d *Device) set(field *error, err error) {
	d.mu.Lock()
	*field = err
	d.mu.Unlock()
}

// Grabbed reports whether a grab is currently held
func (d *Device) Grabbed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.grabbed
}

// GrabCalls is the number of grab requests issued
func (d *Device) GrabCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.grabTimes)
}

// GrabTimes returns when each grab request was issued
func (d *Device) GrabTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.grabTimes...)
}

// Ungrabs is the number of ungrab requests issued
func (d *Device) Ungrabs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ungrabs
}

// Allowed returns the AllowEvents modes in call order
func (d *Device) Allowed() []pointer.AllowMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]pointer.AllowMode(nil), d.allowed...)
}

// Syncs is the number of Sync calls
func (d *Device) Syncs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncs
}

// LiveCursors is the number of cursors created and not yet freed
func (d *Device) LiveCursors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// FreedCursors is the number of successful FreeCursor calls
func (d *Device) FreedCursors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freed
}

// Pending is the number of queued, unread events
func (d *Device) Pending() int {
	return len(d.events)
}
