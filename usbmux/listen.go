package usbmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrListenerClosed is returned by WaitEvent once a DeviceListener was closed and all queued events were consumed
var ErrListenerClosed = errors.New("device listener closed")

// ListenerState is the registration progress of a DeviceListener
type ListenerState int

const (
	StateConnecting ListenerState = iota
	StateAwaitingListenResult
	StateListening
	StateClosed
)

func (s ListenerState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateAwaitingListenResult:
		return "AwaitingListenResult"
	case StateListening:
		return "Listening"
	case StateClosed:
		return "Closed"
	}
	return fmt.Sprintf("ListenerState(%d)", int(s))
}

// DeviceListener keeps a Transport in listening mode and queues every device event usbmuxd sends.
// A single reader goroutine owns all reads of the Transport, events are handed out in arrival order
// by NextEvent and WaitEvent which are safe to call from multiple goroutines.
type DeviceListener struct {
	transport Transport

	mu     sync.Mutex
	state  ListenerState
	queue  []DeviceEvent
	err    error
	closed bool

	// notify holds a token whenever the queue might be non empty
	notify chan struct{}
	done   chan struct{}
}

// Listen opens a new Transport and sends a Listen command. It fails with a *FailedToListenError
// if usbmuxd replies with a non zero code. Afterwards the Transport stays open indefinitely and
// receives a message whenever a device is attached, detached or paired.
func (c *Client) Listen(ctx context.Context) (*DeviceListener, error) {
	l := &DeviceListener{
		state:  StateConnecting,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	muxConn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	l.setState(StateAwaitingListenResult)

	clearDeadline := applyContextDeadline(ctx, muxConn.transport)
	result, err := muxConn.request(NewListenCommand(c.cfg))
	clearDeadline()
	if err != nil {
		muxConn.Close()
		return nil, err
	}
	if !result.IsSuccessFull() {
		muxConn.Close()
		return nil, &FailedToListenError{Code: result.Number}
	}

	l.transport = muxConn.ReleaseTransport()
	l.setState(StateListening)
	go l.readLoop(bufio.NewReader(l.transport))
	return l, nil
}

func (l *DeviceListener) setState(s ListenerState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	log.WithFields(log.Fields{"state": s}).Debug("device listener state changed")
}

// State returns the current ListenerState
func (l *DeviceListener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *DeviceListener) readLoop(r *bufio.Reader) {
	defer close(l.done)
	for {
		p, err := ReadPacket(r)
		if err != nil {
			if isFrameError(err) {
				log.WithFields(log.Fields{"error": err}).Warn("skipping invalid usbmux frame")
				continue
			}
			l.finish(err)
			return
		}
		if p.Protocol != ProtocolPlist {
			log.Debugf("ignoring non plist frame %s", p)
			continue
		}
		event, err := DecodeDeviceEvent(p.Payload)
		if err != nil {
			log.WithFields(log.Fields{"error": err, "payload": string(p.Payload)}).Warn("skipping undecodable device event")
			continue
		}
		log.WithFields(log.Fields{"event": event.Type, "deviceID": event.DeviceID}).Trace("device event")
		l.push(event)
	}
}

func (l *DeviceListener) push(event DeviceEvent) {
	l.mu.Lock()
	l.queue = append(l.queue, event)
	l.mu.Unlock()
	l.signal()
}

func (l *DeviceListener) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *DeviceListener) finish(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
	if l.closed {
		return
	}
	log.WithFields(log.Fields{"error": err}).Error("stopped listening because of error")
	l.err = err
}

// NextEvent returns the oldest queued event. It never blocks, false means nothing is queued right now.
func (l *DeviceListener) NextEvent() (DeviceEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return DeviceEvent{}, false
	}
	event := l.queue[0]
	l.queue[0] = DeviceEvent{}
	l.queue = l.queue[1:]
	if len(l.queue) > 0 {
		l.signal()
	}
	return event, true
}

// WaitEvent blocks until an event is available, ctx is done or the listener stopped.
// Events queued before the listener stopped are still returned.
func (l *DeviceListener) WaitEvent(ctx context.Context) (DeviceEvent, error) {
	for {
		if event, ok := l.NextEvent(); ok {
			return event, nil
		}
		select {
		case <-l.notify:
		case <-l.done:
			if event, ok := l.NextEvent(); ok {
				return event, nil
			}
			if err := l.Err(); err != nil {
				return DeviceEvent{}, err
			}
			return DeviceEvent{}, ErrListenerClosed
		case <-ctx.Done():
			return DeviceEvent{}, ctx.Err()
		}
	}
}

// Err returns the error that stopped the reader, nil while listening or after Close
func (l *DeviceListener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the Transport, usbmuxd drops the registration with it.
func (l *DeviceListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	err := l.transport.Close()
	<-l.done
	return err
}
