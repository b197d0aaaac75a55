package rtsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 5 * time.Second
	writeTimeout   = 5 * time.Second
	eventsSize     = 256
)

type eventKind int

const (
	// control connection is established
	eventConnected eventKind = iota
	// complete response from the control connection
	eventResponse
	// malformed response, the connection is still usable
	eventProtocolError
	// datagram from a media socket
	eventMedia
	// control connection is closed or failed
	eventClosed
)

type event struct {
	kind     eventKind
	response *Response
	mediaID  int
	packet   []byte
	err      error
}

// transport is the set of sockets the controller drives.
type transport interface {
	// Send writes the request to the control connection.
	Send(request *Request) error
	// ReserveMedia binds the RTP socket for the media and returns the bound
	// port. Port 0 selects a free port.
	ReserveMedia(mediaID, port int) (int, error)
	// OpenMedia makes sure the RTP socket is bound on localPort, opens the
	// NAT path to remote and starts receiving.
	OpenMedia(mediaID, localPort int, remote *net.UDPAddr) error
}

// Transport owns the control connection and the media sockets.
// Every socket has a reader goroutine which passes what it receives to
// the single consumer of Events.
type Transport struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	lock  sync.Mutex
	media map[int]*mediaConn

	events    chan event
	done      chan struct{}
	wg        sync.WaitGroup
	onceClose sync.Once

	log logrus.FieldLogger
}

func dialTransport(
	ctx context.Context,
	addr string,
	timeout time.Duration,
	log logrus.FieldLogger,
) (*Transport, error) {
	dialer := &net.Dialer{
		Timeout: timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %s", ErrSocket, addr, err)
	}

	return newTransport(conn, log), nil
}

func newTransport(conn net.Conn, log logrus.FieldLogger) *Transport {
	return &Transport{
		conn:   conn,
		br:     bufio.NewReader(conn),
		bw:     bufio.NewWriter(conn),
		media:  make(map[int]*mediaConn),
		events: make(chan event, eventsSize),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Events returns the channel with socket events.
func (t *Transport) Events() <-chan event {
	return t.events
}

// Start starts reading the control connection.
// The first event is always eventConnected.
func (t *Transport) Start() {
	t.wg.Add(1)
	go t.loopControl()
}

func (t *Transport) emit(ev event) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.done:
		return false
	}
}

func (t *Transport) loopControl() {
	defer t.wg.Done()

	if !t.emit(event{kind: eventConnected}) {
		return
	}

	for {
		response, err := ReadResponse(t.br)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				if !t.emit(event{kind: eventProtocolError, err: err}) {
					return
				}
				continue
			}

			t.emit(event{kind: eventClosed, err: fmt.Errorf("read response: %w", err)})
			return
		}

		if !t.emit(event{kind: eventResponse, response: response}) {
			return
		}
	}
}

func (t *Transport) Send(request *Request) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: %s", ErrSocket, err)
	}

	if err := request.Write(t.bw); err != nil {
		return fmt.Errorf("%w: send %s: %s", ErrSocket, request.Method, err)
	}

	return nil
}

// Close closes all sockets and waits for the reader goroutines.
func (t *Transport) Close() {
	t.onceClose.Do(func() {
		close(t.done)
		t.conn.Close()

		t.lock.Lock()
		for _, c := range t.media {
			c.close()
		}
		t.lock.Unlock()

		t.wg.Wait()
	})
}
