package rtsp

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cesbo/go-rtsp-player/rtph264"
)

const DefaultUserAgent = "Lavf58.12.100"

// Player receives H.264 video from the RTSP server over UDP and passes
// NAL units to the Sink.
//
// Real Time Streaming Protocol (RTSP)
// https://datatracker.ietf.org/doc/html/rfc2326
type Player struct {
	UserAgent      string
	ConnectTimeout time.Duration
	// KeepAlive is the interval of OPTIONS requests while playing.
	// Zero disables keep-alive.
	KeepAlive time.Duration
	// ClientPort is the local RTP port of the first video track.
	// Zero selects a free port.
	ClientPort int
	// WriteParameterSets writes SPS and PPS from the session description
	// to the Sink before the first packet.
	WriteParameterSets bool
	Sink               rtph264.Sink
	Logger             logrus.FieldLogger

	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
}

func (p *Player) logger() logrus.FieldLogger {
	if p.Logger != nil {
		return p.Logger
	}
	return logrus.StandardLogger()
}

// Play validates the URL, connects to the server and starts the session
// in background. Returns after the control connection is established.
func (p *Player) Play(rawURL string) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.cancel != nil {
		select {
		case <-p.done:
			p.cancel()
			p.cancel = nil
		default:
			return ErrAlreadyPlaying
		}
	}

	target, err := ParseTarget(rawURL)
	if err != nil {
		return err
	}

	log := p.logger().WithFields(logrus.Fields{
		"player": uuid.NewString(),
		"url":    rawURL,
	})

	timeout := p.ConnectTimeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	userAgent := p.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	ctx, cancel := context.WithCancel(context.Background())

	t, err := dialTransport(ctx, target.Addr(), timeout, log)
	if err != nil {
		cancel()
		log.WithError(err).Error("connect failed")
		return err
	}

	c := &controller{
		transport:          t,
		target:             target,
		userAgent:          userAgent,
		clientPort:         p.ClientPort,
		writeParameterSets: p.WriteParameterSets,
		sink:               p.Sink,
		log:                log,
	}

	p.cancel = cancel
	p.done = make(chan struct{})
	p.state.Store(int32(StateConnecting))

	go p.run(ctx, t, c, p.done)

	return nil
}

func (p *Player) run(ctx context.Context, t *Transport, c *controller, done chan struct{}) {
	defer close(done)
	defer t.Close()

	t.Start()

	var tickerC <-chan time.Time
	if p.KeepAlive > 0 {
		ticker := time.NewTicker(p.KeepAlive)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.dispatch(EventStop)
			c.flush()
			p.state.Store(int32(c.session.State()))
			c.log.Info("stopped")
			return

		case <-tickerC:
			c.dispatch(EventKeepAlive)

		case ev := <-t.Events():
			if !c.handle(ev) {
				p.state.Store(int32(StateClosed))
				return
			}
		}

		c.flush()
		p.state.Store(int32(c.session.State()))
	}
}

// Stop ends the session and waits for the worker to exit.
// TEARDOWN is sent if the server assigned a session.
func (p *Player) Stop() {
	p.lock.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.lock.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

// Done returns a channel closed when the worker exits.
func (p *Player) Done() <-chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}

	return p.done
}

// State returns the current session state.
func (p *Player) State() State {
	return State(p.state.Load())
}
