package rtsp

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cesbo/go-rtsp-player/rtph264"
	"github.com/cesbo/go-rtsp-player/sdp"
)

var trackIDRE = regexp.MustCompile(`^control:trackID=(\d+)`)

type track struct {
	media        *sdp.Media
	url          string
	rtpPort      int
	depacketizer *rtph264.Depacketizer
}

// controller executes the session actions and turns server responses and
// media packets into session events. It is driven by a single goroutine.
type controller struct {
	transport transport
	target    *SessionTarget
	session   Session

	userAgent          string
	clientPort         int
	writeParameterSets bool
	sink               rtph264.Sink

	description *sdp.Descriptor
	tracks      []*track
	// index of the track being set up
	current int

	log logrus.FieldLogger
}

// trackURL returns the SETUP URL for the media.
// The last "control:trackID=N" attribute selects the track. Without it
// any other control attribute is resolved against the base URL.
func trackURL(base string, m *sdp.Media) string {
	base = strings.TrimSuffix(base, "/")

	trackID := ""
	for _, a := range m.Attributes {
		if v := trackIDRE.FindStringSubmatch(a); v != nil {
			trackID = v[1]
		}
	}

	if trackID != "" {
		return base + "/trackID=" + trackID
	}

	control, ok := m.Attr("control")
	switch {
	case !ok:
		return base + "/trackID=0"
	case control == "*":
		return base
	case strings.Contains(control, "://"):
		return control
	default:
		return base + "/" + strings.TrimPrefix(control, "/")
	}
}

func (c *controller) baseURL() string {
	return c.target.URL.String()
}

func (c *controller) dispatch(event Event) {
	prev := c.session.State()
	action := c.session.Dispatch(event)

	c.log.WithFields(logrus.Fields{
		"event":  event,
		"from":   prev,
		"to":     c.session.State(),
		"action": action,
	}).Debug("session event")
}

// flush executes all pending actions.
func (c *controller) flush() {
	for action := c.session.Next(); action != ActionIdle; action = c.session.Next() {
		c.execute(action)
	}
}

func (c *controller) execute(action Action) {
	switch action {
	case ActionSendDescribe:
		c.send(newDescribeRequest(c.baseURL()))

	case ActionSendVideoSetup:
		c.sendVideoSetup()

	case ActionSendPlay:
		c.send(newPlayRequest(c.baseURL()))

	case ActionSendPause:
		c.log.Warn("pause is not implemented")

	case ActionSendKeepAlive:
		if c.session.outstanding != 0 {
			c.log.WithField("cseq", c.session.outstanding).Debug("skip keep-alive, waiting for response")
			return
		}
		c.send(newOptionsRequest(c.baseURL()))

	case ActionTurnOff:
		if c.session.ID != "" {
			c.send(newTeardownRequest(c.baseURL()))
		}
	}
}

func (c *controller) send(request *Request) {
	request.UserAgent = c.userAgent
	request.Session = c.session.ID

	log := c.log.WithFields(logrus.Fields{
		"method": request.Method,
		"cseq":   request.CSeq,
	})

	if err := c.transport.Send(request); err != nil {
		log.WithError(err).Error("send request")
		return
	}

	c.session.outstanding = request.CSeq
	log.WithField("request_url", request.URL).Info("request sent")
}

func (c *controller) sendVideoSetup() {
	if c.current >= len(c.tracks) {
		return
	}

	tr := c.tracks[c.current]

	port := c.clientPort
	if port != 0 {
		port += 2 * c.current
	}

	rtpPort, err := c.transport.ReserveMedia(c.current, port)
	if err != nil {
		c.log.WithError(err).Error("reserve rtp port")
		return
	}

	tr.rtpPort = rtpPort
	c.send(newSetupRequest(tr.url, tr.media.Proto, rtpPort))
}

// handle processes the event from the transport.
// Returns false if the control connection is lost.
func (c *controller) handle(ev event) bool {
	switch ev.kind {
	case eventConnected:
		c.log.Info("connected")
		c.dispatch(EventConnected)

	case eventResponse:
		c.handleResponse(ev.response)

	case eventProtocolError:
		c.log.WithError(ev.err).Warn("invalid response")

	case eventMedia:
		c.handleRTP(ev.mediaID, ev.packet)

	case eventClosed:
		c.log.WithError(ev.err).Error("connection closed")
		return false
	}

	return true
}

func (c *controller) handleResponse(response *Response) {
	cseq, ok := response.CSeq()
	if !ok || !cseq.valid() {
		c.log.WithError(fmt.Errorf("%w: unexpected cseq %q", ErrProtocol, response.Header.Get("CSeq"))).
			Warn("invalid response")
		return
	}

	if cseq == c.session.outstanding {
		c.session.outstanding = 0
	}

	log := c.log.WithFields(logrus.Fields{
		"cseq":   cseq,
		"status": response.StatusCode,
	})
	log.Debug("response received")

	switch cseq {
	case CSeqDescribe:
		c.handleDescribe(response, log)

	case CSeqVideoSetup:
		c.handleVideoSetup(response, log)

	case CSeqPlay:
		if !response.successful() {
			log.WithError(fmt.Errorf("%w: %s", ErrStatus, response.Status)).Error("play failed")
			c.dispatch(EventPlayFailed)
			return
		}
		log.Info("playing")
		c.dispatch(EventPlayStarted)

	case CSeqOptions, CSeqTeardown:
		if !response.successful() {
			log.WithError(fmt.Errorf("%w: %s", ErrStatus, response.Status)).Warn("request failed")
		}

	default:
		log.Warn("response ignored")
	}
}

func (c *controller) handleDescribe(response *Response, log logrus.FieldLogger) {
	if !response.successful() {
		log.WithError(fmt.Errorf("%w: %s", ErrStatus, response.Status)).Error("describe failed")
		c.dispatch(EventDescribeFailed)
		return
	}

	session, text := splitDescribe(string(response.Raw))
	if session != "" {
		c.session.ID = session
	}

	description, err := sdp.Parse(text)
	if err != nil {
		log.WithError(err).Error("invalid session description")
		c.dispatch(EventDescribeFailed)
		return
	}

	c.description = description
	c.tracks = c.tracks[:0]
	c.current = 0

	for _, m := range description.MediasOfType("video") {
		c.tracks = append(c.tracks, &track{
			media: m,
			url:   trackURL(c.baseURL(), m),
		})
	}

	if len(c.tracks) == 0 {
		log.Error("no video media")
		c.dispatch(EventDescribeFailed)
		return
	}

	log.WithField("tracks", len(c.tracks)).Info("described")
	c.dispatch(EventDescribed)
}

func (c *controller) handleVideoSetup(response *Response, log logrus.FieldLogger) {
	if c.current >= len(c.tracks) {
		log.Warn("unexpected setup response")
		return
	}

	tr := c.tracks[c.current]

	if !response.successful() {
		log.WithError(fmt.Errorf("%w: %s", ErrStatus, response.Status)).Error("setup failed")
		c.dispatch(EventSetupFailed)
		return
	}

	if c.session.ID == "" {
		c.session.ID = response.Session()
	}

	client, clientOK, server, serverOK := transportPorts(string(response.Raw))
	if !serverOK {
		log.WithError(fmt.Errorf("%w: no server port", ErrTransportSetup)).Error("setup failed")
		c.dispatch(EventSetupFailed)
		return
	}

	localPort := tr.rtpPort
	if clientOK {
		localPort = client.RTP
	}

	remote := &net.UDPAddr{
		IP:   net.ParseIP(c.target.Host),
		Port: server.RTP,
	}

	if err := c.transport.OpenMedia(c.current, localPort, remote); err != nil {
		log.WithError(err).Error("open media")
		c.dispatch(EventSetupFailed)
		return
	}

	tr.rtpPort = localPort
	tr.depacketizer = &rtph264.Depacketizer{
		Sink: c.sink,
	}

	if c.writeParameterSets {
		c.writeTrackParameters(tr, log)
	}

	log.WithFields(logrus.Fields{
		"client_port": localPort,
		"server_port": server.RTP,
		"session":     c.session.ID,
	}).Info("track ready")

	c.current++
	if c.current < len(c.tracks) {
		c.dispatch(EventTrackReady)
	} else {
		c.dispatch(EventTracksReady)
	}
}

func (c *controller) writeTrackParameters(tr *track, log logrus.FieldLogger) {
	media, ok := parseMedia(tr.media).(*MediaH264)
	if !ok || media.SPS == nil || media.PPS == nil {
		return
	}

	if err := tr.depacketizer.WriteParameterSets(media.SPS, media.PPS); err != nil {
		log.WithError(err).Error("write parameter sets")
	}
}

func (c *controller) handleRTP(mediaID int, packet []byte) {
	if mediaID < 0 || mediaID >= len(c.tracks) {
		return
	}

	tr := c.tracks[mediaID]
	if tr.depacketizer == nil {
		return
	}

	if err := tr.depacketizer.Decode(packet); err != nil {
		log := c.log.WithError(err).WithField("media", mediaID)
		if errors.Is(err, rtph264.ErrNonStartingFragment) {
			log.Debug("skip rtp packet")
		} else {
			log.Warn("skip rtp packet")
		}
	}
}
