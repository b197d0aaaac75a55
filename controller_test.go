package rtsp

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesbo/go-rtsp-player/sdp"
)

type openCall struct {
	mediaID   int
	localPort int
	remote    *net.UDPAddr
}

type fakeTransport struct {
	requests []*Request
	reserved map[int]int
	opened   []openCall
	openErr  error
}

func (f *fakeTransport) Send(request *Request) error {
	f.requests = append(f.requests, request)
	return nil
}

func (f *fakeTransport) ReserveMedia(mediaID, port int) (int, error) {
	if port == 0 {
		port = 40000 + 2*mediaID
	}

	if f.reserved == nil {
		f.reserved = map[int]int{}
	}
	f.reserved[mediaID] = port

	return port, nil
}

func (f *fakeTransport) OpenMedia(mediaID, localPort int, remote *net.UDPAddr) error {
	if f.openErr != nil {
		return f.openErr
	}

	f.opened = append(f.opened, openCall{mediaID, localPort, remote})
	return nil
}

func (f *fakeTransport) last() *Request {
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

type unit struct {
	data   []byte
	marker bool
}

type recordSink struct {
	units []unit
}

func (s *recordSink) WriteNALU(data []byte, marker bool) error {
	s.units = append(s.units, unit{append([]byte(nil), data...), marker})
	return nil
}

// responseText formats RTSP response. Content-Length is added for the body.
func responseText(status string, cseq CSeq, headers []string, body string) string {
	var sb strings.Builder

	sb.WriteString("RTSP/1.0 " + status + "\r\n")
	sb.WriteString("CSeq: " + strconv.Itoa(int(cseq)) + "\r\n")
	for _, h := range headers {
		sb.WriteString(h + "\r\n")
	}
	if body != "" {
		sb.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(body)

	return sb.String()
}

func testResponse(t *testing.T, text string) event {
	response, err := ReadResponse(bufio.NewReader(strings.NewReader(text)))
	require.NoError(t, err)

	return event{kind: eventResponse, response: response}
}

const cameraSDP = "v=0\r\n" +
	"o=- 1 1 IN IP4 192.168.1.10\r\n" +
	"s=Camera\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=fmtp:96 packetization-mode=1;sprop-parameter-sets=Z0IAKeKQFAe2AtwEBAaQeJEV,aM48gA==\r\n" +
	"a=control:trackID=1\r\n" +
	"m=audio 0 RTP/AVP 8\r\n" +
	"a=control:trackID=2\r\n"

func newTestController(t *testing.T, clientPort int) (*controller, *fakeTransport, *recordSink, *logtest.Hook) {
	target, err := ParseTarget("rtsp://192.168.1.10:554/stream")
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ft := &fakeTransport{}
	sink := &recordSink{}

	c := &controller{
		transport:  ft,
		target:     target,
		userAgent:  DefaultUserAgent,
		clientPort: clientPort,
		sink:       sink,
		log:        logger,
	}

	return c, ft, sink, hook
}

func loggedError(hook *logtest.Hook, level logrus.Level, target error) bool {
	for _, entry := range hook.AllEntries() {
		err, _ := entry.Data[logrus.ErrorKey].(error)
		if entry.Level == level && errors.Is(err, target) {
			return true
		}
	}
	return false
}

func step(c *controller, ev event) {
	c.handle(ev)
	c.flush()
}

func TestController_play(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	c, ft, sink, _ := newTestController(t, 12000)

	step(c, event{kind: eventConnected})
	require.Len(ft.requests, 1)
	assert.Equal(MethodDescribe, ft.last().Method)
	assert.Equal("rtsp://192.168.1.10:554/stream", ft.last().URL)
	assert.Equal(CSeqDescribe, ft.last().CSeq)
	assert.Equal(DefaultUserAgent, ft.last().UserAgent)
	assert.Equal(StateDescribing, c.session.State())

	step(c, testResponse(t, responseText("200 OK", CSeqDescribe, []string{
		"Content-Type: application/sdp",
	}, cameraSDP)))
	require.Len(ft.requests, 2)
	assert.Equal(MethodSetup, ft.last().Method)
	assert.Equal("rtsp://192.168.1.10:554/stream/trackID=1", ft.last().URL)
	assert.Equal(CSeqVideoSetup, ft.last().CSeq)
	assert.Equal("RTP/AVP;unicast;client_port=12000-12001", ft.last().Header.Get("Transport"))
	assert.Equal(map[int]int{0: 12000}, ft.reserved)
	assert.Equal(StateSettingUp, c.session.State())
	require.NotNil(c.description)
	assert.Equal("Camera", c.description.SessionName)

	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Session: 12345678;timeout=60",
		"Transport: RTP/AVP;unicast;client_port=12000-12001;server_port=6970-6971",
	}, "")))
	require.Len(ft.opened, 1)
	assert.Equal(0, ft.opened[0].mediaID)
	assert.Equal(12000, ft.opened[0].localPort)
	assert.Equal("192.168.1.10:6970", ft.opened[0].remote.String())

	require.Len(ft.requests, 3)
	assert.Equal(MethodPlay, ft.last().Method)
	assert.Equal(CSeqPlay, ft.last().CSeq)
	assert.Equal("12345678", ft.last().Session)
	assert.Equal("npt=0.000-", ft.last().Header.Get("Range"))
	assert.Equal(StateStarting, c.session.State())

	step(c, testResponse(t, responseText("200 OK", CSeqPlay, nil, "")))
	assert.Equal(StatePlaying, c.session.State())
	assert.Len(ft.requests, 3)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: 1,
		},
		Payload: []byte{0x65, 0x88, 0x84},
	}
	buf, err := pkt.Marshal()
	require.NoError(err)

	step(c, event{kind: eventMedia, mediaID: 0, packet: buf})
	require.Len(sink.units, 1)
	assert.Equal([]byte{0, 0, 0, 1, 0x65, 0x88, 0x84}, sink.units[0].data)
	assert.True(sink.units[0].marker)

	c.dispatch(EventKeepAlive)
	c.flush()
	require.Len(ft.requests, 4)
	assert.Equal(MethodOptions, ft.last().Method)
	assert.Equal(CSeqOptions, ft.last().CSeq)

	// OPTIONS is outstanding
	c.dispatch(EventKeepAlive)
	c.flush()
	assert.Len(ft.requests, 4)

	c.dispatch(EventStop)
	c.flush()
	require.Len(ft.requests, 5)
	assert.Equal(MethodTeardown, ft.last().Method)
	assert.Equal("12345678", ft.last().Session)
	assert.Equal(StateClosed, c.session.State())
}

func TestController_sessionFromDescribe(t *testing.T) {
	assert := assert.New(t)

	c, _, _, _ := newTestController(t, 0)

	step(c, event{kind: eventConnected})
	step(c, testResponse(t, responseText("200 OK", CSeqDescribe, []string{
		"Session: DESCRIBE1",
	}, cameraSDP)))
	assert.Equal("DESCRIBE1", c.session.ID)

	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Session: SETUP1",
		"Transport: RTP/AVP;unicast;server_port=6970-6971",
	}, "")))
	assert.Equal("DESCRIBE1", c.session.ID)
}

func TestController_freePort(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	c, ft, _, _ := newTestController(t, 0)

	step(c, event{kind: eventConnected})
	step(c, testResponse(t, responseText("200 OK", CSeqDescribe, nil, cameraSDP)))
	assert.Equal("RTP/AVP;unicast;client_port=40000-40001", ft.last().Header.Get("Transport"))

	// server did not echo client port
	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Transport: RTP/AVP;unicast;server_port=6970-6971",
	}, "")))
	require.Len(ft.opened, 1)
	assert.Equal(40000, ft.opened[0].localPort)
	assert.Equal(MethodPlay, ft.last().Method)
}

func TestController_multipleTracks(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	description := "v=0\r\n" +
		"o=- 1 1 IN IP4 192.168.1.10\r\n" +
		"s=Camera\r\n" +
		"t=0 0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=control:trackID=1\r\n" +
		"m=video 0 RTP/AVP 97\r\n" +
		"a=control:trackID=3\r\n"

	c, ft, _, _ := newTestController(t, 12000)

	step(c, event{kind: eventConnected})
	step(c, testResponse(t, responseText("200 OK", CSeqDescribe, nil, description)))
	assert.Equal("rtsp://192.168.1.10:554/stream/trackID=1", ft.last().URL)

	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Transport: RTP/AVP;unicast;client_port=12000-12001;server_port=6970-6971",
	}, "")))
	assert.Equal(MethodSetup, ft.last().Method)
	assert.Equal("rtsp://192.168.1.10:554/stream/trackID=3", ft.last().URL)
	assert.Equal("RTP/AVP;unicast;client_port=12002-12003", ft.last().Header.Get("Transport"))
	assert.Equal(StateSettingUp, c.session.State())

	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Transport: RTP/AVP;unicast;client_port=12002-12003;server_port=6972-6973",
	}, "")))
	require.Len(ft.opened, 2)
	assert.Equal(1, ft.opened[1].mediaID)
	assert.Equal(6972, ft.opened[1].remote.Port)
	assert.Equal(MethodPlay, ft.last().Method)
}

func TestController_setupWithoutServerPort(t *testing.T) {
	assert := assert.New(t)

	c, ft, _, hook := newTestController(t, 12000)

	step(c, event{kind: eventConnected})
	step(c, testResponse(t, responseText("200 OK", CSeqDescribe, nil, cameraSDP)))
	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Transport: RTP/AVP;unicast;client_port=12000-12001",
	}, "")))

	assert.Empty(ft.opened)
	assert.Len(ft.requests, 2)
	assert.Equal(StateSettingUp, c.session.State())

	assert.True(loggedError(hook, logrus.ErrorLevel, ErrTransportSetup))
}

func TestController_openMediaFailed(t *testing.T) {
	assert := assert.New(t)

	c, ft, _, _ := newTestController(t, 12000)
	ft.openErr = errors.New("bind failed")

	step(c, event{kind: eventConnected})
	step(c, testResponse(t, responseText("200 OK", CSeqDescribe, nil, cameraSDP)))
	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Transport: RTP/AVP;unicast;server_port=6970-6971",
	}, "")))

	assert.Len(ft.requests, 2)
	assert.Equal(StateSettingUp, c.session.State())
}

func TestController_describeFailed(t *testing.T) {
	type fields struct {
		name     string
		response string
	}

	tests := []fields{
		{
			name:     "status",
			response: responseText("404 Not Found", CSeqDescribe, nil, ""),
		},
		{
			name:     "invalid sdp",
			response: responseText("200 OK", CSeqDescribe, nil, "v=0\r\ns=Camera\r\n"),
		},
		{
			name: "no video",
			response: responseText("200 OK", CSeqDescribe, nil, "v=0\r\n"+
				"o=- 1 1 IN IP4 192.168.1.10\r\n"+
				"s=Camera\r\n"+
				"t=0 0\r\n"+
				"m=audio 0 RTP/AVP 8\r\n"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			c, ft, _, _ := newTestController(t, 0)

			step(c, event{kind: eventConnected})
			step(c, testResponse(t, tt.response))

			assert.Len(ft.requests, 1)
			assert.Equal(StateDescribing, c.session.State())

			// session without id is closed silently
			c.dispatch(EventStop)
			c.flush()
			assert.Len(ft.requests, 1)
		})
	}
}

func TestController_invalidCSeq(t *testing.T) {
	assert := assert.New(t)

	c, ft, _, hook := newTestController(t, 0)
	step(c, event{kind: eventConnected})

	for _, text := range []string{
		"RTSP/1.0 200 OK\r\n\r\n",
		"RTSP/1.0 200 OK\r\nCSeq: 42\r\n\r\n",
	} {
		hook.Reset()
		step(c, testResponse(t, text))

		assert.True(loggedError(hook, logrus.WarnLevel, ErrProtocol))
	}

	assert.Len(ft.requests, 1)
	assert.Equal(StateDescribing, c.session.State())
}

func TestController_closed(t *testing.T) {
	c, _, _, _ := newTestController(t, 0)
	assert.True(t, c.handle(event{kind: eventConnected}))
	assert.False(t, c.handle(event{kind: eventClosed, err: errors.New("EOF")}))
}

func TestController_writeParameterSets(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)

	c, _, sink, _ := newTestController(t, 0)
	c.writeParameterSets = true

	step(c, event{kind: eventConnected})
	step(c, testResponse(t, responseText("200 OK", CSeqDescribe, nil, cameraSDP)))
	step(c, testResponse(t, responseText("200 OK", CSeqVideoSetup, []string{
		"Transport: RTP/AVP;unicast;server_port=6970-6971",
	}, "")))

	require.Len(sink.units, 2)
	assert.Equal(byte(0x67), sink.units[0].data[4])
	assert.Equal(byte(0x68), sink.units[1].data[4])
	assert.False(sink.units[0].marker)
}

func TestController_trackURL(t *testing.T) {
	const base = "rtsp://192.168.1.10/stream"

	type fields struct {
		name       string
		attributes []string
		expected   string
	}

	tests := []fields{
		{
			name:       "track id",
			attributes: []string{"rtpmap:96 H264/90000", "control:trackID=1"},
			expected:   base + "/trackID=1",
		},
		{
			name:       "last track id",
			attributes: []string{"control:trackID=1", "control:trackID=3"},
			expected:   base + "/trackID=3",
		},
		{
			name:     "no control",
			expected: base + "/trackID=0",
		},
		{
			name:       "relative control",
			attributes: []string{"control:track1"},
			expected:   base + "/track1",
		},
		{
			name:       "absolute control",
			attributes: []string{"control:rtsp://192.168.1.10/stream/video"},
			expected:   "rtsp://192.168.1.10/stream/video",
		},
		{
			name:       "aggregate control",
			attributes: []string{"control:*"},
			expected:   base,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &sdp.Media{
				Type:       "video",
				Attributes: tt.attributes,
			}
			assert.Equal(t, tt.expected, trackURL(base+"/", m))
		})
	}
}
