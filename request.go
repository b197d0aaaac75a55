package rtsp

import (
	"bufio"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cesbo/go-rtsp-player/sdp"
)

// Method Definitions
const (
	MethodDescribe = "DESCRIBE"
	MethodOptions  = "OPTIONS"
	MethodPause    = "PAUSE"
	MethodPlay     = "PLAY"
	MethodSetup    = "SETUP"
	MethodTeardown = "TEARDOWN"
)

const rtspVersion = "RTSP/1.0"

type Request struct {
	Method    string
	URL       string
	CSeq      CSeq
	Session   string
	UserAgent string
	Header    http.Header
}

// Write sends RTSP/1.0 request.
func (r *Request) Write(w *bufio.Writer) error {
	var sb strings.Builder

	sb.WriteString(r.Method)
	sb.WriteByte(' ')
	sb.WriteString(r.URL)
	sb.WriteByte(' ')
	sb.WriteString(rtspVersion)
	sb.WriteString("\r\n")

	sb.WriteString("CSeq: ")
	sb.WriteString(strconv.Itoa(int(r.CSeq)))
	sb.WriteString("\r\n")

	if r.UserAgent != "" {
		sb.WriteString("User-Agent: ")
		sb.WriteString(r.UserAgent)
		sb.WriteString("\r\n")
	}

	if r.Session != "" {
		sb.WriteString("Session: ")
		sb.WriteString(r.Session)
		sb.WriteString("\r\n")
	}

	if r.Header != nil {
		if err := r.Header.Write(&sb); err != nil {
			return err
		}
	}

	sb.WriteString("\r\n")

	if _, err := w.WriteString(sb.String()); err != nil {
		return err
	}

	return w.Flush()
}

func newDescribeRequest(url string) *Request {
	return &Request{
		Method: MethodDescribe,
		URL:    url,
		CSeq:   CSeqDescribe,
		Header: http.Header{
			"Accept": []string{sdp.MimeType},
		},
	}
}

func newSetupRequest(url, proto string, rtpPort int) *Request {
	transport := fmt.Sprintf("%s;unicast;client_port=%d-%d", proto, rtpPort, rtpPort+1)

	return &Request{
		Method: MethodSetup,
		URL:    url,
		CSeq:   CSeqVideoSetup,
		Header: http.Header{
			"Transport": []string{transport},
		},
	}
}

func newPlayRequest(url string) *Request {
	return &Request{
		Method: MethodPlay,
		URL:    url,
		CSeq:   CSeqPlay,
		Header: http.Header{
			"Range": []string{"npt=0.000-"},
		},
	}
}

func newOptionsRequest(url string) *Request {
	return &Request{
		Method: MethodOptions,
		URL:    url,
		CSeq:   CSeqOptions,
	}
}

func newTeardownRequest(url string) *Request {
	return &Request{
		Method: MethodTeardown,
		URL:    url,
		CSeq:   CSeqTeardown,
	}
}
