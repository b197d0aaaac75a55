package rtsp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
)

const maxContentLength = 64 * 1024

type Response struct {
	Proto      string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	// Raw is the message as received: status line, headers and body
	Raw []byte
}

func parseResponseLine(line string) (proto, status string, code int, ok bool) {
	proto, status, ok = strings.Cut(line, " ")
	if !ok {
		return
	}

	status = strings.TrimSpace(status)
	statusCode, _, _ := strings.Cut(status, " ")

	var err error
	code, err = strconv.Atoi(statusCode)
	ok = (err == nil) && (code >= 100) && (code <= 999)

	return
}

func readHead(reader *bufio.Reader) ([]byte, error) {
	var raw []byte

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return nil, err
		}

		if len(bytes.TrimRight(line, "\r\n")) == 0 {
			if len(raw) == 0 {
				// skip empty lines between messages
				continue
			}
			return append(raw, line...), nil
		}

		raw = append(raw, line...)
	}
}

// ReadResponse reads a response with its body from the server.
// A malformed status line returns an error wrapping ErrProtocol after
// the whole message is consumed.
func ReadResponse(reader *bufio.Reader) (response *Response, err error) {
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()

	raw, err := readHead(reader)
	if err != nil {
		return nil, err
	}

	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))

	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}

	// Parse the response headers. The body is consumed even if the
	// header is malformed to keep the stream in sync.
	mimeHeader, headerErr := tp.ReadMIMEHeader()

	response = &Response{
		Header: http.Header(mimeHeader),
		Raw:    raw,
	}

	if err = response.readBody(reader); err != nil {
		return nil, err
	}

	if headerErr != nil {
		return nil, fmt.Errorf("%w: invalid header: %s", ErrProtocol, headerErr)
	}

	proto, status, code, ok := parseResponseLine(line)
	if !ok {
		return nil, fmt.Errorf("%w: invalid response line %q", ErrProtocol, line)
	}

	response.Proto = proto
	response.Status = status
	response.StatusCode = code

	return response, nil
}

func (r *Response) readBody(reader *bufio.Reader) error {
	v := r.Header.Get("content-length")
	if v == "" {
		return nil
	}

	contentLength, err := strconv.Atoi(v)
	if err != nil || contentLength < 0 {
		return fmt.Errorf("invalid content-length %q", v)
	}

	if contentLength == 0 {
		return nil
	}

	if contentLength > maxContentLength {
		return fmt.Errorf("content-length too large %d", contentLength)
	}

	r.Body = make([]byte, contentLength)
	if _, err = io.ReadFull(reader, r.Body); err != nil {
		return err
	}

	r.Raw = append(r.Raw, r.Body...)

	return nil
}

// CSeq returns the echoed sequence number.
func (r *Response) CSeq() (CSeq, bool) {
	v := r.Header.Get("CSeq")
	if v == "" {
		return 0, false
	}

	cseq, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}

	return CSeq(cseq), true
}

// Session returns the session identifier without parameters.
func (r *Response) Session() string {
	return getSession(r.Header.Get("Session"))
}

func (r *Response) successful() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func getSession(value string) string {
	session, _, _ := strings.Cut(value, ";")
	return strings.TrimSpace(session)
}

// splitDescribe splits DESCRIBE response text into the session identifier
// and the session description. SDP entries are recognized by the "k="
// prefix, any other line is skipped.
func splitDescribe(text string) (session, description string) {
	var sb strings.Builder

	for _, line := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		switch {
		case strings.HasPrefix(line, "Session:"):
			session = getSession(line[len("Session:"):])

		case len(line) >= 2 && line[1] == '=' && line[0] >= 'a' && line[0] <= 'z':
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}

	return session, sb.String()
}

type portRange struct {
	RTP  int
	RTCP int
}

var (
	clientPortRE = regexp.MustCompile(`client_port=(\d+)(?:-(\d+))?`)
	serverPortRE = regexp.MustCompile(`server_port=(\d+)(?:-(\d+))?`)
)

func scanPorts(re *regexp.Regexp, text string) (portRange, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return portRange{}, false
	}

	rtp, err := strconv.Atoi(m[1])
	if err != nil || rtp <= 0 || rtp > 65535 {
		return portRange{}, false
	}

	ports := portRange{RTP: rtp, RTCP: rtp + 1}
	if m[2] != "" {
		if rtcp, err := strconv.Atoi(m[2]); err == nil {
			ports.RTCP = rtcp
		}
	}

	return ports, true
}

// transportPorts extracts client and server ports from SETUP response text.
func transportPorts(text string) (client portRange, clientOK bool, server portRange, serverOK bool) {
	client, clientOK = scanPorts(clientPortRE, text)
	server, serverOK = scanPorts(serverPortRE, text)
	return
}
