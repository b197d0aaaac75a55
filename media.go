package rtsp

import (
	"strconv"
	"strings"

	"github.com/cesbo/go-rtsp-player/sdp"
)

type Media interface {
	ParseFMTP(line string)
}

func NewMedia(encoding string, clockRate int) Media {
	switch strings.ToLower(encoding) {
	case "h264":
		return NewMediaH264(clockRate)
	default:
		return nil
	}
}

// formatAttr returns the value of "a=<name>:<format> <value>".
func formatAttr(m *sdp.Media, name string, format int) (string, bool) {
	prefix := name + ":" + strconv.Itoa(format) + " "

	for _, a := range m.Attributes {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimSpace(a[len(prefix):]), true
		}
	}

	return "", false
}

// parseMedia returns the format of the first payload type of m described
// by "rtpmap" and "fmtp" attributes. Returns nil for unsupported encodings.
func parseMedia(m *sdp.Media) Media {
	if len(m.Formats) == 0 {
		return nil
	}

	format := m.Formats[0]

	// a=rtpmap:96 H264/90000
	rtpmap, ok := formatAttr(m, "rtpmap", format)
	if !ok {
		return nil
	}

	params := strings.Split(rtpmap, "/")
	if len(params) < 2 {
		return nil
	}

	clockRate, err := strconv.Atoi(params[1])
	if err != nil {
		return nil
	}

	media := NewMedia(params[0], clockRate)
	if media == nil {
		return nil
	}

	// a=fmtp:96 packetization-mode=1;sprop-parameter-sets=...
	if fmtp, ok := formatAttr(m, "fmtp", format); ok {
		media.ParseFMTP(fmtp)
	}

	return media
}
