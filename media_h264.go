package rtsp

import (
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// RTP Payload Format for H.264 Video
// https://datatracker.ietf.org/doc/html/rfc6184
type MediaH264 struct {
	ClockRate         int
	PacketizationMode int
	ProfileLevelID    []byte
	SPS               []byte
	PPS               []byte
}

func NewMediaH264(clockRate int) *MediaH264 {
	return &MediaH264{
		ClockRate: clockRate,
	}
}

func (m *MediaH264) ParseFMTP(line string) {
	var (
		pair, key, value string
		ok               bool
	)

	for line != "" {
		pair, line, _ = strings.Cut(line, ";")
		pair = strings.TrimSpace(pair)

		key, value, ok = strings.Cut(pair, "=")
		if !ok {
			continue
		}

		switch key {
		case "packetization-mode":
			if v, err := strconv.Atoi(value); err == nil {
				m.PacketizationMode = v
			}

		case "profile-level-id":
			if v, err := hex.DecodeString(value); err == nil && len(v) == 3 {
				m.ProfileLevelID = v
			}

		case "sprop-parameter-sets":
			for _, ps := range strings.Split(value, ",") {
				v, err := base64.StdEncoding.DecodeString(ps)
				if err != nil || len(v) == 0 {
					continue
				}

				switch h264.NALUType(v[0] & 0x1F) {
				case h264.NALUTypeSPS:
					m.SPS = v
				case h264.NALUTypePPS:
					m.PPS = v
				}
			}
		}
	}
}
