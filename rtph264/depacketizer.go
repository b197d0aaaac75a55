// Package rtph264 converts RTP/H264 packets into an Annex-B byte stream.
// RTP Payload Format for H.264 Video
// https://datatracker.ietf.org/doc/html/rfc6184
package rtph264

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

var (
	// ErrNonStartingFragment is returned for a middle or end FU-A fragment
	// received while no fragmented NAL unit is in progress.
	// It's normal to receive this when joining a running stream.
	ErrNonStartingFragment = errors.New("non-starting fragment without a starting fragment")

	// ErrShortPayload is returned for a payload shorter than its NAL unit header
	ErrShortPayload = errors.New("payload is too short")
)

const (
	fuStart = 0x80
	fuEnd   = 0x40
)

// Depacketizer reassembles NAL units from RTP packets of one media stream
// and writes them to Sink. Not safe for concurrent use.
type Depacketizer struct {
	Sink Sink

	// fragmented NAL unit in progress
	started   bool
	header    byte
	fragments []byte
}

// Decode decodes a raw RTP packet.
func (d *Depacketizer) Decode(packet []byte) error {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(packet); err != nil {
		return fmt.Errorf("invalid rtp packet: %w", err)
	}

	return d.DecodePacket(&pkt)
}

func (d *Depacketizer) reset() {
	d.started = false
	d.header = 0
	d.fragments = d.fragments[:0]
}

// DecodePacket decodes the payload of an RTP packet.
func (d *Depacketizer) DecodePacket(pkt *rtp.Packet) error {
	payload := pkt.Payload
	if len(payload) < 1 {
		return ErrShortPayload
	}

	typ := h264.NALUType(payload[0] & 0x1F)

	switch {
	case typ >= h264.NALUTypeNonIDR && typ < h264.NALUTypeSTAPA:
		nalu := make([]byte, 0, len(startCode)+len(payload))
		nalu = append(nalu, startCode...)
		nalu = append(nalu, payload...)
		return d.write(nalu, pkt.Marker)

	case typ == h264.NALUTypeFUA:
		return d.decodeFUA(pkt)

	default:
		// aggregation and other unsupported packets are skipped
		return nil
	}
}

func (d *Depacketizer) decodeFUA(pkt *rtp.Packet) error {
	payload := pkt.Payload
	if len(payload) < 2 {
		return fmt.Errorf("invalid FU-A packet: %w", ErrShortPayload)
	}

	indicator := payload[0]
	fu := payload[1]

	if fu&fuStart != 0 {
		// an unterminated assembly is discarded
		d.reset()
		d.started = true
		// forbidden_zero_bit and nal_ref_idc from the indicator, type from the FU header
		d.header = (indicator & 0xE0) | (fu & 0x1F)
	} else if !d.started {
		return ErrNonStartingFragment
	}

	if len(d.fragments)+len(payload)-2 > h264.MaxAccessUnitSize {
		d.reset()
		return fmt.Errorf("NALU size is too big, maximum is %d", h264.MaxAccessUnitSize)
	}

	d.fragments = append(d.fragments, payload[2:]...)

	if fu&fuEnd == 0 {
		return nil
	}

	nalu := make([]byte, 0, len(startCode)+1+len(d.fragments))
	nalu = append(nalu, startCode...)
	nalu = append(nalu, d.header)
	nalu = append(nalu, d.fragments...)

	d.reset()

	return d.write(nalu, pkt.Marker)
}

// WriteParameterSets writes SPS and PPS units ahead of the stream.
func (d *Depacketizer) WriteParameterSets(sps, pps []byte) error {
	for _, ps := range [][]byte{sps, pps} {
		if len(ps) == 0 {
			continue
		}

		nalu := make([]byte, 0, len(startCode)+len(ps))
		nalu = append(nalu, startCode...)
		nalu = append(nalu, ps...)

		if err := d.write(nalu, false); err != nil {
			return err
		}
	}

	return nil
}

func (d *Depacketizer) write(nalu []byte, marker bool) error {
	if d.Sink == nil {
		return nil
	}

	return d.Sink.WriteNALU(nalu, marker)
}
