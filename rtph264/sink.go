package rtph264

import "io"

// Sink consumes the Annex-B byte stream produced by the Depacketizer.
type Sink interface {
	// WriteNALU receives one NAL unit prefixed with a start code.
	// marker is set when the unit ends an access unit (RTP marker bit).
	WriteNALU(nalu []byte, marker bool) error
}

type flusher interface {
	Flush() error
}

// WriterSink writes the stream to w. Every NAL unit is flushed as soon as
// it is written when w has a Flush method (e.g. *bufio.Writer).
type WriterSink struct {
	w io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) WriteNALU(nalu []byte, _ bool) error {
	if _, err := s.w.Write(nalu); err != nil {
		return err
	}

	if f, ok := s.w.(flusher); ok {
		return f.Flush()
	}

	return nil
}
