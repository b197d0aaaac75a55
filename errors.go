package rtsp

import "errors"

var (
	// ErrURLFormat is returned when the URL is not rtsp://A.B.C.D[:port][/path]
	ErrURLFormat = errors.New("invalid rtsp url")
	// ErrSocket is returned when a socket can't be created, bound or connected
	ErrSocket = errors.New("socket error")
	// ErrProtocol is reported for responses with a missing or unknown CSeq
	ErrProtocol = errors.New("protocol error")
	// ErrTransportSetup is reported when SETUP response has no usable server port
	ErrTransportSetup = errors.New("transport setup error")
	// ErrStatus is reported for responses with a non-successful status code
	ErrStatus = errors.New("unexpected status")

	ErrAlreadyPlaying = errors.New("already playing")
)
