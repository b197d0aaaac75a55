package rtsp

import "fmt"

// CSeq values are fixed per request type. Responses are correlated to
// requests by the echoed value.
type CSeq int

const (
	CSeqOptions CSeq = iota + 1
	CSeqDescribe
	CSeqVideoSetup
	CSeqAudioSetup
	CSeqPlay
	CSeqPause
	CSeqTeardown
)

func (c CSeq) String() string {
	switch c {
	case CSeqOptions:
		return "OPTIONS"
	case CSeqDescribe:
		return "DESCRIBE"
	case CSeqVideoSetup:
		return "VIDEO_SETUP"
	case CSeqAudioSetup:
		return "AUDIO_SETUP"
	case CSeqPlay:
		return "PLAY"
	case CSeqPause:
		return "PAUSE"
	case CSeqTeardown:
		return "TEARDOWN"
	default:
		return fmt.Sprintf("CSeq(%d)", int(c))
	}
}

func (c CSeq) valid() bool {
	return c >= CSeqOptions && c <= CSeqTeardown
}

// Action is the next protocol step executed by the worker.
type Action int

const (
	ActionIdle Action = iota
	ActionSendDescribe
	ActionSendVideoSetup
	ActionSendPlay
	ActionSendPause
	ActionSendKeepAlive
	ActionTurnOff
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionSendDescribe:
		return "send describe"
	case ActionSendVideoSetup:
		return "send video setup"
	case ActionSendPlay:
		return "send play"
	case ActionSendPause:
		return "send pause"
	case ActionSendKeepAlive:
		return "send keep-alive"
	case ActionTurnOff:
		return "turn off"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// State is the phase of the RTSP session.
type State int32

const (
	StateConnecting State = iota
	StateDescribing
	StateSettingUp
	StateStarting
	StatePlaying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateDescribing:
		return "describing"
	case StateSettingUp:
		return "setting up"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is an outcome observed by the worker.
type Event int

const (
	EventConnected Event = iota
	EventDescribed
	EventDescribeFailed
	EventTrackReady
	EventTracksReady
	EventSetupFailed
	EventPlayStarted
	EventPlayFailed
	EventKeepAlive
	EventStop
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDescribed:
		return "described"
	case EventDescribeFailed:
		return "describe failed"
	case EventTrackReady:
		return "track ready"
	case EventTracksReady:
		return "tracks ready"
	case EventSetupFailed:
		return "setup failed"
	case EventPlayStarted:
		return "play started"
	case EventPlayFailed:
		return "play failed"
	case EventKeepAlive:
		return "keep-alive"
	case EventStop:
		return "stop"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// transition returns the next state and the action to perform.
// Events not expected in the state leave it unchanged with no action.
func transition(state State, event Event) (State, Action) {
	if event == EventStop {
		return StateClosed, ActionTurnOff
	}

	switch state {
	case StateConnecting:
		if event == EventConnected {
			return StateDescribing, ActionSendDescribe
		}

	case StateDescribing:
		if event == EventDescribed {
			return StateSettingUp, ActionSendVideoSetup
		}

	case StateSettingUp:
		switch event {
		case EventTrackReady:
			return StateSettingUp, ActionSendVideoSetup
		case EventTracksReady:
			return StateStarting, ActionSendPlay
		}

	case StateStarting:
		if event == EventPlayStarted {
			return StatePlaying, ActionIdle
		}

	case StatePlaying:
		if event == EventKeepAlive {
			return StatePlaying, ActionSendKeepAlive
		}
	}

	return state, ActionIdle
}

// Session is the RTSP session state owned by the worker.
type Session struct {
	ID string

	state       State
	pending     []Action
	outstanding CSeq
}

// Dispatch applies the event and queues the resulting action.
func (s *Session) Dispatch(event Event) Action {
	state, action := transition(s.state, event)
	s.state = state

	if action != ActionIdle {
		s.pending = append(s.pending, action)
	}

	return action
}

// Next dequeues the next pending action. Returns ActionIdle if none.
func (s *Session) Next() Action {
	if len(s.pending) == 0 {
		return ActionIdle
	}

	action := s.pending[0]
	s.pending = s.pending[1:]

	return action
}

func (s *Session) State() State {
	return s.state
}
