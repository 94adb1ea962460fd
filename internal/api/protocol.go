package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"pong-arena/internal/game"
)

// Inbound event names.
const (
	EventJoinQueue     = "joinQueue"
	EventLeaveQueue    = "leaveQueue"
	EventSendInvite    = "sendInvite"
	EventAcceptInvite  = "acceptInvite"
	EventDeclineInvite = "declineInvite"
	EventMove          = "move"

	// EventError is the outbound reply to a rejected command.
	EventError = "error"
)

// Error codes carried by EventError.
const (
	CodeAdmissionConflict = "admission_conflict"
	CodeAlreadyQueued     = "already_queued"
	CodeInvalidInput      = "invalid_input"
	CodeUnknownTarget     = "unknown_target"
	CodeInviteExists      = "invite_exists"
	CodeOpponentBusy      = "opponent_busy"
	CodeRateLimited       = "rate_limited"
	CodeUnknownEvent      = "unknown_event"
	CodeBadFrame          = "bad_frame"
	CodeInternal          = "internal"
)

// ErrorPayload describes why a command was rejected.
type ErrorPayload struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// AlreadyInMatchPayload accompanies an admission conflict.
type AlreadyInMatchPayload struct {
	Reason string `json:"reason" msgpack:"reason"`
}

type joinQueuePayload struct {
	PlayerID string `json:"player_id" msgpack:"player_id"`
}

type sendInvitePayload struct {
	PlayerID   string `json:"player_id" msgpack:"player_id"`
	OpponentID string `json:"opponent_id" msgpack:"opponent_id"`
}

type acceptInvitePayload struct {
	InviterID string `json:"inviter_id" msgpack:"inviter_id"`
	InviteeID string `json:"invitee_id" msgpack:"invitee_id"`
}

type declineInvitePayload struct {
	PlayerID string `json:"player_id" msgpack:"player_id"`
}

type movePayload struct {
	MatchID   game.MatchID `json:"match_id" msgpack:"match_id"`
	Direction string       `json:"direction" msgpack:"direction"`
}

var errBadFrame = errors.New("malformed frame")

// Codec frames envelopes of the form {"event": ..., "data": ...}.
type Codec interface {
	Name() string
	// FrameType is the websocket message type used for outbound frames.
	FrameType() int
	Encode(event string, data any) ([]byte, error)
	// Decode splits a frame into its event name and raw data.
	Decode(frame []byte) (event string, data []byte, err error)
	Unmarshal(data []byte, v any) error
}

// CodecFor returns the codec selected by the ?codec= query value.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "msgpack":
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", name)
	}
}

type jsonCodec struct{}

type jsonEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(event string, data any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"event": event,
		"data":  data,
	})
}

func (jsonCodec) Decode(frame []byte) (string, []byte, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		return "", nil, errBadFrame
	}
	return env.Event, env.Data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

type msgpackCodec struct{}

type msgpackEnvelope struct {
	Event string             `msgpack:"event"`
	Data  msgpack.RawMessage `msgpack:"data,omitempty"`
}

func (msgpackCodec) Name() string   { return "msgpack" }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(event string, data any) ([]byte, error) {
	return msgpack.Marshal(map[string]any{
		"event": event,
		"data":  data,
	})
}

func (msgpackCodec) Decode(frame []byte) (string, []byte, error) {
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &env); err != nil || env.Event == "" {
		return "", nil, errBadFrame
	}
	return env.Event, env.Data, nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return msgpack.Unmarshal(data, v)
}

// command is a decoded inbound frame, ready for the hub loop.
type command struct {
	client  *Client
	event   string
	payload any
	err     error
}

// decodeCommand parses a frame into a typed command. Unknown events and
// malformed payloads produce a command carrying an error.
func decodeCommand(c Codec, frame []byte) (string, any, error) {
	event, data, err := c.Decode(frame)
	if err != nil {
		return "", nil, err
	}

	var payload any
	switch event {
	case EventJoinQueue:
		var p joinQueuePayload
		err = c.Unmarshal(data, &p)
		payload = p
	case EventLeaveQueue:
		payload = struct{}{}
	case EventSendInvite:
		var p sendInvitePayload
		err = c.Unmarshal(data, &p)
		payload = p
	case EventAcceptInvite:
		var p acceptInvitePayload
		err = c.Unmarshal(data, &p)
		payload = p
	case EventDeclineInvite:
		var p declineInvitePayload
		err = c.Unmarshal(data, &p)
		payload = p
	case EventMove:
		var p movePayload
		err = c.Unmarshal(data, &p)
		payload = p
	default:
		return event, nil, errUnknownEvent
	}
	if err != nil {
		return event, nil, fmt.Errorf("%w: %s payload", errBadFrame, event)
	}
	return event, payload, nil
}

var errUnknownEvent = errors.New("unknown event")
