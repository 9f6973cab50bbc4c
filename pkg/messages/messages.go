package messages

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrMessageInvalid     = errors.New("message was invalid")
	ErrUnknownMessageType = errors.New("unknown message type")
)

const (
	ProtocolVersion = "1"
	ContentType     = "application/msgpack"
)

type Type int

const (
	StateMsgType Type = iota
	DoneRequestType
	RollRequestType
	ErrorMsgType
)

func (t Type) String() string {
	switch t {
	case StateMsgType:
		return "state"
	case DoneRequestType:
		return "done"
	case RollRequestType:
		return "roll"
	case ErrorMsgType:
		return "error"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

type Message struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused
	Type     Type     `msgpack:"type"`
	Version  string   `msgpack:"version"`
	Payload  any
}

func New(t Type, payload any) Message {
	return Message{
		Type:    t,
		Version: ProtocolVersion,
		Payload: payload,
	}
}

func (m *Message) UnmarshalMsgpack(b []byte) error {
	decoder := msgpack.NewDecoder(bytes.NewReader(b))
	l, err := decoder.DecodeArrayLen()
	if err != nil {
		return err
	}
	if l != 3 {
		return fmt.Errorf("%w: envelope has %d fields", ErrMessageInvalid, l)
	}
	t, err := decoder.DecodeInt()
	if err != nil {
		return err
	}
	m.Type = Type(t)

	if m.Version, err = decoder.DecodeString(); err != nil {
		return err
	}

	switch m.Type {
	case DoneRequestType:
		var done DoneRequest
		if err = decoder.Decode(&done); err != nil {
			return err
		}
		m.Payload = done
	case StateMsgType:
		var room RoomState
		if err = decoder.Decode(&room); err != nil {
			return err
		}
		m.Payload = room
	case RollRequestType:
		var roll RollRequest
		if err = decoder.Decode(&roll); err != nil {
			return err
		}
		m.Payload = roll
	case ErrorMsgType:
		var e ErrorResponse
		if err = decoder.Decode(&e); err != nil {
			return err
		}
		m.Payload = e
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageType, t)
	}
	return nil
}

type RoomState struct {
	Version int          `msgpack:"version"`
	Name    string       `msgpack:"name"`
	Dice    string       `msgpack:"required_roll"`
	Rolls   []RollResult `msgpack:"rolls"`
}

// RollRequest joins a room. Roll is optional; the first valid notation
// sent to an empty room becomes its dice.
type RollRequest struct {
	User string `msgpack:"user"`
	Roll string `msgpack:"roll"`
}

type RollResult struct {
	User       string `msgpack:"user"`
	Result     int64  `msgpack:"result"`
	Expression string `msgpack:"expression"`
	IsDone     bool   `msgpack:"is_done"`
}

type DoneRequest struct {
	User string `msgpack:"user"`
}

type ErrorResponse struct {
	Error string `msgpack:"error"`
}

type RollResponse struct {
	Notation   string  `msgpack:"notation"`
	Expression string  `msgpack:"expression"`
	Results    []int64 `msgpack:"results"`
	Total      int64   `msgpack:"total"`
}

type ComplexityResponse struct {
	Notation     string `msgpack:"notation"`
	Combinations int64  `msgpack:"combinations"`
}

type DistributionRow struct {
	Value      int64   `msgpack:"value"`
	Count      int64   `msgpack:"count"`
	Percentage float64 `msgpack:"percentage"`
	RollOver   float64 `msgpack:"roll_over"`
	RollUnder  float64 `msgpack:"roll_under"`
}

type DistributionResponse struct {
	Notation string            `msgpack:"notation"`
	Total    int64             `msgpack:"total"`
	Failed   int64             `msgpack:"failed"`
	Mean     float64           `msgpack:"mean"`
	StdDev   float64           `msgpack:"std_dev"`
	Rows     []DistributionRow `msgpack:"rows"`
}
