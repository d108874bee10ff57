// Package wire encodes the messages exchanged with the central determination server.
//
// Every frame is an envelope carrying a kind, the correlation ids, a command and a body.
// Bodies form a closed set: the pairing between a request command and the body types of its
// request and response is fixed in the tables at the bottom of this file.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownKind    = errors.New("unknown message kind")
	ErrMissingBody    = errors.New("message has no body")
)

// Kind distinguishes requests, responses and unsolicited notifications.
type Kind int32

const (
	KindInvalid Kind = iota
	KindRequest
	KindResponse
	KindNotification
)

// Command identifies the operation a message belongs to.
type Command int32

const (
	CommandInvalid Command = iota
	CommandKeepAlive
	CommandParameters
	CommandGameInfo
	CommandPlayerID
	CommandProgressiveInfo
	CommandReadyToPlay
	CommandGamePlay
	CommandRaceStart
	CommandRecovery
	CommandTransaction
	CommandServerCommand
	CommandParameterPush
)

var commandNames = map[Command]string{
	CommandInvalid:         "Invalid",
	CommandKeepAlive:       "KeepAlive",
	CommandParameters:      "Parameters",
	CommandGameInfo:        "GameInfo",
	CommandPlayerID:        "PlayerID",
	CommandProgressiveInfo: "ProgressiveInfo",
	CommandReadyToPlay:     "ReadyToPlay",
	CommandGamePlay:        "GamePlay",
	CommandRaceStart:       "RaceStart",
	CommandRecovery:        "Recovery",
	CommandTransaction:     "Transaction",
	CommandServerCommand:   "ServerCommand",
	CommandParameterPush:   "ParameterPush",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int32(c))
}

// Status is the result a server reports in a response.
type Status int32

const (
	StatusUnknown Status = iota
	StatusOK
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Body is the command specific content of a message.
// The set of implementations is closed to this package.
type Body interface {
	appendTo(b []byte) []byte
	readField(f field) error
}

// RequestBody is a Body that can be sent as a request.
type RequestBody interface {
	Body
	Command() Command
}

// TransactionIDer is implemented by request bodies that consume a transaction id.
type TransactionIDer interface {
	TransactionID() uint32
}

// Message is the envelope of every frame.
type Message struct {
	Kind       Kind
	SequenceID uint64
	ReplyID    uint64
	Command    Command
	Status     Status
	Body       Body
}

// Request is an outgoing message. Its identity is the sequence id;
// 0 is reserved and never matches a live request.
type Request struct {
	SequenceID uint64
	Body       RequestBody
}

// Command returns the command of the request body.
func (r Request) Command() Command {
	if r.Body == nil {
		return CommandInvalid
	}
	return r.Body.Command()
}

// Message wraps the request in an envelope.
func (r Request) Message() Message {
	return Message{
		Kind:       KindRequest,
		SequenceID: r.SequenceID,
		Command:    r.Command(),
		Body:       r.Body,
	}
}

// Response answers the request whose sequence id equals ReplyID.
// A ReplyID of 0 marks a response that originates from a recovery.
type Response struct {
	ReplyID uint64
	Command Command
	Status  Status
	Body    Body
}

// OK reports whether the server accepted the request.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// IsRecovery reports whether the response is not tied to a specific request.
func (r Response) IsRecovery() bool {
	return r.ReplyID == 0
}

// Message wraps the response in an envelope.
func (r Response) Message() Message {
	return Message{
		Kind:    KindResponse,
		ReplyID: r.ReplyID,
		Command: r.Command,
		Status:  r.Status,
		Body:    r.Body,
	}
}

// Request returns the request carried by a message of KindRequest.
func (m Message) Request() Request {
	body, _ := m.Body.(RequestBody)
	return Request{SequenceID: m.SequenceID, Body: body}
}

// Response returns the response carried by a message of KindResponse.
func (m Message) Response() Response {
	return Response{ReplyID: m.ReplyID, Command: m.Command, Status: m.Status, Body: m.Body}
}

const (
	fieldKind       protowire.Number = 1
	fieldSequenceID protowire.Number = 2
	fieldReplyID    protowire.Number = 3
	fieldCommand    protowire.Number = 4
	fieldStatus     protowire.Number = 5
	fieldBody       protowire.Number = 6
)

// Marshal encodes a message.
func Marshal(m Message) ([]byte, error) {
	if m.Body == nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingBody, m.Command)
	}
	if _, err := newBody(m.Kind, m.Command); err != nil {
		return nil, err
	}
	var b []byte
	b = appendVarint(b, fieldKind, uint64(m.Kind))
	b = appendVarint(b, fieldSequenceID, m.SequenceID)
	b = appendVarint(b, fieldReplyID, m.ReplyID)
	b = appendVarint(b, fieldCommand, uint64(m.Command))
	b = appendVarint(b, fieldStatus, uint64(m.Status))
	b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Body.appendTo(nil))
	return b, nil
}

// Unmarshal decodes a message and its body.
func Unmarshal(data []byte) (m Message, err error) {
	var body []byte
	hasBody := false
	err = readFields(data, func(f field) error {
		switch f.num {
		case fieldKind:
			m.Kind = Kind(f.varint)
		case fieldSequenceID:
			m.SequenceID = f.varint
		case fieldReplyID:
			m.ReplyID = f.varint
		case fieldCommand:
			m.Command = Command(f.varint)
		case fieldStatus:
			m.Status = Status(f.varint)
		case fieldBody:
			body = f.bytes
			hasBody = true
		}
		return nil
	})
	if err != nil {
		return
	}
	if !hasBody {
		err = fmt.Errorf("%w: %v", ErrMissingBody, m.Command)
		return
	}
	m.Body, err = newBody(m.Kind, m.Command)
	if err != nil {
		return
	}
	err = readFields(body, m.Body.readField)
	if err != nil {
		err = fmt.Errorf("decode %v body: %w", m.Command, err)
	}
	return
}

// MarshalRequest encodes a request for persistence.
func MarshalRequest(r Request) ([]byte, error) {
	return Marshal(r.Message())
}

// UnmarshalRequest decodes a request that was encoded with MarshalRequest.
func UnmarshalRequest(data []byte) (Request, error) {
	m, err := Unmarshal(data)
	if err != nil {
		return Request{}, err
	}
	if m.Kind != KindRequest {
		return Request{}, fmt.Errorf("%w: expected a request, got %v", ErrUnknownKind, m.Kind)
	}
	return m.Request(), nil
}

// MarshalResponse encodes a response for persistence.
func MarshalResponse(r Response) ([]byte, error) {
	return Marshal(r.Message())
}

// UnmarshalResponse decodes a response that was encoded with MarshalResponse.
func UnmarshalResponse(data []byte) (Response, error) {
	m, err := Unmarshal(data)
	if err != nil {
		return Response{}, err
	}
	if m.Kind != KindResponse {
		return Response{}, fmt.Errorf("%w: expected a response, got %v", ErrUnknownKind, m.Kind)
	}
	return m.Response(), nil
}

var requestBodies = map[Command]func() Body{
	CommandKeepAlive:       func() Body { return &KeepAlive{} },
	CommandParameters:      func() Body { return &ParametersRequest{} },
	CommandGameInfo:        func() Body { return &GameInfoRequest{} },
	CommandPlayerID:        func() Body { return &PlayerIDRequest{} },
	CommandProgressiveInfo: func() Body { return &ProgressiveInfoRequest{} },
	CommandReadyToPlay:     func() Body { return &ReadyToPlay{} },
	CommandGamePlay:        func() Body { return &GamePlayRequest{} },
	CommandRaceStart:       func() Body { return &RaceStartRequest{} },
	CommandRecovery:        func() Body { return &RecoveryRequest{} },
	CommandTransaction:     func() Body { return &TransactionRequest{} },
}

var responseBodies = map[Command]func() Body{
	CommandKeepAlive:       func() Body { return &Ack{} },
	CommandParameters:      func() Body { return &ParametersResponse{} },
	CommandGameInfo:        func() Body { return &GameInfoResponse{} },
	CommandPlayerID:        func() Body { return &PlayerIDResponse{} },
	CommandProgressiveInfo: func() Body { return &ProgressiveInfoResponse{} },
	CommandReadyToPlay:     func() Body { return &Ack{} },
	CommandGamePlay:        func() Body { return &Outcome{} },
	CommandRaceStart:       func() Body { return &Outcome{} },
	CommandRecovery:        func() Body { return &RecoveryResponse{} },
	CommandTransaction:     func() Body { return &Ack{} },
}

var notificationBodies = map[Command]func() Body{
	CommandServerCommand: func() Body { return &ServerCommand{} },
	CommandParameterPush: func() Body { return &ParameterPush{} },
}

func newBody(kind Kind, command Command) (Body, error) {
	var table map[Command]func() Body
	switch kind {
	case KindRequest:
		table = requestBodies
	case KindResponse:
		table = responseBodies
	case KindNotification:
		table = notificationBodies
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int32(kind))
	}
	create, ok := table[command]
	if !ok {
		return nil, fmt.Errorf("%w: %v for kind %d", ErrUnknownCommand, command, int32(kind))
	}
	return create(), nil
}
