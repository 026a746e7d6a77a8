package icmp

import (
	"fmt"

	"firestige.xyz/tapstack/internal/core"
)

// Outcome classifies what the responder did with a message.
type Outcome int

const (
	// OutcomeIgnored means the message type is not handled.
	OutcomeIgnored Outcome = iota
	// OutcomeEchoReplied means an echo reply was built.
	OutcomeEchoReplied
	// OutcomeEchoReplyObserved means a ping response addressed to us arrived.
	OutcomeEchoReplyObserved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEchoReplied:
		return "echo-replied"
	case OutcomeEchoReplyObserved:
		return "echo-reply-observed"
	}
	return "ignored"
}

// Result is the outcome of handling one ICMP message.
type Result struct {
	Message       Message
	Outcome       Outcome
	ChecksumValid bool
	// Reply is the ICMP message to send back, nil when there is none.
	Reply []byte
}

// Responder answers echo requests.
type Responder struct {
	// DropBadChecksum rejects messages whose checksum does not verify
	// instead of answering them anyway.
	DropBadChecksum bool
}

// Handle processes the ICMP message spanning v. Types other than echo
// request and echo reply return core.ErrUnsupported.
func (r *Responder) Handle(v core.View) (Result, error) {
	m, err := Decode(v)
	if err != nil {
		return Result{}, err
	}

	res := Result{Message: m, ChecksumValid: ChecksumValid(v)}
	if !res.ChecksumValid && r.DropBadChecksum {
		return res, fmt.Errorf("icmp %s checksum 0x%04x: %w", m.Type, m.Checksum, core.ErrBadChecksum)
	}

	switch m.Type {
	case TypeEchoRequest:
		res.Outcome = OutcomeEchoReplied
		res.Reply = echoReply(m)
		return res, nil
	case TypeEchoReply:
		res.Outcome = OutcomeEchoReplyObserved
		return res, nil
	default:
		return res, fmt.Errorf("icmp %s code %d: %w", m.Type, m.Code, core.ErrUnsupported)
	}
}

// echoReply keeps identifier, sequence and payload of the request.
func echoReply(req Message) []byte {
	reply := Message{
		Type:         TypeEchoReply,
		Code:         0,
		RestOfHeader: req.RestOfHeader,
		Payload:      req.Payload,
	}
	buf := make([]byte, reply.Len())
	_, _ = reply.Put(buf)
	return buf
}
