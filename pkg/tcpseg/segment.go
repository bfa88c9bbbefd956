// Package tcpseg defines the message types exchanged between a TCPSender
// and a TCPReceiver, independent of how they are carried over the wire.
package tcpseg

import "vtcp/pkg/wrap32"

// SenderMessage is a single outbound TCP segment as produced by a sender:
// a sequence number, optional SYN/FIN control bits, and a payload.
type SenderMessage struct {
	Seqno   wrap32.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
}

// SequenceLength is the number of sequence numbers this segment occupies:
// payload bytes, plus one for SYN, plus one for FIN.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is the receiver's window/ack advertisement sent back to
// the sender. Ackno is nil when the receiver has not yet seen a SYN.
type ReceiverMessage struct {
	WindowSize uint16
	Ackno      *wrap32.Wrap32
}

// Segment is the combined wire form of one TCP segment: a sender's
// seqno/flags/payload piggybacked with a receiver's window/ack
// advertisement, the way an actual TCP header carries both directions at
// once. ACK reports whether Ackno is meaningful.
type Segment struct {
	Seqno   wrap32.Wrap32
	SYN     bool
	FIN     bool
	Payload []byte

	ACK        bool
	Ackno      wrap32.Wrap32
	WindowSize uint16
}

// SequenceLength is the number of sequence numbers this segment occupies.
func (seg Segment) SequenceLength() uint64 {
	n := uint64(len(seg.Payload))
	if seg.SYN {
		n++
	}
	if seg.FIN {
		n++
	}
	return n
}

// SenderMessage extracts the sender-produced half of seg: seqno, flags,
// and payload, discarding the piggybacked ack/window.
func (seg Segment) SenderMessage() SenderMessage {
	return SenderMessage{Seqno: seg.Seqno, SYN: seg.SYN, Payload: seg.Payload, FIN: seg.FIN}
}

// ReceiverMessage extracts the receiver-produced half of seg: the
// window/ack advertisement, discarding the sequence data.
func (seg Segment) ReceiverMessage() ReceiverMessage {
	rm := ReceiverMessage{WindowSize: seg.WindowSize}
	if seg.ACK {
		ackno := seg.Ackno
		rm.Ackno = &ackno
	}
	return rm
}
