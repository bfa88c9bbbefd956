package tcpproto

import (
	"vtcp/pkg/bytestream"
	"vtcp/pkg/reassembler"
	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wrap32"
)

// Receiver is the TCPReceiver half of an endpoint: it turns inbound
// SenderMessages into bytes in a Reassembler-backed ByteStream and produces
// the window/ack advertisements sent back to the peer.
type Receiver struct {
	connected bool
	isn       wrap32.Wrap32
	finSeen   bool
}

// NewReceiver constructs a Receiver that has not yet seen a SYN.
func NewReceiver() *Receiver { return &Receiver{} }

// Receive folds one inbound segment into the reassembler and, through it,
// the inbound stream. Segments seen before a SYN are dropped.
func (r *Receiver) Receive(msg tcpseg.SenderMessage, re *reassembler.Reassembler, inbound *bytestream.Writer) {
	seqno := msg.Seqno
	if msg.SYN {
		r.connected = true
		r.isn = msg.Seqno
		seqno = msg.Seqno.Add(1)
	}
	if !r.connected {
		return
	}

	checkpoint := inbound.BytesPushed() + 1
	streamIndex := seqno.Unwrap(r.isn, checkpoint) - 1
	re.Insert(streamIndex, msg.Payload, msg.FIN, inbound)

	if msg.FIN {
		r.finSeen = true
	}
}

// Send produces the current window/ack advertisement for inbound.
func (r *Receiver) Send(inbound *bytestream.Writer) tcpseg.ReceiverMessage {
	window := inbound.AvailableCapacity()
	if window > 65535 {
		window = 65535
	}
	msg := tcpseg.ReceiverMessage{WindowSize: uint16(window)}
	if !r.connected {
		return msg
	}

	ackno := r.isn.Add(1 + inbound.BytesPushed())
	if inbound.IsClosed() {
		ackno = ackno.Add(1)
	}
	msg.Ackno = &ackno
	return msg
}

// Connected reports whether a SYN has been observed.
func (r *Receiver) Connected() bool { return r.connected }

// FinSeen reports whether a FIN has been observed (not necessarily yet
// fully reassembled into a closed stream).
func (r *Receiver) FinSeen() bool { return r.finSeen }
