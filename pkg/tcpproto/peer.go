package tcpproto

import (
	"vtcp/pkg/bytestream"
	"vtcp/pkg/reassembler"
	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wrap32"
)

// DefaultStreamCapacity is the size of the byte pipe backing each half of a
// Peer absent an application-supplied override.
const DefaultStreamCapacity = 64000

// Peer glues one TCPSender, one TCPReceiver, one Reassembler, and the two
// ByteStreams of a single TCP connection into a single endpoint. It owns
// all four so that none of them needs a reference to any of the others;
// Peer itself passes the right reference into each call.
type Peer struct {
	outbound *bytestream.ByteStream
	inbound  *bytestream.ByteStream

	sender   *Sender
	receiver *Receiver
	re       *reassembler.Reassembler

	abort bool

	// lastReportedAck/lastReportedWindow track the most recent advertisement
	// actually handed to the caller, so Send can tell whether the receiver
	// has something new to report even when the sender itself has nothing
	// new to transmit — the case that produces a bare SYN-ACK, or any other
	// ack-only reply to an otherwise quiet peer.
	lastReportedAck    *wrap32.Wrap32
	lastReportedWindow uint16
	everReported       bool
}

// NewPeer constructs a Peer with fresh, empty streams of DefaultStreamCapacity.
func NewPeer(cfg Config) *Peer {
	return &Peer{
		outbound: bytestream.New(DefaultStreamCapacity),
		inbound:  bytestream.New(DefaultStreamCapacity),
		sender:   NewSender(cfg.InitialRTOMs, cfg.FixedISN),
		receiver: NewReceiver(),
		re:       reassembler.New(),
	}
}

// OutboundWriter is the application's write end: bytes pushed here are
// eventually segmented and sent to the peer.
func (p *Peer) OutboundWriter() *bytestream.Writer { return p.outbound.Writer() }

// InboundReader is the application's read end: bytes received from the
// peer land here once reassembled.
func (p *Peer) InboundReader() *bytestream.Reader { return p.inbound.Reader() }

// Abort requests that the worker loop driving this Peer stop at its next
// wake.
func (p *Peer) Abort() { p.abort = true }

// Aborted reports whether Abort has been called.
func (p *Peer) Aborted() bool { return p.abort }

// Connect pushes an initial, empty segment through the sender to produce
// the opening SYN.
func (p *Peer) Connect() {
	p.sender.Push(p.outbound.Reader())
}

// Receive folds one inbound wire segment into both halves of the
// connection: the payload into the receiver/reassembler, and the
// window/ack advertisement into the sender. Per the worker's ordering
// guarantee, callers feed every inbound segment to Receive before the next
// Tick or Send so acks are processed before new pushes.
func (p *Peer) Receive(seg tcpseg.Segment) {
	p.receiver.Receive(seg.SenderMessage(), p.re, p.inbound.Writer())
	if seg.ACK {
		p.sender.Receive(seg.ReceiverMessage())
	}
}

// Tick advances the sender's retransmit timer by ms milliseconds.
func (p *Peer) Tick(ms uint64) {
	p.sender.Tick(ms)
}

// Send drains the sender — first giving it a chance to produce new
// segments from outbound, then pulling every segment it now has ready —
// and stamps each with the receiver's current window/ack advertisement
// before returning them for transmission. If the sender has nothing of its
// own to send but the receiver's advertisement has changed since it was
// last reported (e.g. a SYN just arrived and needs its SYN-ACK), Send
// manufactures one ack-only segment so that advancement is never silently
// dropped on the floor.
func (p *Peer) Send() []tcpseg.Segment {
	p.sender.Push(p.outbound.Reader())

	var out []tcpseg.Segment
	for {
		sm := p.sender.MaybeSend()
		if sm == nil {
			break
		}
		out = append(out, p.attachAck(*sm))
	}
	if len(out) == 0 && p.receiverAdvanced() {
		out = append(out, p.SendAckOnly())
	}
	return out
}

// receiverAdvanced reports whether the receiver's current advertisement
// differs from the last one actually handed to a caller via attachAck.
func (p *Peer) receiverAdvanced() bool {
	rm := p.receiver.Send(p.inbound.Writer())
	if rm.Ackno == nil {
		return false // nothing to acknowledge yet, so nothing new to report
	}
	if !p.everReported {
		return true
	}
	if p.lastReportedAck == nil || *p.lastReportedAck != *rm.Ackno {
		return true
	}
	return p.lastReportedWindow != rm.WindowSize
}

// SendAckOnly produces a zero-payload segment carrying only the current
// window/ack advertisement, for when the receiver has something new to
// report but the sender has no data segment to piggyback it on.
func (p *Peer) SendAckOnly() tcpseg.Segment {
	return p.attachAck(p.sender.SendEmptyMessage())
}

func (p *Peer) attachAck(sm tcpseg.SenderMessage) tcpseg.Segment {
	rm := p.receiver.Send(p.inbound.Writer())
	seg := tcpseg.Segment{
		Seqno:      sm.Seqno,
		SYN:        sm.SYN,
		Payload:    sm.Payload,
		FIN:        sm.FIN,
		WindowSize: rm.WindowSize,
	}
	if rm.Ackno != nil {
		seg.ACK = true
		seg.Ackno = *rm.Ackno
		ackno := *rm.Ackno
		p.lastReportedAck = &ackno
	}
	p.lastReportedWindow = rm.WindowSize
	p.everReported = true
	return seg
}

// Active reports whether the connection still has unfinished sender or
// receiver work. The receiver side defers to the inbound stream's own
// IsFinished, not FinSeen: a FIN can arrive (and set FinSeen) while it's
// still stuck behind an earlier gap in the reassembler, and the stream
// isn't actually done until that gap closes and the stream is Closed.
func (p *Peer) Active() bool {
	return p.sender.Active() || !p.inbound.Reader().IsFinished()
}

// SenderState exposes the sender's coarse state, mainly for diagnostics.
func (p *Peer) SenderState() SenderState { return p.sender.State() }
