package tcpproto

import (
	"math/rand/v2"

	"vtcp/pkg/bytestream"
	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wrap32"
)

// MaxPayloadSize bounds the payload carried by any one segment a Sender
// produces, mirroring the teacher's own MTU-derived budget (1400-byte IP
// packets minus IPv4/TCP header overhead).
const MaxPayloadSize = 1360

// SenderState is the coarse connection-progress state of a Sender, derived
// from its sequence-number bookkeeping rather than stored directly.
type SenderState int

const (
	StateClosed SenderState = iota
	StateSynSent
	StateEstablished
	StateFinSent
	StateDone
)

func (st SenderState) String() string {
	switch st {
	case StateClosed:
		return "CLOSED"
	case StateSynSent:
		return "SYN_SENT"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinSent:
		return "FIN_SENT"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Sender is the TCPSender half of an endpoint: it turns an outbound
// ByteStream into segments, retransmitting on timeout with exponential
// back-off and probing a zero window one byte at a time.
type Sender struct {
	isn        wrap32.Wrap32
	initialRTO uint64
	currentRTO uint64

	// window is the peer's last advertisement. It starts at 1 — "treated
	// as 1 until first receiver message" — rather than the zero value, so
	// the very first RTO decision in Tick doesn't mistake "never heard
	// from the peer" for "peer advertised a zero window".
	window uint16

	nextAbsSeq uint64
	acknoAbs   uint64

	outstanding []tcpseg.SenderMessage // unacked, FIFO, contiguous in seq space
	emitted     int                    // how many of outstanding have been yielded by MaybeSend at least once

	consecutiveRetx uint64
	retxPending     int

	timerRunning   bool
	timerElapsedMs uint64

	finSent          bool
	zeroWindowProbe  bool
}

// NewSender constructs a Sender with the given initial RTO. If fixedISN is
// nil, a random ISN is chosen.
func NewSender(initialRTOMs uint64, fixedISN *wrap32.Wrap32) *Sender {
	isn := wrap32.New(rand.Uint32())
	if fixedISN != nil {
		isn = *fixedISN
	}
	return &Sender{
		isn:        isn,
		initialRTO: initialRTOMs,
		currentRTO: initialRTOMs,
		window:     1,
	}
}

// SequenceNumbersInFlight is next_abs_seq - ackno_abs.
func (s *Sender) SequenceNumbersInFlight() uint64 { return s.nextAbsSeq - s.acknoAbs }

// ConsecutiveRetransmissions is the number of back-to-back RTO firings
// since the last new acknowledgment.
func (s *Sender) ConsecutiveRetransmissions() uint64 { return s.consecutiveRetx }

// State derives the sender's coarse connection state from its sequence
// bookkeeping.
func (s *Sender) State() SenderState {
	switch {
	case s.nextAbsSeq == 0:
		return StateClosed
	case s.acknoAbs == 0:
		return StateSynSent
	case s.finSent && s.acknoAbs >= s.nextAbsSeq:
		return StateDone
	case s.finSent:
		return StateFinSent
	default:
		return StateEstablished
	}
}

// Active is true in every state except DONE, and except CLOSED before
// anything has been pushed.
func (s *Sender) Active() bool {
	switch s.State() {
	case StateDone, StateClosed:
		return false
	default:
		return true
	}
}

// effectiveWindow is the window used for sizing new segments: the peer's
// last advertisement, or 1 while probing a zero window.
func (s *Sender) effectiveWindow() uint64 {
	if s.window == 0 {
		return 1
	}
	return uint64(s.window)
}

// Push produces as many new segments as the effective window currently
// allows, draining outbound. Every produced segment is appended to the
// retransmission queue; the caller must still drain them via MaybeSend.
func (s *Sender) Push(outbound *bytestream.Reader) {
	for {
		inFlight := s.nextAbsSeq - s.acknoAbs
		window := s.effectiveWindow()
		if inFlight >= window {
			return
		}
		remaining := window - inFlight

		syn := s.nextAbsSeq == 0
		maxPayload := uint64(MaxPayloadSize)
		if remaining < maxPayload {
			maxPayload = remaining
		}
		avail := outbound.BytesBuffered()
		n := avail
		if n > maxPayload {
			n = maxPayload
		}

		var payload []byte
		if n > 0 {
			payload = append([]byte(nil), outbound.Peek()[:n]...)
			outbound.Pop(n)
		}

		finished := outbound.IsFinished()
		seqLen := n
		if syn {
			seqLen++
		}
		setFin := finished && !s.finSent && seqLen+1 <= remaining

		if n == 0 && !syn && !setFin {
			return
		}

		seg := tcpseg.SenderMessage{
			Seqno:   s.isn.Add(s.nextAbsSeq),
			SYN:     syn,
			Payload: payload,
			FIN:     setFin,
		}
		s.outstanding = append(s.outstanding, seg)
		s.nextAbsSeq += seg.SequenceLength()
		if setFin {
			s.finSent = true
		}

		if outbound.BytesBuffered() == 0 && !(finished && !s.finSent) {
			return
		}
	}
}

// MaybeSend returns, in priority order, a queued retransmission, then the
// next not-yet-emitted new segment, or nil if there's nothing to send.
// Any emission (re)starts the retransmit timer.
func (s *Sender) MaybeSend() *tcpseg.SenderMessage {
	if s.retxPending > 0 && len(s.outstanding) > 0 {
		s.retxPending--
		s.timerRunning = true
		seg := s.outstanding[0]
		return &seg
	}
	if s.emitted < len(s.outstanding) {
		seg := s.outstanding[s.emitted]
		s.emitted++
		s.timerRunning = true
		return &seg
	}
	return nil
}

// SendEmptyMessage returns a zero-length segment carrying only the next
// sequence number, used to carry an ack with no data of its own.
func (s *Sender) SendEmptyMessage() tcpseg.SenderMessage {
	return tcpseg.SenderMessage{Seqno: s.isn.Add(s.nextAbsSeq)}
}

// Receive folds a receiver advertisement into the sender: updates the
// window, and if it carries an ackno, retires every fully-acknowledged
// outstanding segment.
func (s *Sender) Receive(msg tcpseg.ReceiverMessage) {
	s.window = msg.WindowSize
	if msg.Ackno == nil {
		return
	}
	a := msg.Ackno.Unwrap(s.isn, s.acknoAbs)
	if a > s.nextAbsSeq {
		return // bogus ack of data we never sent
	}

	popped := 0
	newDataAcked := false
	for len(s.outstanding) > 0 {
		seg := s.outstanding[0]
		end := s.acknoAbs + seg.SequenceLength()
		if end > a {
			break
		}
		s.acknoAbs = end
		s.outstanding = s.outstanding[1:]
		popped++
		newDataAcked = true
	}
	s.emitted -= popped
	if s.emitted < 0 {
		s.emitted = 0
	}

	if newDataAcked {
		s.currentRTO = s.initialRTO
		s.consecutiveRetx = 0
		s.retxPending = 0
		s.timerElapsedMs = 0
		s.zeroWindowProbe = false
	}
	if len(s.outstanding) == 0 {
		s.timerRunning = false
	}
}

// Tick advances the retransmit timer by ms milliseconds. On RTO firing it
// queues the head of the retransmission queue for resend and doubles the
// RTO, unless the peer's last advertised window was zero — a zero-window
// probe restarts the timer with the RTO left unchanged.
func (s *Sender) Tick(ms uint64) {
	if !s.timerRunning {
		return
	}
	s.timerElapsedMs += ms
	if s.timerElapsedMs < s.currentRTO {
		return
	}
	if len(s.outstanding) == 0 {
		s.timerRunning = false
		return
	}

	if s.retxPending < 1 {
		s.retxPending++
	}
	s.timerElapsedMs = 0
	s.timerRunning = true
	s.consecutiveRetx++

	if s.window > 0 {
		s.currentRTO *= 2
		s.zeroWindowProbe = false
	} else {
		s.zeroWindowProbe = true
	}
}

// ZeroWindowProbing reports whether the last RTO fired while the peer's
// window was zero.
func (s *Sender) ZeroWindowProbing() bool { return s.zeroWindowProbe }

// Window is the peer's last advertised window.
func (s *Sender) Window() uint16 { return s.window }
