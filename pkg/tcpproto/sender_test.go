package tcpproto

import (
	"testing"

	"vtcp/pkg/bytestream"
	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wrap32"
)

func TestSenderFirstPushProducesBareSyn(t *testing.T) {
	isn := wrap32.New(42)
	s := NewSender(1000, &isn)
	bs := bytestream.New(4096)

	s.Push(bs.Reader())
	msg := s.MaybeSend()
	if msg == nil {
		t.Fatal("MaybeSend() returned nil after Push with nothing outbound")
	}
	if !msg.SYN || len(msg.Payload) != 0 || msg.FIN {
		t.Fatalf("first segment = %+v, want a bare SYN", msg)
	}
	if msg.Seqno != isn {
		t.Fatalf("Seqno = %v, want isn %v", msg.Seqno, isn)
	}
}

func TestSenderWindowDefaultsToOneBeforeFirstReceiverMessage(t *testing.T) {
	isn := wrap32.New(0)
	s := NewSender(1000, &isn)
	bs := bytestream.New(4096)
	bs.Writer().Push([]byte("hello world"))

	s.Push(bs.Reader())
	msg := s.MaybeSend() // the SYN consumes (most of) the window-of-1 budget
	if msg == nil || !msg.SYN {
		t.Fatalf("expected the SYN while the effective window is 1, got %+v", msg)
	}
	if next := s.MaybeSend(); next != nil {
		t.Fatalf("expected no further segment until the SYN is acked, got %+v", next)
	}
}

func TestSenderSendsDataOnceWindowOpens(t *testing.T) {
	isn := wrap32.New(0)
	s := NewSender(1000, &isn)
	empty := bytestream.New(4096)

	s.Push(empty.Reader()) // bare SYN, nothing outbound yet
	s.MaybeSend()          // drain it

	ackno := isn.Add(1)
	s.Receive(tcpseg.ReceiverMessage{WindowSize: 100, Ackno: &ackno})

	bs := bytestream.New(4096)
	bs.Writer().Push([]byte("hello"))
	s.Push(bs.Reader())

	msg := s.MaybeSend()
	if msg == nil || string(msg.Payload) != "hello" {
		t.Fatalf("data segment = %+v, want payload %q", msg, "hello")
	}
}

func TestSenderRetransmitsOnTimeoutAndDoublesRTO(t *testing.T) {
	isn := wrap32.New(0)
	s := NewSender(1000, &isn)
	bs := bytestream.New(4096)

	s.Push(bs.Reader())
	s.MaybeSend() // starts the timer

	s.Receive(tcpseg.ReceiverMessage{WindowSize: 100}) // peer responds, window open
	s.Tick(999)
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatal("retransmission fired before RTO elapsed")
	}
	s.Tick(1)
	if s.ConsecutiveRetransmissions() != 1 {
		t.Fatalf("ConsecutiveRetransmissions() = %d, want 1 after RTO fires", s.ConsecutiveRetransmissions())
	}
	retx := s.MaybeSend()
	if retx == nil || !retx.SYN {
		t.Fatal("expected the SYN to be retransmitted")
	}

	s.Tick(2000) // doubled RTO should now be 2000ms
	if s.ConsecutiveRetransmissions() != 2 {
		t.Fatalf("ConsecutiveRetransmissions() = %d, want 2 after second RTO", s.ConsecutiveRetransmissions())
	}
}

func TestSenderZeroWindowDoesNotDoubleRTO(t *testing.T) {
	isn := wrap32.New(0)
	s := NewSender(1000, &isn)
	bs := bytestream.New(4096)

	s.Push(bs.Reader())
	s.MaybeSend()
	s.Receive(tcpseg.ReceiverMessage{WindowSize: 0})
	s.Tick(1000)

	if !s.ZeroWindowProbing() {
		t.Fatal("ZeroWindowProbing() = false after RTO fired with a zero window")
	}

	s.Tick(1000) // RTO left at 1000ms, so the timer fires again
	if s.ConsecutiveRetransmissions() != 2 {
		t.Fatalf("ConsecutiveRetransmissions() = %d, want 2 (RTO not doubled under a zero window)", s.ConsecutiveRetransmissions())
	}
}

func TestSenderAckRetiresOutstandingAndResetsRTO(t *testing.T) {
	isn := wrap32.New(0)
	s := NewSender(1000, &isn)
	bs := bytestream.New(4096)

	s.Push(bs.Reader())
	s.MaybeSend()
	s.Tick(1000) // force a retransmission, bumping RTO and retx count

	ackno := isn.Add(1)
	s.Receive(tcpseg.ReceiverMessage{WindowSize: 100, Ackno: &ackno})

	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("ConsecutiveRetransmissions() = %d after new data acked, want 0", s.ConsecutiveRetransmissions())
	}
	if s.SequenceNumbersInFlight() != 0 {
		t.Fatalf("SequenceNumbersInFlight() = %d after full ack, want 0", s.SequenceNumbersInFlight())
	}
}

func TestSenderStateTransitions(t *testing.T) {
	isn := wrap32.New(0)
	s := NewSender(1000, &isn)
	bs := bytestream.New(4096)

	if s.State() != StateClosed {
		t.Fatalf("State() = %v before anything is pushed, want CLOSED", s.State())
	}
	s.Push(bs.Reader())
	if s.State() != StateSynSent {
		t.Fatalf("State() = %v after SYN pushed, want SYN_SENT", s.State())
	}

	ackno := isn.Add(1)
	s.Receive(tcpseg.ReceiverMessage{WindowSize: 100, Ackno: &ackno})
	if s.State() != StateEstablished {
		t.Fatalf("State() = %v after SYN acked, want ESTABLISHED", s.State())
	}

	bs.Writer().Close()
	s.Push(bs.Reader())
	if s.State() != StateFinSent {
		t.Fatalf("State() = %v after FIN pushed, want FIN_SENT", s.State())
	}

	finAckno := ackno.Add(1)
	s.Receive(tcpseg.ReceiverMessage{WindowSize: 100, Ackno: &finAckno})
	if s.State() != StateDone {
		t.Fatalf("State() = %v after FIN acked, want DONE", s.State())
	}
	if s.Active() {
		t.Fatal("Active() = true in DONE state")
	}
}
