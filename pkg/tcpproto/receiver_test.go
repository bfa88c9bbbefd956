package tcpproto

import (
	"testing"

	"vtcp/pkg/bytestream"
	"vtcp/pkg/reassembler"
	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wrap32"
)

func TestReceiverIgnoresSegmentsBeforeSyn(t *testing.T) {
	r := NewReceiver()
	re := reassembler.New()
	bs := bytestream.New(4096)

	r.Receive(tcpseg.SenderMessage{Seqno: wrap32.New(5), Payload: []byte("hi")}, re, bs.Writer())
	if bs.Reader().BytesBuffered() != 0 {
		t.Fatal("data delivered before a SYN was ever seen")
	}
	if r.Connected() {
		t.Fatal("Connected() true before SYN")
	}
}

func TestReceiverSynEstablishesAndAcksIsnPlusOne(t *testing.T) {
	r := NewReceiver()
	re := reassembler.New()
	bs := bytestream.New(4096)
	isn := wrap32.New(1000)

	r.Receive(tcpseg.SenderMessage{Seqno: isn, SYN: true}, re, bs.Writer())
	if !r.Connected() {
		t.Fatal("Connected() false after SYN")
	}
	msg := r.Send(bs.Writer())
	if msg.Ackno == nil || *msg.Ackno != isn.Add(1) {
		t.Fatalf("ackno = %v, want isn+1 = %v", msg.Ackno, isn.Add(1))
	}
}

func TestReceiverAckIncludesFinByte(t *testing.T) {
	r := NewReceiver()
	re := reassembler.New()
	bs := bytestream.New(4096)
	isn := wrap32.New(0)

	r.Receive(tcpseg.SenderMessage{Seqno: isn, SYN: true}, re, bs.Writer())
	r.Receive(tcpseg.SenderMessage{Seqno: isn.Add(1), Payload: []byte("ab"), FIN: true}, re, bs.Writer())

	msg := r.Send(bs.Writer())
	want := isn.Add(1 + 2 + 1) // isn+1 (syn) + 2 data bytes + 1 fin
	if msg.Ackno == nil || *msg.Ackno != want {
		t.Fatalf("ackno = %v, want %v", msg.Ackno, want)
	}
	if !r.FinSeen() {
		t.Fatal("FinSeen() false after a FIN segment")
	}
}

func TestReceiverWindowReflectsAvailableCapacity(t *testing.T) {
	r := NewReceiver()
	re := reassembler.New()
	bs := bytestream.New(10)
	isn := wrap32.New(0)

	r.Receive(tcpseg.SenderMessage{Seqno: isn, SYN: true, Payload: []byte("abc")}, re, bs.Writer())
	msg := r.Send(bs.Writer())
	if msg.WindowSize != 7 {
		t.Fatalf("WindowSize = %d, want 7", msg.WindowSize)
	}
}

func TestReceiverOutOfOrderSegmentHeldUntilGapCloses(t *testing.T) {
	r := NewReceiver()
	re := reassembler.New()
	bs := bytestream.New(4096)
	isn := wrap32.New(0)

	r.Receive(tcpseg.SenderMessage{Seqno: isn, SYN: true}, re, bs.Writer())
	r.Receive(tcpseg.SenderMessage{Seqno: isn.Add(4), Payload: []byte("def")}, re, bs.Writer())
	if bs.Reader().BytesBuffered() != 0 {
		t.Fatal("out-of-order payload delivered before the gap closed")
	}
	r.Receive(tcpseg.SenderMessage{Seqno: isn.Add(1), Payload: []byte("abc")}, re, bs.Writer())
	if got := string(bs.Reader().Peek()); got != "abcdef" {
		t.Fatalf("Peek() = %q, want %q", got, "abcdef")
	}
}
