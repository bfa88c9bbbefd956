package wire

import (
	"net"
	"net/netip"
	"testing"

	"vtcp/pkg/tcpseg"
	"vtcp/pkg/wrap32"
)

func TestIPv4EncodeDecodeRoundtrip(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")
	payload := []byte("hello router")

	raw, err := EncodeIPv4(src, dst, ProtocolTest, DefaultTTL, payload)
	if err != nil {
		t.Fatalf("EncodeIPv4: %v", err)
	}

	hdr, body, err := DecodeIPv4(raw)
	if err != nil {
		t.Fatalf("DecodeIPv4: %v", err)
	}
	if hdr.Src != src || hdr.Dst != dst {
		t.Fatalf("decoded src/dst = %s/%s, want %s/%s", hdr.Src, hdr.Dst, src, dst)
	}
	if hdr.TTL != DefaultTTL {
		t.Fatalf("TTL = %d, want %d", hdr.TTL, DefaultTTL)
	}
	if string(body) != string(payload) {
		t.Fatalf("payload = %q, want %q", body, payload)
	}
}

func TestPrefixLenMaskRoundtrip(t *testing.T) {
	for _, length := range []int{0, 1, 8, 16, 24, 31, 32} {
		mask := MaskForPrefixLen(length)
		if got := PrefixLenOfMask(mask); got != length {
			t.Errorf("PrefixLenOfMask(MaskForPrefixLen(%d)) = %d, want %d", length, got, length)
		}
	}
}

func TestTCPEncodeDecodeRoundtrip(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	dst := netip.MustParseAddr("10.0.0.2")
	ackno := wrap32.New(500)
	seg := tcpseg.Segment{
		Seqno:      wrap32.New(100),
		SYN:        true,
		ACK:        true,
		Ackno:      ackno,
		WindowSize: 1024,
		Payload:    []byte("payload"),
	}

	raw := EncodeTCP(seg, 1000, 2000, src, dst)
	decoded, srcPort, dstPort, err := DecodeTCP(raw)
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if srcPort != 1000 || dstPort != 2000 {
		t.Fatalf("ports = %d/%d, want 1000/2000", srcPort, dstPort)
	}
	if !decoded.SYN || !decoded.ACK || decoded.FIN {
		t.Fatalf("flags = SYN:%v ACK:%v FIN:%v, want SYN+ACK only", decoded.SYN, decoded.ACK, decoded.FIN)
	}
	if decoded.Seqno != seg.Seqno || decoded.Ackno != seg.Ackno {
		t.Fatalf("seqno/ackno = %v/%v, want %v/%v", decoded.Seqno, decoded.Ackno, seg.Seqno, seg.Ackno)
	}
	if string(decoded.Payload) != "payload" {
		t.Fatalf("payload = %q, want %q", decoded.Payload, "payload")
	}
}

func TestEthernetEncodeDecodeRoundtrip(t *testing.T) {
	src := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	dst := net.HardwareAddr{0x02, 0, 0, 0, 0, 2}
	raw := EncodeEthernet(dst, src, EtherTypeIPv4, []byte("payload"))

	frame, err := DecodeEthernet(raw)
	if err != nil {
		t.Fatalf("DecodeEthernet: %v", err)
	}
	if frame.Dst.String() != dst.String() || frame.Src.String() != src.String() {
		t.Fatalf("dst/src = %s/%s, want %s/%s", frame.Dst, frame.Src, dst, src)
	}
	if frame.EtherType != EtherTypeIPv4 {
		t.Fatalf("EtherType = %v, want %v", frame.EtherType, EtherTypeIPv4)
	}
	if string(frame.Payload) != "payload" {
		t.Fatalf("payload = %q, want %q", frame.Payload, "payload")
	}
}

func TestARPEncodeDecodeRoundtrip(t *testing.T) {
	senderMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
	targetMAC := net.HardwareAddr{0, 0, 0, 0, 0, 0}
	senderIP := netip.MustParseAddr("10.0.0.1")
	targetIP := netip.MustParseAddr("10.0.0.2")

	raw := EncodeARP(ARPRequest, senderMAC, senderIP, targetMAC, targetIP)
	pkt, err := DecodeARP(raw)
	if err != nil {
		t.Fatalf("DecodeARP: %v", err)
	}
	if pkt.Op != ARPRequest {
		t.Fatalf("Op = %v, want ARPRequest", pkt.Op)
	}
	if pkt.SenderIP != senderIP || pkt.TargetIP != targetIP {
		t.Fatalf("sender/target IP = %s/%s, want %s/%s", pkt.SenderIP, pkt.TargetIP, senderIP, targetIP)
	}
	if pkt.SenderMAC.String() != senderMAC.String() {
		t.Fatalf("SenderMAC = %s, want %s", pkt.SenderMAC, senderMAC)
	}
}
