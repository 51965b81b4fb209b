package prtp

import (
	"testing"
	"time"
)

func TestReceiverDeliversInOrder(t *testing.T) {
	ep, peer := newFakeLink(0)
	cfg := testConfig()
	r := NewReceiver(cfg, ep, fakeAddr("client"), 0, 1, nil)

	p0 := Packet{SeqNum: 0, Flags: FlagACK, Data: []byte("ab")}
	p1 := Packet{SeqNum: 1, Flags: FlagACK, Data: []byte("cd")}
	r.HandleSegment(&p0)
	r.HandleSegment(&p1)

	if string(r.delivered) != "abcd" {
		t.Fatalf("delivered = %q, want %q", r.delivered, "abcd")
	}
	if r.expectedSeq != 2 {
		t.Fatalf("expectedSeq = %d, want 2", r.expectedSeq)
	}

	// drain the two ACKs sent to the peer; both must carry the
	// receiver's own post-handshake sequence number, not zero.
	for i := 0; i < 2; i++ {
		buf, _, err := peer.Recv(200 * time.Millisecond)
		if err != nil {
			t.Fatalf("recv ack %d: %v", i, err)
		}
		ack, ok := Deserialize(buf)
		if !ok {
			t.Fatalf("ack %d failed to deserialize", i)
		}
		if ack.SeqNum != 1 {
			t.Fatalf("ack %d SeqNum = %d, want 1 (receiver's localSeq)", i, ack.SeqNum)
		}
	}
}

func TestReceiverReAcksDuplicateWithItsOwnSeq(t *testing.T) {
	ep, peer := newFakeLink(0)
	cfg := testConfig()
	r := NewReceiver(cfg, ep, fakeAddr("client"), 0, 0, nil)

	p0 := Packet{SeqNum: 0, Flags: FlagACK, Data: []byte("x")}
	r.HandleSegment(&p0)
	if _, _, err := peer.Recv(200*time.Millisecond); err != nil {
		t.Fatalf("recv first ack: %v", err)
	}

	// re-deliver the same (now-duplicate) segment
	r.HandleSegment(&p0)

	buf, _, err := peer.Recv(200*time.Millisecond)
	if err != nil {
		t.Fatalf("recv dup ack: %v", err)
	}
	ack, ok := Deserialize(buf)
	if !ok {
		t.Fatal("dup ack failed to deserialize")
	}
	if ack.AckNum != 0 {
		t.Fatalf("dup ack AckNum = %d, want 0 (the duplicate's own seq)", ack.AckNum)
	}
	if len(r.delivered) != 1 {
		t.Fatalf("delivered length = %d, want 1 (duplicate must not be re-applied)", len(r.delivered))
	}
}

func TestReceiverAcksGapWithLastInOrder(t *testing.T) {
	ep, peer := newFakeLink(0)
	cfg := testConfig()
	r := NewReceiver(cfg, ep, fakeAddr("client"), 0, 0, nil)

	p0 := Packet{SeqNum: 0, Flags: FlagACK, Data: []byte("x")}
	r.HandleSegment(&p0)
	if _, _, err := peer.Recv(200*time.Millisecond); err != nil {
		t.Fatalf("recv first ack: %v", err)
	}

	p2 := Packet{SeqNum: 2, Flags: FlagACK, Data: []byte("z")} // gap: seq 1 missing
	r.HandleSegment(&p2)

	buf, _, err := peer.Recv(200*time.Millisecond)
	if err != nil {
		t.Fatalf("recv gap ack: %v", err)
	}
	ack, ok := Deserialize(buf)
	if !ok {
		t.Fatal("gap ack failed to deserialize")
	}
	if ack.AckNum != 0 {
		t.Fatalf("gap ack AckNum = %d, want 0 (last in-order)", ack.AckNum)
	}
	if len(r.delivered) != 1 {
		t.Fatalf("delivered length = %d, want 1 (out-of-order segment must not be applied)", len(r.delivered))
	}
}
