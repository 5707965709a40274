package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"CamLink/modules/protocol"
)

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return NewConn(local), remote
}

func TestConnSendFrame(t *testing.T) {
	conn, remote := pipeConn(t)
	payload := bytes.Repeat([]byte{0xAB}, 10000)

	done := make(chan []byte, 1)
	go func() {
		frame, err := protocol.ReadFrame(bufio.NewReader(remote))
		if err != nil {
			close(done)
			return
		}
		done <- frame
	}()
	if err := conn.SendFrame(payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, ok := <-done
	if !ok || !bytes.Equal(got, payload) {
		t.Fatalf("remote read mismatch (ok=%v, %d bytes)", ok, len(got))
	}
	frames, sent := conn.Stats()
	if frames != 1 || sent != uint64(len(payload)+4) {
		t.Fatalf("stats = %d frames / %d bytes", frames, sent)
	}
}

// Concurrent frame writers must never interleave: every frame on the
// wire has to parse back intact.
func TestConnConcurrentWritesStayAtomic(t *testing.T) {
	conn, remote := pipeConn(t)

	const writers, perWriter = 8, 20
	got := make(chan byte, writers*perWriter)
	go func() {
		r := bufio.NewReader(remote)
		for i := 0; i < writers*perWriter; i++ {
			frame, err := protocol.ReadFrame(r)
			if err != nil {
				close(got)
				return
			}
			// a torn write would corrupt the uniform fill
			for _, b := range frame[1:] {
				if b != frame[0] {
					close(got)
					return
				}
			}
			got <- frame[0]
		}
		close(got)
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{id}, 500)
			for i := 0; i < perWriter; i++ {
				if err := conn.SendFrame(payload); err != nil {
					return
				}
			}
		}(byte(w + 1))
	}
	wg.Wait()

	counts := make(map[byte]int)
	for id := range got {
		counts[id]++
	}
	for w := 0; w < writers; w++ {
		if counts[byte(w+1)] != perWriter {
			t.Fatalf("writer %d: %d intact frames, want %d", w+1, counts[byte(w+1)], perWriter)
		}
	}
}

// Control writes share the write lock with frame writes: with both kinds
// in flight, every message on the wire must still parse back whole. The
// reader tells them apart by the first byte of each message, which is
// 0x00 for a frame header here and 'Z' for the control line.
func TestConnFrameAndControlWritesDoNotInterleave(t *testing.T) {
	conn, remote := pipeConn(t)

	const (
		frameWriters = 4
		framesEach   = 25
		controlSends = 50
	)
	const controlLine = "ZOOM:2.50\n"
	totalMessages := frameWriters*framesEach + controlSends

	type tally struct {
		frames, controls int
		err              error
	}
	result := make(chan tally, 1)
	go func() {
		r := bufio.NewReader(remote)
		var got tally
		for got.frames+got.controls < totalMessages {
			head, err := r.Peek(1)
			if err != nil {
				got.err = err
				break
			}
			if head[0] == 'Z' {
				line, err := r.ReadString('\n')
				if err != nil || line != controlLine {
					got.err = fmt.Errorf("torn control line %q: %v", line, err)
					break
				}
				got.controls++
				continue
			}
			frame, err := protocol.ReadFrame(r)
			if err != nil {
				got.err = err
				break
			}
			for _, b := range frame[1:] {
				if b != frame[0] {
					got.err = fmt.Errorf("torn frame payload")
					break
				}
			}
			if got.err != nil {
				break
			}
			got.frames++
		}
		result <- got
	}()

	var wg sync.WaitGroup
	for w := 0; w < frameWriters; w++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{id}, 300)
			for i := 0; i < framesEach; i++ {
				if err := conn.SendFrame(payload); err != nil {
					return
				}
			}
		}(byte(w + 1))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < controlSends; i++ {
			if err := conn.SendControl(controlLine); err != nil {
				return
			}
		}
	}()
	wg.Wait()

	got := <-result
	if got.err != nil {
		t.Fatalf("wire corrupted: %v", got.err)
	}
	if got.frames != frameWriters*framesEach || got.controls != controlSends {
		t.Fatalf("read %d frames / %d control lines, want %d / %d",
			got.frames, got.controls, frameWriters*framesEach, controlSends)
	}
}

func TestConnReadControlLine(t *testing.T) {
	conn, remote := pipeConn(t)

	// nothing inbound: poll returns no line, no error
	if line, ok, err := conn.ReadControlLine(); ok || err != nil {
		t.Fatalf("idle poll: line=%q ok=%v err=%v", line, ok, err)
	}

	// a line split across writes only surfaces once complete
	go remote.Write([]byte("ZOOM:"))
	time.Sleep(10 * time.Millisecond)
	if line, ok, err := conn.ReadControlLine(); ok || err != nil {
		t.Fatalf("partial line surfaced early: line=%q ok=%v err=%v", line, ok, err)
	}
	go remote.Write([]byte("5\nEXPOSURE:2\n"))
	deadline := time.Now().Add(time.Second)
	var lines []string
	for len(lines) < 2 && time.Now().Before(deadline) {
		line, ok, err := conn.ReadControlLine()
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if ok {
			lines = append(lines, line)
		}
	}
	if len(lines) != 2 || lines[0] != "ZOOM:5" || lines[1] != "EXPOSURE:2" {
		t.Fatalf("got %v", lines)
	}
}

func TestConnCloseIdempotent(t *testing.T) {
	conn, _ := pipeConn(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := conn.SendFrame([]byte{1}); err == nil {
		t.Fatalf("send after close must fail")
	}
}
