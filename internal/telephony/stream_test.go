package telephony

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

const managerStreamSample = "Asterisk Call Manager/5.0.2\r\n" +
	"Response: Success\r\n" +
	"Message: Authentication accepted\r\n" +
	"\r\n" +
	"Event: Newchannel\r\n" +
	"Uniqueid: 1717243200.16\r\n" +
	"CallerIDNum: +15550100\r\n" +
	"Exten: +15550200\r\n" +
	"\r\n" +
	"Event: Hangup\r\n" +
	"Uniqueid: 1717243200.16\r\n" +
	"Cause: 16\r\n" +
	"\r\n"

func TestFrameReaderParsesStream(t *testing.T) {
	r := NewFrameReader(strings.NewReader(managerStreamSample))
	frames := r.ReadAll()
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if !frames[0].IsResponse() {
		t.Fatalf("first frame should be a response: %+v", frames[0])
	}
	if frames[1].Event() != "Newchannel" || frames[1].Get("Uniqueid") != "1717243200.16" {
		t.Fatalf("second frame wrong: %+v", frames[1])
	}
	if frames[2].Event() != "Hangup" || frames[2].GetInt("Cause") != 16 {
		t.Fatalf("third frame wrong: %+v", frames[2])
	}
}

func TestFrameReaderHandlesBareNewlines(t *testing.T) {
	input := "Event: Newstate\nChannelStateDesc: Up\nUniqueid: u1\n\n"
	frames := ParseFrames([]byte(input))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Get("ChannelStateDesc") != "Up" {
		t.Fatalf("frame = %+v", frames[0])
	}
}

func TestFrameAccessors(t *testing.T) {
	f := NewFrame("Event", "Newstate", "Duration", "12", "Empty", "")
	if f.Event() != "Newstate" {
		t.Fatalf("Event() = %q", f.Event())
	}
	if f.Get("Missing") != "" || f.Get("Empty") != "" {
		t.Fatalf("missing keys should read empty")
	}
	if f.GetInt("Duration") != 12 || f.GetInt("Event") != 0 {
		t.Fatalf("GetInt wrong")
	}
	if f.IsResponse() {
		t.Fatalf("event frame misread as response")
	}
}

func TestStreamRunnerForwardsEvents(t *testing.T) {
	client, server := net.Pipe()

	events := make(chan NormalizedCallEvent, 8)
	runner := &StreamRunner{
		Adapter: NewPBXAdapter(),
		Config: ProviderConfig{
			TenantID: "tenant-1",
			Type:     ProviderSIPPBX,
			Config:   map[string]string{"stream_addr": "pbx.internal:5038"},
		},
		Dial: func(ctx context.Context, addr string) (net.Conn, error) {
			if addr != "pbx.internal:5038" {
				t.Errorf("dial addr = %q", addr)
			}
			return client, nil
		},
		Sink: func(_ context.Context, ev NormalizedCallEvent) error {
			events <- ev
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	go func() {
		server.Write([]byte(managerStreamSample))
	}()

	// The response frame is skipped; the two events arrive in order.
	for i, want := range []EventType{EventIncoming, EventEnded} {
		select {
		case ev := <-events:
			if ev.EventType != want {
				t.Fatalf("event %d = %q, want %q", i, ev.EventType, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	cancel()
	server.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}

func TestStreamRunnerRequiresAddr(t *testing.T) {
	runner := &StreamRunner{
		Adapter: NewPBXAdapter(),
		Config:  ProviderConfig{TenantID: "tenant-1", Config: map[string]string{}},
	}
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected error for missing stream_addr")
	}
}
