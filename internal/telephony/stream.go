package telephony

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// PBX manager streams deliver events as blank-line-delimited "Key: Value"
// frames (the Asterisk AMI wire shape). Frame and FrameReader decode that
// stream; pbxEventFromFields turns a decoded frame into the same
// NormalizedCallEvent the HTTP callback path produces.

// Frame is one decoded event block as an ordered set of key-value pairs.
type Frame struct {
	pairs []framePair
}

type framePair struct {
	Key   string
	Value string
}

// NewFrame builds a Frame from alternating key/value strings. Test helper.
func NewFrame(kvs ...string) Frame {
	f := Frame{}
	for i := 0; i+1 < len(kvs); i += 2 {
		f.pairs = append(f.pairs, framePair{Key: kvs[i], Value: kvs[i+1]})
	}
	return f
}

// Get returns the value for key, or empty string if absent.
func (f Frame) Get(key string) string {
	for _, p := range f.pairs {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Event returns the frame's event name (the Event header).
func (f Frame) Event() string { return f.Get("Event") }

// GetInt returns the integer value for key, or 0 if missing/unparseable.
func (f Frame) GetInt(key string) int {
	v, _ := strconv.Atoi(f.Get(key))
	return v
}

// IsResponse reports whether the frame is a command response, not an event.
func (f Frame) IsResponse() bool { return f.Get("Response") != "" }

// FrameReader reads a PBX manager byte stream and emits Frames.
type FrameReader struct {
	scanner *bufio.Scanner
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{scanner: bufio.NewScanner(r)}
}

// Next reads the next frame. Returns false at end of stream.
func (r *FrameReader) Next() (Frame, bool) {
	var pairs []framePair

	for r.scanner.Scan() {
		line := strings.TrimRight(r.scanner.Text(), "\r")

		// Blank line terminates a frame.
		if line == "" {
			if len(pairs) > 0 {
				return Frame{pairs: pairs}, true
			}
			continue
		}

		idx := strings.Index(line, ": ")
		if idx < 0 {
			// Banner and prompt lines carry no ": "; skip them between frames.
			if len(pairs) == 0 {
				continue
			}
			pairs = append(pairs, framePair{Key: "", Value: line})
			continue
		}
		pairs = append(pairs, framePair{Key: line[:idx], Value: line[idx+2:]})
	}

	if len(pairs) > 0 {
		return Frame{pairs: pairs}, true
	}
	return Frame{}, false
}

// ReadAll drains the stream and returns every frame.
func (r *FrameReader) ReadAll() []Frame {
	var frames []Frame
	for {
		f, ok := r.Next()
		if !ok {
			return frames
		}
		frames = append(frames, f)
	}
}

// ParseFrames decodes all frames from a byte slice.
func ParseFrames(data []byte) []Frame {
	return NewFrameReader(strings.NewReader(string(data))).ReadAll()
}
