package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Control commands are ASCII lines of the form TYPE:VALUE terminated by
// '\n', sent receiver -> sender. Malformed lines are dropped, never fatal.

type CommandKind string

const (
	CmdZoom     CommandKind = "ZOOM"
	CmdExposure CommandKind = "EXPOSURE"
	CmdFocus    CommandKind = "FOCUS"
)

// Nominal control ranges. Exposure is clamped a second time against the
// device's advertised compensation range when applied.
const (
	ZoomMin     = 1.0
	ZoomMax     = 10.0
	ExposureMin = -12
	ExposureMax = 12
	FocusMin    = 0.0
	FocusMax    = 1.0
)

// Reset defaults sent by the receiver's reset action.
const (
	ZoomDefault     = 1.0
	ExposureDefault = 0
	FocusDefault    = 0.5
)

type Command struct {
	Kind     CommandKind
	Zoom     float64
	Exposure int
	Focus    float64
}

// ParseCommand parses a single line (without the trailing newline).
// Out-of-range values are clamped, never rejected; a false return means
// the line is malformed and must be ignored.
func ParseCommand(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	idx := strings.IndexByte(line, ':')
	if idx <= 0 || idx == len(line)-1 {
		return Command{}, false
	}
	kind := CommandKind(strings.ToUpper(line[:idx]))
	value := line[idx+1:]
	switch kind {
	case CmdZoom:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Command{}, false
		}
		return Command{Kind: CmdZoom, Zoom: ClampFloat(v, ZoomMin, ZoomMax)}, true
	case CmdExposure:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Command{}, false
		}
		return Command{Kind: CmdExposure, Exposure: ClampInt(int(v), ExposureMin, ExposureMax)}, true
	case CmdFocus:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Command{}, false
		}
		return Command{Kind: CmdFocus, Focus: ClampFloat(v, FocusMin, FocusMax)}, true
	}
	return Command{}, false
}

// Format renders the command as a wire line including the newline.
func (c Command) Format() string {
	switch c.Kind {
	case CmdZoom:
		return fmt.Sprintf("ZOOM:%.2f\n", c.Zoom)
	case CmdExposure:
		return fmt.Sprintf("EXPOSURE:%d\n", c.Exposure)
	case CmdFocus:
		return fmt.Sprintf("FOCUS:%.2f\n", c.Focus)
	}
	return ""
}

func ClampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func ClampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// LineBuffer reassembles '\n'-terminated lines from arbitrarily chunked
// reads. Bytes after the last newline stay pending until the next Feed.
type LineBuffer struct {
	pending bytes.Buffer
}

// Feed appends a chunk and returns every complete line it closed off,
// newline stripped.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.pending.Write(chunk)
	var lines []string
	for {
		data := b.pending.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return lines
		}
		lines = append(lines, string(data[:idx]))
		b.pending.Next(idx + 1)
	}
}

// Pending reports how many bytes await a terminating newline.
func (b *LineBuffer) Pending() int {
	return b.pending.Len()
}
