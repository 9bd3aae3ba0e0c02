// Package wire implements the MeshCore serial wire protocols behind the
// bridge.Codec interface. All decoders follow the same policy: malformed
// input is absorbed locally, the offending unit is discarded, and decoding
// resumes at the next unit boundary.
package wire

import (
	"fmt"
	"strings"

	"github.com/akitamesh/meshbridge/pkg/bridge"
)

// ForName returns the codec registered under the given protocol name. The
// set of protocols is fixed at compile time; an unknown name is a
// configuration error.
func ForName(name string) (bridge.Codec, error) {
	switch strings.ToLower(name) {
	case "json_newline":
		return JSONLine{}, nil
	case "companion_frame":
		return CompanionFrame{}, nil
	case "record_newline":
		return RecordLine{}, nil
	default:
		return nil, fmt.Errorf("unsupported meshcore protocol %q", name)
	}
}

// maxLineLen bounds how many bytes a line-based decoder will buffer while
// waiting for a delimiter. A stream that exceeds it without producing a
// newline is discarded wholesale so a broken peer cannot grow memory
// without bound.
const maxLineLen = 64 * 1024

// lineBuffer accumulates raw bytes and splits them on newline boundaries.
type lineBuffer struct {
	buf []byte
}

func (lb *lineBuffer) feed(p []byte) {
	lb.buf = append(lb.buf, p...)
	if len(lb.buf) > maxLineLen {
		lb.buf = lb.buf[:0]
	}
}

// nextLine pops the next complete line, without its trailing newline.
func (lb *lineBuffer) nextLine() ([]byte, bool) {
	for i, b := range lb.buf {
		if b != '\n' {
			continue
		}
		line := make([]byte, i)
		copy(line, lb.buf[:i])
		lb.buf = lb.buf[i+1:]
		return line, true
	}
	return nil, false
}
