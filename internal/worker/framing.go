// Package worker implements the worker child of spec §4.6: length-prefixed
// framing over the controller socket pair, one session at a time, and
// the connected-mode keepalive loop. Grounded on the teacher's
// stdio_transport.go for the "read fixed header, then read payload"
// shape, generalized from newline-delimited JSON-RPC framing to the
// fixed 12-byte decimal length prefix spec §4.5/§9 standardizes on.
package worker

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SizePad is the fixed width of the ASCII decimal length header on
// controller<->worker frames (spec §4.5, §9).
const SizePad = 12

// WriteFrame writes payload length-prefixed: SizePad space-padded
// decimal digits, right-justified, then the raw bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("%*d", SizePad, len(payload))
	if len(header) > SizePad {
		return errors.Errorf("worker: payload length %d exceeds %d-digit frame header", len(payload), SizePad)
	}
	if _, err := io.WriteString(w, header); err != nil {
		return errors.Wrap(err, "worker: write frame header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "worker: write frame payload")
	}
	return nil
}

// ReadFrame blocking-reads exactly SizePad header bytes, then reads the
// declared payload length (spec §4.6 "Blocking-read the SIZE_PAD-prefixed
// byte count; then read remaining bytes").
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, SizePad)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(header)))
	if err != nil {
		return nil, errors.Wrap(err, "worker: parse frame header")
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "worker: read frame payload")
	}
	return payload, nil
}

// WritePID right-justifies pid into SizePad bytes for the status socket
// (spec §4.6 step 5).
func WritePID(w io.Writer, pid int) error {
	header := fmt.Sprintf("%*d", SizePad, pid)
	_, err := io.WriteString(w, header)
	return err
}

// ReadPID reads exactly SizePad bytes and parses them as a pid.
func ReadPID(r io.Reader) (int, error) {
	buf := make([]byte, SizePad)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(buf)))
}
