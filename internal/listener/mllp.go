package listener

import (
	"bufio"
	"fmt"
	"io"
)

// MLLP block framing: one message between a start byte and a two-byte
// end sequence, many blocks per TCP connection.
const (
	startBlock byte = 0x0b
	endBlock   byte = 0x1c
	endBlockCR byte = 0x0d
)

// errFrameTooLarge marks a peer exceeding the configured frame bound;
// the connection is closed without reaching the codec.
type errFrameTooLarge struct {
	limit int
}

func (e errFrameTooLarge) Error() string {
	return fmt.Sprintf("frame exceeds %d bytes", e.limit)
}

// readFrame extracts the next framed block from the stream, discarding
// any bytes before the start marker. Returns the unframed payload.
func readFrame(r *bufio.Reader, maxBytes int) ([]byte, error) {
	// Skip to the start-of-block marker.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == startBlock {
			break
		}
	}

	payload := make([]byte, 0, 512)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if b == endBlock {
			cr, err := r.ReadByte()
			if err != nil && err != io.EOF {
				return nil, err
			}
			if err == nil && cr != endBlockCR {
				return nil, fmt.Errorf("malformed end sequence: 0x1c followed by %#02x", cr)
			}
			return payload, nil
		}
		if len(payload) >= maxBytes {
			return nil, errFrameTooLarge{limit: maxBytes}
		}
		payload = append(payload, b)
	}
}

// writeFrame wraps a payload in MLLP framing and writes it out.
func writeFrame(w io.Writer, payload []byte) error {
	framed := make([]byte, 0, len(payload)+3)
	framed = append(framed, startBlock)
	framed = append(framed, payload...)
	framed = append(framed, endBlock, endBlockCR)
	_, err := w.Write(framed)
	return err
}
