package hl7

import (
	"fmt"
	"strings"
)

// Parse converts one unframed message block into a Message.
//
// Hard failures are limited to an empty block and a first segment that
// is not MSH; everything else degrades to empty fields at access time.
func Parse(data []byte) (*Message, error) {
	raw := strings.Trim(string(data), "\r\n \x00")
	if raw == "" {
		return nil, fmt.Errorf("empty message block")
	}

	lines := splitSegments(raw)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty message block")
	}
	if !strings.HasPrefix(lines[0], "MSH") {
		return nil, fmt.Errorf("first segment is %q, want MSH", segmentName(lines[0]))
	}

	delims := declaredDelimiters(lines[0])

	msg := &Message{
		Delimiters: delims,
		raw:        raw,
	}
	for _, line := range lines {
		if len(line) < 3 {
			continue
		}
		msg.segments = append(msg.segments, parseSegment(line, delims))
	}
	return msg, nil
}

// declaredDelimiters reads MSH-1 and MSH-2 off the raw header line.
// "MSH|^~\&|..." → field '|', component '^', repetition '~', escape
// '\', subcomponent '&'. Short or absent declarations fall back to the
// defaults position by position.
func declaredDelimiters(header string) Delimiters {
	delims := DefaultDelimiters
	if len(header) < 4 {
		return delims
	}
	delims.Field = header[3]

	// MSH-2 runs from the character after the field separator up to the
	// next field separator.
	encoding := header[4:]
	if idx := strings.IndexByte(encoding, delims.Field); idx >= 0 {
		encoding = encoding[:idx]
	}
	if len(encoding) > 0 {
		delims.Component = encoding[0]
	}
	if len(encoding) > 1 {
		delims.Repetition = encoding[1]
	}
	if len(encoding) > 2 {
		delims.Escape = encoding[2]
	}
	if len(encoding) > 3 {
		delims.SubComponent = encoding[3]
	}
	return delims
}

// parseSegment splits one line into positional fields. MSH is
// special-cased: the field separator itself is MSH-1 and the encoding
// characters are MSH-2, so the split parts shift by one position
// relative to every other segment.
func parseSegment(line string, delims Delimiters) Segment {
	parts := strings.Split(line, string(delims.Field))
	seg := Segment{
		Name:       segmentName(line),
		delimiters: delims,
	}
	if seg.Name == "MSH" {
		seg.fields = append([]string{string(delims.Field)}, parts[1:]...)
	} else {
		seg.fields = parts[1:]
	}
	return seg
}

func splitSegments(raw string) []string {
	var lines []string
	for _, line := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func segmentName(line string) string {
	if len(line) < 3 {
		return line
	}
	return line[:3]
}
