package hl7

import (
	"strings"
	"time"
)

// Delimiters are the separators a message declares in its own header:
// the field separator is MSH-1 (the character right after "MSH"), and
// component/repetition/escape/subcomponent come positionally from the
// MSH-2 encoding characters.
type Delimiters struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	SubComponent byte
}

// DefaultDelimiters are the conventional HL7 v2 separators, used when a
// message does not declare its own (and for building ACKs from scratch).
var DefaultDelimiters = Delimiters{
	Field:        '|',
	Component:    '^',
	Repetition:   '~',
	Escape:       '\\',
	SubComponent: '&',
}

// Timestamp formats tried in order for MSH-7 and other TS fields.
// HL7 TS precision varies by sender; unparseable values resolve to the
// zero time rather than an error.
var timestampFormats = []string{
	"20060102150405.0000-0700",
	"20060102150405-0700",
	"20060102150405.0000",
	"20060102150405",
	"200601021504",
	"2006010215",
	"20060102",
}

// ParseTimestamp resolves an HL7 TS value against the ordered format
// list. Returns the zero time when no format matches.
func ParseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if ts, err := time.ParseInLocation(format, value, time.Local); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// Segment is one line of a message: a three-letter name and its fields.
// Fields are accessed 1-based by HL7 position with bounds checking; a
// missing field is the empty string, never an error.
type Segment struct {
	Name       string
	fields     []string
	delimiters Delimiters
}

// Field returns the field at the given HL7 position (1-based). For MSH,
// position 1 is the field separator itself and position 2 the encoding
// characters, per the standard's self-referential header numbering.
func (s *Segment) Field(index int) string {
	if index < 1 || index > len(s.fields) {
		return ""
	}
	return s.fields[index-1]
}

// Component returns component comp (1-based) of the field at index.
// A field with no component separator is its own first component.
func (s *Segment) Component(index, comp int) string {
	return pick(s.Field(index), s.delimiters.Component, comp)
}

// SubComponent returns subcomponent sub of component comp of the field
// at index, all 1-based.
func (s *Segment) SubComponent(index, comp, sub int) string {
	return pick(s.Component(index, comp), s.delimiters.SubComponent, sub)
}

// Repetitions splits the field at index on the repetition separator.
// A non-repeating field yields a single-element slice; an absent field
// yields nil.
func (s *Segment) Repetitions(index int) []string {
	value := s.Field(index)
	if value == "" {
		return nil
	}
	return strings.Split(value, string(s.delimiters.Repetition))
}

// FieldCount reports how many fields the segment carries.
func (s *Segment) FieldCount() int {
	return len(s.fields)
}

func pick(value string, sep byte, index int) string {
	if value == "" || index < 1 {
		return ""
	}
	parts := strings.Split(value, string(sep))
	if index > len(parts) {
		return ""
	}
	return parts[index-1]
}

// Message is a parsed HL7 v2 message. Immutable once built; all header
// accessors tolerate missing fields and return zero values.
type Message struct {
	Delimiters Delimiters
	segments   []Segment
	raw        string
}

// Raw returns the message text as received (without MLLP framing).
func (m *Message) Raw() string {
	return m.raw
}

// Segments returns all segments in wire order.
func (m *Message) Segments() []Segment {
	return m.segments
}

// Segment returns the first segment with the given name, or nil.
func (m *Message) Segment(name string) *Segment {
	for i := range m.segments {
		if m.segments[i].Name == name {
			return &m.segments[i]
		}
	}
	return nil
}

// SegmentsNamed returns every segment with the given name, in order.
func (m *Message) SegmentsNamed(name string) []*Segment {
	var out []*Segment
	for i := range m.segments {
		if m.segments[i].Name == name {
			out = append(out, &m.segments[i])
		}
	}
	return out
}

// Header returns the MSH segment. Parse guarantees it exists.
func (m *Message) Header() *Segment {
	return m.Segment("MSH")
}

// Type returns the message code from MSH-9 component 1 (e.g. "ADT"),
// or "unknown" when absent.
func (m *Message) Type() string {
	if v := m.Header().Component(9, 1); v != "" {
		return v
	}
	return "unknown"
}

// TriggerEvent returns the trigger event from MSH-9 component 2
// (e.g. "A02"), or "unknown" when absent.
func (m *Message) TriggerEvent() string {
	if v := m.Header().Component(9, 2); v != "" {
		return v
	}
	return "unknown"
}

// TypeAndTrigger returns "ADT^A02"-style routing keys.
func (m *Message) TypeAndTrigger() string {
	return m.Type() + "^" + m.TriggerEvent()
}

// ControlID returns MSH-10, or "" when absent.
func (m *Message) ControlID() string {
	return m.Header().Field(10)
}

// Timestamp returns MSH-7 resolved against the ordered format list,
// or the zero time when absent or unparseable.
func (m *Message) Timestamp() time.Time {
	return ParseTimestamp(m.Header().Field(7))
}

// SendingApp and friends expose the header addressing fields used when
// building the ACK reply.
func (m *Message) SendingApp() string        { return m.Header().Field(3) }
func (m *Message) SendingFacility() string   { return m.Header().Field(4) }
func (m *Message) ReceivingApp() string      { return m.Header().Field(5) }
func (m *Message) ReceivingFacility() string { return m.Header().Field(6) }
