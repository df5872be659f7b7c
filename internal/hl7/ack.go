package hl7

import (
	"strings"
	"time"
)

// AckCode is the three-value acknowledgment outcome carried in MSA-1.
type AckCode string

const (
	AckAccept AckCode = "AA" // application accept
	AckError  AckCode = "AE" // application error
	AckReject AckCode = "AR" // application reject
)

// BuildAck builds the acknowledgment reply for a received message:
// an MSH with sender and receiver swapped plus an MSA carrying the
// outcome code and the echoed control id.
//
// msg may be nil (the inbound block never parsed); the reply is then
// built from defaults so the peer still gets a wire-level answer, with
// the control id left empty.
func BuildAck(msg *Message, code AckCode, receivingApp, receivingFacility string) []byte {
	delims := DefaultDelimiters
	controlID := ""
	sendingApp := receivingApp
	sendingFacility := receivingFacility
	replyToApp := ""
	replyToFacility := ""
	if msg != nil {
		delims = msg.Delimiters
		controlID = msg.ControlID()
		replyToApp = msg.SendingApp()
		replyToFacility = msg.SendingFacility()
		if app := msg.ReceivingApp(); app != "" {
			sendingApp = app
		}
		if fac := msg.ReceivingFacility(); fac != "" {
			sendingFacility = fac
		}
	}

	fs := string(delims.Field)
	encoding := string([]byte{delims.Component, delims.Repetition, delims.Escape, delims.SubComponent})
	now := time.Now().Format("20060102150405")

	var b strings.Builder
	b.WriteString("MSH" + fs + encoding)
	for _, field := range []string{
		sendingApp, sendingFacility, replyToApp, replyToFacility,
		now, "", "ACK", controlID, "P", "2.3",
	} {
		b.WriteString(fs)
		b.WriteString(field)
	}
	b.WriteString("\r")
	b.WriteString("MSA" + fs + string(code) + fs + controlID)
	b.WriteString("\r")
	return []byte(b.String())
}
