package converter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownPartner is used when a plain-text message names no partner.
const UnknownPartner = "UNKNOWN"

// ErrInvalidMessage is wrapped by every message parsing failure.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a raw inbound document as delivered by a transport.
type Message struct {
	// Value is the payload: either a JSON envelope or the document text.
	Value []byte

	// Key is the transport key; for plain-text payloads it is the partner.
	Key string

	// Headers carry optional partnerId and fileName for plain-text payloads.
	Headers map[string]string

	// Source names the transport and ends generated file names.
	Source string
}

type envelope struct {
	Content   *string `json:"content"`
	PartnerID *string `json:"partnerId"`
	FileName  *string `json:"fileName"`
}

// ParseMessage turns a raw message into a Document for ediType.
//
// A payload starting with "{" must be a JSON envelope with non-empty
// content and partnerId. Anything else is the document text itself, with
// the partner taken from the key, then the partnerId header, then
// UnknownPartner. A missing file name is generated as
// <partner>_<type>.<unix millis>.<source>.
func ParseMessage(msg Message, ediType string, now time.Time) (Document, error) {
	value := string(msg.Value)

	var doc Document
	if strings.HasPrefix(strings.TrimSpace(value), "{") {
		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			return Document{}, fmt.Errorf("%w: malformed JSON envelope: %v", ErrInvalidMessage, err)
		}
		doc.Content = deref(env.Content)
		doc.PartnerID = deref(env.PartnerID)
		doc.FileName = deref(env.FileName)

		if doc.Content == "" {
			return Document{}, fmt.Errorf("%w: missing required field: content", ErrInvalidMessage)
		}
		if doc.PartnerID == "" {
			return Document{}, fmt.Errorf("%w: missing required field: partnerId", ErrInvalidMessage)
		}
	} else {
		if value == "" {
			return Document{}, fmt.Errorf("%w: message value (content) is empty", ErrInvalidMessage)
		}
		doc.Content = value
		doc.PartnerID = msg.Key
		doc.FileName = msg.Headers["fileName"]
		if doc.PartnerID == "" {
			doc.PartnerID = msg.Headers["partnerId"]
		}
		if doc.PartnerID == "" {
			doc.PartnerID = UnknownPartner
		}
	}

	doc.EDIType = ediType
	if doc.FileName == "" {
		doc.FileName = generatedFileName(doc.PartnerID, ediType, msg.Source, now)
	}
	return doc, nil
}

func generatedFileName(partnerID, ediType, source string, now time.Time) string {
	if source == "" {
		source = "message"
	}
	return fmt.Sprintf("%s_%s.%d.%s", partnerID, ediType, now.UnixMilli(), source)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
