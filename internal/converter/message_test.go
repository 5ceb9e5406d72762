package converter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messageTime = time.UnixMilli(1704067200123)

func TestParseMessageJSONEnvelope(t *testing.T) {
	doc, err := ParseMessage(Message{
		Value: []byte(`{"content":"ISA*00~","partnerId":"ACME","fileName":"acme.edi"}`),
	}, "315", messageTime)
	require.NoError(t, err)

	assert.Equal(t, Document{Content: "ISA*00~", PartnerID: "ACME", FileName: "acme.edi", EDIType: "315"}, doc)
}

func TestParseMessageJSONEnvelopeGeneratesFileName(t *testing.T) {
	doc, err := ParseMessage(Message{
		Value:  []byte(` {"content":"data","partnerId":"ACME"}`),
		Source: "kafka",
	}, "315", messageTime)
	require.NoError(t, err)
	assert.Equal(t, "ACME_315.1704067200123.kafka", doc.FileName)
}

func TestParseMessageRejectsBadEnvelopes(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"malformed", `{"content":`, "malformed JSON envelope"},
		{"missing content", `{"partnerId":"ACME"}`, "content"},
		{"empty content", `{"content":"","partnerId":"ACME"}`, "content"},
		{"missing partner", `{"content":"x"}`, "partnerId"},
		{"non-string content", `{"content":5,"partnerId":"ACME"}`, "malformed JSON envelope"},
		{"empty plain text", ``, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage(Message{Value: []byte(tt.value)}, "315", messageTime)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMessage))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseMessagePlainText(t *testing.T) {
	tests := []struct {
		name        string
		msg         Message
		wantPartner string
		wantFile    string
	}{
		{
			name:        "partner from key",
			msg:         Message{Value: []byte("CLM..."), Key: "CSXT", Headers: map[string]string{"partnerId": "OTHER", "fileName": "clm.txt"}},
			wantPartner: "CSXT",
			wantFile:    "clm.txt",
		},
		{
			name:        "partner from header",
			msg:         Message{Value: []byte("CLM..."), Headers: map[string]string{"partnerId": "BNSF"}},
			wantPartner: "BNSF",
			wantFile:    "BNSF_RAILINC.1704067200123.message",
		},
		{
			name:        "unknown partner",
			msg:         Message{Value: []byte("CLM..."), Source: "stdin"},
			wantPartner: UnknownPartner,
			wantFile:    "UNKNOWN_RAILINC.1704067200123.stdin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseMessage(tt.msg, "RAILINC", messageTime)
			require.NoError(t, err)
			assert.Equal(t, "CLM...", doc.Content)
			assert.Equal(t, "RAILINC", doc.EDIType)
			assert.Equal(t, tt.wantPartner, doc.PartnerID)
			assert.Equal(t, tt.wantFile, doc.FileName)
		})
	}
}
