package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsuite/internal/config"
)

func TestHasPDFPart(t *testing.T) {
	plain := &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}
	assert.False(t, HasPDFPart(plain))
	assert.False(t, HasPDFPart(nil))

	byType := &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			plain,
			{MIMEType: "APPLICATION", MIMESubType: "PDF"},
		},
	}
	assert.True(t, HasPDFPart(byType))

	byName := &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			plain,
			{
				MIMEType:          "application",
				MIMESubType:       "octet-stream",
				Disposition:       "attachment",
				DispositionParams: map[string]string{"filename": "Bundle.PDF"},
			},
		},
	}
	assert.True(t, HasPDFPart(byName))
}

func TestSearchCriteria(t *testing.T) {
	c := SearchCriteria("invoices@mopar.example")
	assert.Equal(t, []string{imap.SeenFlag}, c.WithoutFlags)
	assert.Equal(t, "invoices@mopar.example", c.Header.Get("From"))

	assert.Empty(t, SearchCriteria("").Header.Get("From"))
}

func TestToFetched(t *testing.T) {
	msg := &imap.Message{
		Uid:          42,
		InternalDate: time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		Envelope: &imap.Envelope{
			Subject: "Weekly invoices",
			From:    []*imap.Address{{PersonalName: "Mopar", MailboxName: "invoices", HostName: "mopar.example"}},
		},
	}
	got := toFetched(msg, []byte("raw"))
	assert.Equal(t, "imap-42", got.MessageID)
	assert.Equal(t, "Mopar <invoices@mopar.example>", got.From)
	assert.Equal(t, "2025-03-03T10:00:00Z", got.ReceivedAt)
	assert.Equal(t, "imap", got.Provider)
}

func TestNewConnectorRequiresCredentials(t *testing.T) {
	_, err := NewConnector(config.Config{IMAPHost: "mail.example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAP_USER")
}
