package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"partsuite/internal"
	"partsuite/internal/config"
)

type Connector struct {
	service *gmail.Service
	query   string
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, r := range [][2]string{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(r[0], r[1]); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	ctx := context.Background()
	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc, query: SearchQuery(cfg.MailSupplierFrom)}, nil
}

// SearchQuery restricts listing to messages carrying a PDF, optionally from a
// single supplier address.
func SearchQuery(supplierFrom string) string {
	query := "has:attachment filename:pdf"
	if from := strings.TrimSpace(supplierFrom); from != "" {
		query += " from:" + from
	}
	return query
}

// FetchInbox pages through label until max matching messages are collected.
func (c *Connector) FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error) {
	var ids []string
	pageToken := ""
	for len(ids) < max {
		call := c.service.Users.Messages.List("me").LabelIds(label).Q(c.query).MaxResults(int64(max - len(ids)))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, err
		}
		for _, m := range resp.Messages {
			if m.Id != "" {
				ids = append(ids, m.Id)
			}
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := c.service.Users.Messages.Get("me", id).Format("raw").Do()
		if err != nil {
			return nil, err
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		fetched, err := fromRaw(id, raw, msg.InternalDate)
		if err != nil {
			return nil, err
		}
		out = append(out, fetched)
	}
	return out, nil
}

// fromRaw reads the headers of an RFC 822 message. internalDate is Gmail's
// receipt time in epoch milliseconds and wins over the Date header.
func fromRaw(id string, raw []byte, internalDate int64) (internal.FetchedMailMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.FetchedMailMessage{}, fmt.Errorf("parse gmail message %s: %w", id, err)
	}

	received := time.Now().UTC()
	if internalDate > 0 {
		received = time.UnixMilli(internalDate).UTC()
	} else if t, err := mailDateFallback(env.GetHeader("Date")); err == nil {
		received = t.UTC()
	}

	messageID := env.GetHeader("Message-ID")
	if messageID == "" {
		messageID = id
	}

	return internal.FetchedMailMessage{
		Provider:   "gmail",
		MessageID:  messageID,
		Subject:    env.GetHeader("Subject"),
		From:       env.GetHeader("From"),
		ReceivedAt: received.Format(time.RFC3339),
		Raw:        raw,
	}, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}

func mailDateFallback(value string) (time.Time, error) {
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format")
}
