package inbox

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	commonhttp "league-signup/internal/common/http"
)

// MailpitSource reads messages through a Mailpit-compatible HTTP API.
type MailpitSource struct {
	client *commonhttp.Client
}

func NewMailpitSource(client *commonhttp.Client) *MailpitSource {
	return &MailpitSource{client: client}
}

type searchResponse struct {
	Messages []struct {
		ID      string    `json:"ID"`
		Subject string    `json:"Subject"`
		Snippet string    `json:"Snippet"`
		Created time.Time `json:"Created"`
	} `json:"messages"`
}

type messageResponse struct {
	Subject string `json:"Subject"`
	Text    string `json:"Text"`
	HTML    string `json:"HTML"`
}

func (m *MailpitSource) Latest(ctx context.Context, email string) (string, bool, error) {
	var search searchResponse
	q := url.Values{"query": {"to:" + email}}
	if err := m.client.GetJSON(ctx, "/api/v1/search", q, &search); err != nil {
		return "", false, fmt.Errorf("search inbox: %w", err)
	}
	if len(search.Messages) == 0 {
		return "", false, nil
	}

	newest := search.Messages[0]
	for _, msg := range search.Messages[1:] {
		if msg.Created.After(newest.Created) {
			newest = msg
		}
	}

	var msg messageResponse
	if err := m.client.GetJSON(ctx, "/api/v1/message/"+url.PathEscape(newest.ID), nil, &msg); err != nil {
		return "", false, fmt.Errorf("read message %s: %w", newest.ID, err)
	}

	body := msg.Text
	if strings.TrimSpace(body) == "" {
		body = msg.HTML
	}
	return msg.Subject + "\n" + body, true, nil
}
