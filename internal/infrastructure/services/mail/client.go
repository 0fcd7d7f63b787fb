package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/case-intake/internal/core/domain"
	"github.com/kirillkom/case-intake/internal/infrastructure/httpjson"
)

type Client struct {
	http *httpjson.Client
}

func New(client *httpjson.Client) *Client {
	return &Client{http: client}
}

type sendResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (c *Client) Draft(ctx context.Context, req domain.MailDraftRequest) (domain.MailDraft, error) {
	if strings.TrimSpace(req.Recipient) == "" {
		return domain.MailDraft{}, domain.WrapError(domain.ErrInvalidInput, "mail draft", errors.New("recipient is required"))
	}

	var draft domain.MailDraft
	if err := c.http.Post(ctx, "/api/mail/draft", req, &draft, "draft"); err != nil {
		return domain.MailDraft{}, err
	}
	if strings.TrimSpace(draft.Subject) == "" && strings.TrimSpace(draft.Body) == "" {
		return domain.MailDraft{}, errors.New("mail draft: empty subject and body")
	}
	return draft, nil
}

// Send delivers msg. A 2xx reply whose status reports failure is an error.
func (c *Client) Send(ctx context.Context, msg domain.MailMessage) error {
	if strings.TrimSpace(msg.Recipient) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "mail send", errors.New("recipient is required"))
	}

	var resp sendResponse
	if err := c.http.Post(ctx, "/api/mail/send", msg, &resp, "send"); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "failed", "error", "rejected":
		return fmt.Errorf("mail send: status %s: %s", resp.Status, resp.Error)
	}
	return nil
}
