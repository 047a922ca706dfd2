package msgraph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/enel-control/enel-cli/internal/collab"
)

// pageSize is the $top used when listing messages.
const pageSize = 50

type messagePage struct {
	Value    []graphMessageItem `json:"value"`
	NextLink string             `json:"@odata.nextLink"`
}

type graphMessageItem struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	HasAttachments   bool      `json:"hasAttachments"`
	From             struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

type attachmentPage struct {
	Value []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	} `json:"value"`
}

// ListCandidateMessages pages through the inbox newest first. The date window
// and attachment flag go to the server; sender and subject are matched
// case-insensitively here since Graph rejects contains() next to an
// ordered date filter.
func (c *httpClient) ListCandidateMessages(ctx context.Context, filter collab.MessageFilter) ([]collab.Message, error) {
	next := c.messagesURL(filter)
	sender := strings.ToLower(filter.SenderContains)
	subject := strings.ToLower(filter.SubjectContains)

	var out []collab.Message
	for next != "" {
		var page messagePage
		if err := c.getJSON(ctx, "list messages", next, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Value {
			if sender != "" && !strings.Contains(strings.ToLower(m.From.EmailAddress.Address), sender) &&
				!strings.Contains(strings.ToLower(m.From.EmailAddress.Name), sender) {
				continue
			}
			if subject != "" && !strings.Contains(strings.ToLower(m.Subject), subject) {
				continue
			}
			if filter.OnlyWithAttachments && !m.HasAttachments {
				continue
			}
			out = append(out, collab.Message{
				ID:            m.ID,
				Subject:       m.Subject,
				ReceivedAt:    m.ReceivedDateTime,
				HasAttachment: m.HasAttachments,
			})
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, nil
			}
		}
		next = page.NextLink
	}
	return out, nil
}

func (c *httpClient) messagesURL(filter collab.MessageFilter) string {
	var clauses []string
	if !filter.Since.IsZero() {
		clauses = append(clauses, "receivedDateTime ge "+filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "receivedDateTime le "+filter.Until.UTC().Format(time.RFC3339))
	}
	if filter.OnlyWithAttachments {
		clauses = append(clauses, "hasAttachments eq true")
	}

	top := pageSize
	if filter.Limit > 0 && filter.Limit < top {
		top = filter.Limit
	}
	q := url.Values{}
	q.Set("$select", "id,subject,receivedDateTime,hasAttachments,from")
	q.Set("$orderby", "receivedDateTime desc")
	q.Set("$top", strconv.Itoa(top))
	if len(clauses) > 0 {
		q.Set("$filter", strings.Join(clauses, " and "))
	}
	return fmt.Sprintf("%s/%s/messages?%s", c.baseURL, c.owner, q.Encode())
}

// ListAttachments returns the file attachments of a message.
func (c *httpClient) ListAttachments(ctx context.Context, messageID string) ([]collab.AttachmentRef, error) {
	u := fmt.Sprintf("%s/%s/messages/%s/attachments?$select=id,name,contentType,size",
		c.baseURL, c.owner, url.PathEscape(messageID))
	var page attachmentPage
	if err := c.getJSON(ctx, "list attachments", u, &page); err != nil {
		return nil, err
	}
	out := make([]collab.AttachmentRef, 0, len(page.Value))
	for _, a := range page.Value {
		out = append(out, collab.AttachmentRef{
			ID:          a.ID,
			Name:        a.Name,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return out, nil
}

// FetchAttachment downloads the raw bytes of an attachment.
func (c *httpClient) FetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	u := fmt.Sprintf("%s/%s/messages/%s/attachments/%s/$value",
		c.baseURL, c.owner, url.PathEscape(messageID), url.PathEscape(attachmentID))
	data, err := c.do(ctx, request{op: "fetch attachment", method: http.MethodGet, url: u})
	if err != nil {
		return nil, eris.Wrapf(err, "msgraph: attachment %s", attachmentID)
	}
	return data, nil
}
