// Package gmail integrates the Gmail REST API as a capability provider.
// Credentials come from the "google" account entry, shared with the Drive
// provider.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
	"github.com/Jocelyn-JE/AREA-51/pkg/httpx"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

const (
	authService = "google"
	apiBase     = "https://gmail.googleapis.com/gmail/v1/users/me"
)

type Provider struct {
	service.Base
	client *httpx.Client
	base   string
	log    logx.Logger
}

func New(client *httpx.Client, log logx.Logger) *Provider {
	p := &Provider{client: client, base: apiBase, log: log.With(logx.String("service", "gmail"))}
	p.Base = service.NewBase("Gmail", authService,
		[]service.Action{{
			ActionDefinition: service.ActionDefinition{
				Name:        "new_email",
				Description: "Fires when an email arrives, optionally filtered by sender or subject.",
				Parameters: []service.Parameter{
					{Name: "from", Type: service.ParamEmail, Description: "Only match mail from this address."},
					{Name: "subject_contains", Type: service.ParamString, Description: "Only match subjects containing this text."},
				},
			},
			Run: p.newEmail,
		}},
		[]service.Reaction{
			{
				ReactionDefinition: service.ReactionDefinition{
					Name:        "send_email",
					Description: "Sends an email from the connected account.",
					Parameters: []service.Parameter{
						{Name: "to", Type: service.ParamEmail, Required: true},
						{Name: "subject", Type: service.ParamString, Required: true},
						{Name: "body", Type: service.ParamString, Required: true},
					},
				},
				Run: p.sendEmail,
			},
			{
				ReactionDefinition: service.ReactionDefinition{
					Name:        "reply_to_email",
					Description: "Replies to the email that fired the trigger.",
					Parameters: []service.Parameter{
						{Name: "body", Type: service.ParamString, Required: true},
					},
				},
				Run: p.replyToEmail,
			},
		})
	return p
}

type messageList struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
}

type message struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Snippet  string `json:"snippet"`
	Payload  struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

func (m message) header(name string) string {
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (p *Provider) newEmail(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
	tok, ok := ec.Token(authService)
	if !ok {
		return service.NoFire(), fmt.Errorf("no google credential for user %s", ec.UserID)
	}

	query := []string{"in:inbox"}
	if from, ok := params.String("from"); ok && from != "" {
		query = append(query, "from:"+from)
	}
	if subj, ok := params.String("subject_contains"); ok && subj != "" {
		query = append(query, "subject:"+strconv.Quote(subj))
	}
	if ec.LastTriggered != nil {
		query = append(query, "after:"+strconv.FormatInt(ec.LastTriggered.Unix(), 10))
	} else {
		query = append(query, "is:unread")
	}

	var list messageList
	err := p.client.Get(ctx, p.base+"/messages", tok,
		map[string]string{"q": strings.Join(query, " "), "maxResults": "1"}, &list)
	if err != nil {
		if httpx.IsTransient(err) {
			p.log.Warn("gmail list transient failure", logx.Err(err))
			return service.NoFire(), nil
		}
		return service.NoFire(), err
	}
	if len(list.Messages) == 0 {
		return service.NoFire(), nil
	}

	var msg message
	err = p.client.Get(ctx, p.base+"/messages/"+list.Messages[0].ID, tok,
		map[string]string{"format": "metadata"}, &msg)
	if err != nil {
		if httpx.IsTransient(err) {
			return service.NoFire(), nil
		}
		return service.NoFire(), err
	}

	return service.FireWith(map[string]any{
		"message_id": msg.ID,
		"thread_id":  msg.ThreadID,
		"from":       msg.header("From"),
		"subject":    msg.header("Subject"),
		"snippet":    msg.Snippet,
	}), nil
}

func (p *Provider) sendEmail(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no google credential for user %s", ec.UserID)
	}
	to, _ := params.String("to")
	subject, _ := params.String("subject")
	body, _ := params.String("body")

	raw := encodeMessage(map[string]string{"To": to, "Subject": subject}, body)
	return p.client.Post(ctx, p.base+"/messages/send", tok, map[string]string{"raw": raw}, nil)
}

func (p *Provider) replyToEmail(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no google credential for user %s", ec.UserID)
	}
	data, ok := params[service.TriggerDataKey].(map[string]any)
	if !ok {
		return fmt.Errorf("reply_to_email requires a firing email trigger")
	}
	threadID, _ := data["thread_id"].(string)
	from, _ := data["from"].(string)
	subject, _ := data["subject"].(string)
	if threadID == "" || from == "" {
		return fmt.Errorf("trigger payload has no replyable message")
	}
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	body, _ := params.String("body")

	raw := encodeMessage(map[string]string{"To": from, "Subject": subject}, body)
	return p.client.Post(ctx, p.base+"/messages/send", tok,
		map[string]string{"raw": raw, "threadId": threadID}, nil)
}

// encodeMessage builds a minimal RFC 822 message in the base64url form the
// send endpoint expects.
func encodeMessage(headers map[string]string, body string) string {
	var b strings.Builder
	for _, k := range []string{"To", "Subject"} {
		if v := headers[k]; v != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
