// Package outlook integrates Outlook mail through the Microsoft Graph API.
// Credentials come from the "microsoft" account entry.
package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
	"github.com/Jocelyn-JE/AREA-51/pkg/httpx"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

const (
	authService = "microsoft"
	apiBase     = "https://graph.microsoft.com/v1.0/me"
)

type Provider struct {
	service.Base
	client *httpx.Client
	base   string
	log    logx.Logger
}

func New(client *httpx.Client, log logx.Logger) *Provider {
	p := &Provider{client: client, base: apiBase, log: log.With(logx.String("service", "outlook"))}
	p.Base = service.NewBase("Outlook", authService,
		[]service.Action{{
			ActionDefinition: service.ActionDefinition{
				Name:        "new_email",
				Description: "Fires when an email arrives in the inbox, optionally filtered by sender.",
				Parameters: []service.Parameter{
					{Name: "from", Type: service.ParamEmail, Description: "Only match mail from this address."},
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

type mailList struct {
	Value []struct {
		ID               string    `json:"id"`
		Subject          string    `json:"subject"`
		BodyPreview      string    `json:"bodyPreview"`
		ReceivedDateTime time.Time `json:"receivedDateTime"`
		From             struct {
			EmailAddress struct {
				Address string `json:"address"`
			} `json:"emailAddress"`
		} `json:"from"`
	} `json:"value"`
}

func (p *Provider) newEmail(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
	tok, ok := ec.Token(authService)
	if !ok {
		return service.NoFire(), fmt.Errorf("no microsoft credential for user %s", ec.UserID)
	}

	filter := ""
	if ec.LastTriggered != nil {
		filter = fmt.Sprintf("receivedDateTime gt %s", ec.LastTriggered.UTC().Format(time.RFC3339))
	}
	if from, ok := params.String("from"); ok && from != "" {
		clause := fmt.Sprintf("from/emailAddress/address eq '%s'", from)
		if filter != "" {
			filter += " and " + clause
		} else {
			filter = clause
		}
	}

	query := map[string]string{
		"$top":     "1",
		"$orderby": "receivedDateTime desc",
	}
	if filter != "" {
		query["$filter"] = filter
	}

	var list mailList
	err := p.client.Get(ctx, p.base+"/mailFolders/inbox/messages", tok, query, &list)
	if err != nil {
		if httpx.IsTransient(err) {
			p.log.Warn("outlook poll transient failure", logx.Err(err))
			return service.NoFire(), nil
		}
		return service.NoFire(), err
	}
	if len(list.Value) == 0 {
		return service.NoFire(), nil
	}

	m := list.Value[0]
	if ec.LastTriggered == nil {
		// First evaluation has no filter; only fire on mail from the last
		// minute so old inbox content does not trigger.
		if m.ReceivedDateTime.Before(time.Now().Add(-time.Minute)) {
			return service.NoFire(), nil
		}
	}
	return service.FireWith(map[string]any{
		"message_id": m.ID,
		"from":       m.From.EmailAddress.Address,
		"subject":    m.Subject,
		"snippet":    m.BodyPreview,
	}), nil
}

func (p *Provider) sendEmail(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no microsoft credential for user %s", ec.UserID)
	}
	to, _ := params.String("to")
	subject, _ := params.String("subject")
	body, _ := params.String("body")

	payload := map[string]any{
		"message": map[string]any{
			"subject": subject,
			"body":    map[string]string{"contentType": "Text", "content": body},
			"toRecipients": []map[string]any{
				{"emailAddress": map[string]string{"address": to}},
			},
		},
	}
	return p.client.Post(ctx, p.base+"/sendMail", tok, payload, nil)
}

func (p *Provider) replyToEmail(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no microsoft credential for user %s", ec.UserID)
	}
	data, ok := params[service.TriggerDataKey].(map[string]any)
	if !ok {
		return fmt.Errorf("reply_to_email requires a firing email trigger")
	}
	messageID, _ := data["message_id"].(string)
	if messageID == "" {
		return fmt.Errorf("trigger payload has no replyable message")
	}
	body, _ := params.String("body")

	return p.client.Post(ctx, p.base+"/messages/"+messageID+"/reply", tok,
		map[string]string{"comment": body}, nil)
}
