// Package github integrates the GitHub REST API as a capability provider.
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
	"github.com/Jocelyn-JE/AREA-51/pkg/httpx"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

const (
	authService = "github"
	apiBase     = "https://api.github.com"
)

type Provider struct {
	service.Base
	client *httpx.Client
	base   string
	log    logx.Logger
}

func New(client *httpx.Client, log logx.Logger) *Provider {
	p := &Provider{client: client, base: apiBase, log: log.With(logx.String("service", "github"))}
	repoParam := service.Parameter{
		Name: "repository", Type: service.ParamString, Required: true,
		Description: "Repository in owner/name form.",
	}
	p.Base = service.NewBase("GitHub", authService,
		[]service.Action{
			{
				ActionDefinition: service.ActionDefinition{
					Name:        "new_pull_request",
					Description: "Fires when a pull request is opened on the repository.",
					Parameters:  []service.Parameter{repoParam},
				},
				Run: p.newPullRequest,
			},
			{
				ActionDefinition: service.ActionDefinition{
					Name:        "issue_comment_added",
					Description: "Fires when a comment is added to the issue.",
					Parameters: []service.Parameter{
						repoParam,
						{Name: "issue_number", Type: service.ParamNumber, Required: true},
					},
				},
				Run: p.issueCommentAdded,
			},
		},
		[]service.Reaction{
			{
				ReactionDefinition: service.ReactionDefinition{
					Name:        "create_issue",
					Description: "Opens an issue on the repository.",
					Parameters: []service.Parameter{
						repoParam,
						{Name: "title", Type: service.ParamString, Required: true},
						{Name: "body", Type: service.ParamString},
					},
				},
				Run: p.createIssue,
			},
			{
				ReactionDefinition: service.ReactionDefinition{
					Name:        "add_label_to_issue",
					Description: "Adds a label to the issue.",
					Parameters: []service.Parameter{
						repoParam,
						{Name: "issue_number", Type: service.ParamNumber, Required: true},
						{Name: "label", Type: service.ParamString, Required: true},
					},
				},
				Run: p.addLabel,
			},
		})
	return p
}

type pullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
}

func (p *Provider) newPullRequest(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
	tok, ok := ec.Token(authService)
	if !ok {
		return service.NoFire(), fmt.Errorf("no github credential for user %s", ec.UserID)
	}
	repo, _ := params.String("repository")

	var prs []pullRequest
	err := p.client.Get(ctx, p.base+"/repos/"+repo+"/pulls", tok,
		map[string]string{"state": "open", "sort": "created", "direction": "desc", "per_page": "5"}, &prs)
	if err != nil {
		if httpx.IsTransient(err) {
			p.log.Warn("pull request poll transient failure", logx.Err(err))
			return service.NoFire(), nil
		}
		return service.NoFire(), err
	}

	for _, pr := range prs {
		if ec.LastTriggered != nil && !pr.CreatedAt.After(*ec.LastTriggered) {
			continue
		}
		return service.FireWith(map[string]any{
			"number": pr.Number,
			"title":  pr.Title,
			"url":    pr.HTMLURL,
			"author": pr.User.Login,
		}), nil
	}
	return service.NoFire(), nil
}

type issueComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
}

func (p *Provider) issueCommentAdded(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
	tok, ok := ec.Token(authService)
	if !ok {
		return service.NoFire(), fmt.Errorf("no github credential for user %s", ec.UserID)
	}
	repo, _ := params.String("repository")
	number, _ := params.Int64("issue_number")

	query := map[string]string{"per_page": "5", "direction": "desc", "sort": "created"}
	if ec.LastTriggered != nil {
		query["since"] = ec.LastTriggered.UTC().Format(time.RFC3339)
	}

	var comments []issueComment
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", p.base, repo, number)
	if err := p.client.Get(ctx, url, tok, query, &comments); err != nil {
		if httpx.IsTransient(err) {
			p.log.Warn("issue comment poll transient failure", logx.Err(err))
			return service.NoFire(), nil
		}
		return service.NoFire(), err
	}

	for _, c := range comments {
		if ec.LastTriggered != nil && !c.CreatedAt.After(*ec.LastTriggered) {
			continue
		}
		return service.FireWith(map[string]any{
			"comment_id": c.ID,
			"body":       c.Body,
			"url":        c.HTMLURL,
			"author":     c.User.Login,
		}), nil
	}
	return service.NoFire(), nil
}

func (p *Provider) createIssue(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no github credential for user %s", ec.UserID)
	}
	repo, _ := params.String("repository")
	title, _ := params.String("title")
	body, _ := params.String("body")

	payload := map[string]any{"title": title}
	if body != "" {
		payload["body"] = body
	}
	return p.client.Post(ctx, p.base+"/repos/"+repo+"/issues", tok, payload, nil)
}

func (p *Provider) addLabel(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no github credential for user %s", ec.UserID)
	}
	repo, _ := params.String("repository")
	number, _ := params.Int64("issue_number")
	label, _ := params.String("label")

	url := fmt.Sprintf("%s/repos/%s/issues/%d/labels", p.base, repo, number)
	return p.client.Post(ctx, url, tok, map[string][]string{"labels": {label}}, nil)
}
