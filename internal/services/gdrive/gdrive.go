// Package gdrive integrates the Google Drive REST API as a capability
// provider. It shares the "google" account credential with the Gmail
// provider.
package gdrive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Jocelyn-JE/AREA-51/internal/service"
	"github.com/Jocelyn-JE/AREA-51/pkg/httpx"
	logx "github.com/Jocelyn-JE/AREA-51/pkg/logx"
)

const (
	authService = "google"
	apiBase     = "https://www.googleapis.com/drive/v3"
	uploadBase  = "https://www.googleapis.com/upload/drive/v3"
)

type Provider struct {
	service.Base
	client *httpx.Client
	base   string
	upload string
	log    logx.Logger
}

func New(client *httpx.Client, log logx.Logger) *Provider {
	p := &Provider{client: client, base: apiBase, upload: uploadBase, log: log.With(logx.String("service", "gdrive"))}
	p.Base = service.NewBase("Google Drive", authService,
		[]service.Action{{
			ActionDefinition: service.ActionDefinition{
				Name:        "new_file",
				Description: "Fires when a file is created in the drive, optionally inside one folder.",
				Parameters: []service.Parameter{
					{Name: "folder_id", Type: service.ParamString, Description: "Only watch this folder."},
				},
			},
			Run: p.newFile,
		}},
		[]service.Reaction{{
			ReactionDefinition: service.ReactionDefinition{
				Name:        "create_file",
				Description: "Creates a plain text file in the drive.",
				Parameters: []service.Parameter{
					{Name: "name", Type: service.ParamString, Required: true},
					{Name: "content", Type: service.ParamString},
					{Name: "folder_id", Type: service.ParamString},
				},
			},
			Run: p.createFile,
		}})
	return p
}

type fileList struct {
	Files []struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		MimeType    string    `json:"mimeType"`
		CreatedTime time.Time `json:"createdTime"`
		WebViewLink string    `json:"webViewLink"`
	} `json:"files"`
}

func (p *Provider) newFile(ctx context.Context, params service.Params, ec service.Context) (service.Trigger, error) {
	tok, ok := ec.Token(authService)
	if !ok {
		return service.NoFire(), fmt.Errorf("no google credential for user %s", ec.UserID)
	}

	clauses := []string{"trashed = false"}
	if folder, ok := params.String("folder_id"); ok && folder != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", folder))
	}
	if ec.LastTriggered != nil {
		clauses = append(clauses, fmt.Sprintf("createdTime > '%s'", ec.LastTriggered.UTC().Format(time.RFC3339)))
	} else {
		// First evaluation: only look back a minute, not the whole drive.
		clauses = append(clauses, fmt.Sprintf("createdTime > '%s'", time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)))
	}

	var list fileList
	err := p.client.Get(ctx, p.base+"/files", tok, map[string]string{
		"q":        strings.Join(clauses, " and "),
		"orderBy":  "createdTime desc",
		"pageSize": "1",
		"fields":   "files(id,name,mimeType,createdTime,webViewLink)",
	}, &list)
	if err != nil {
		if httpx.IsTransient(err) {
			p.log.Warn("drive poll transient failure", logx.Err(err))
			return service.NoFire(), nil
		}
		return service.NoFire(), err
	}
	if len(list.Files) == 0 {
		return service.NoFire(), nil
	}

	f := list.Files[0]
	return service.FireWith(map[string]any{
		"file_id":   f.ID,
		"name":      f.Name,
		"mime_type": f.MimeType,
		"url":       f.WebViewLink,
	}), nil
}

func (p *Provider) createFile(ctx context.Context, params service.Params, ec service.Context) error {
	tok, ok := ec.Token(authService)
	if !ok {
		return fmt.Errorf("no google credential for user %s", ec.UserID)
	}
	name, _ := params.String("name")

	meta := map[string]any{"name": name, "mimeType": "text/plain"}
	if folder, ok := params.String("folder_id"); ok && folder != "" {
		meta["parents"] = []string{folder}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := p.client.Post(ctx, p.base+"/files", tok, meta, &created); err != nil {
		return err
	}

	content, _ := params.String("content")
	if content == "" {
		return nil
	}
	return p.client.Do(ctx, httpx.Request{
		Method:  "PATCH",
		URL:     p.upload + "/files/" + created.ID,
		Token:   tok,
		Query:   map[string]string{"uploadType": "media"},
		Header:  map[string]string{"Content-Type": "text/plain"},
		RawBody: []byte(content),
	}, nil)
}
