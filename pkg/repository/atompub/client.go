// Package atompub implements repository.Client over an AtomPub-style
// create/read/update HTTP dialect.
//
// Entities are created with a POST to the kind's collection URI; the
// response entry carries the minted identifier and an edit link. Versions
// are created with a PUT of the document body to the edit link. Versions are
// read with a GET of {base}/{kind}s/{id}/{version}.
//
// The client does not retry; retry policy belongs to the caller.
package atompub

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/repository"
)

// ForcedIDHeader carries a legacy identifier the repository must honor.
const ForcedIDHeader = "X-Forced-Id"

// Compile-time check that Client implements repository.Client.
var _ repository.Client = (*Client)(nil)

// Client talks to a remote repository over HTTP.
type Client struct {
	config *Config
	client *http.Client
	logger hclog.Logger
}

// Entry is the Atom entry document exchanged with the repository.
type Entry struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom entry"`
	ID      string   `xml:"id,omitempty"`
	Version string   `xml:"version,omitempty"`
	Links   []Link   `xml:"link"`
}

// Link is an Atom link element.
type Link struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// EditLink returns the href of the rel="edit" link, or "".
func (e *Entry) EditLink() string {
	for _, l := range e.Links {
		if l.Rel == "edit" {
			return l.Href
		}
	}
	return ""
}

// NewClient creates a new AtomPub repository client
func NewClient(cfg *Config, logger hclog.Logger) (*Client, error) {
	if cfg.TLSVerify == nil {
		cfg.TLSVerify = DefaultConfig().TLSVerify
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid repository config: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Client{
		config: cfg,
		client: cfg.NewHTTPClient(),
		logger: logger.Named("atompub"),
	}, nil
}

// CreateEntity implements repository.Client.
func (c *Client) CreateEntity(ctx context.Context, kind contentid.Kind, forced *contentid.ID) (repository.Entity, error) {
	headers := map[string]string{"Content-Type": "application/atom+xml;type=entry"}
	if forced != nil {
		headers[ForcedIDHeader] = forced.String()
	}

	body, err := xml.Marshal(&Entry{})
	if err != nil {
		return repository.Entity{}, fmt.Errorf("failed to marshal entry: %w", err)
	}

	status, entry, err := c.do(ctx, http.MethodPost, c.collectionURL(kind), headers, body)
	if err != nil {
		return repository.Entity{}, err
	}
	switch {
	case status == http.StatusConflict:
		return repository.Entity{}, fmt.Errorf("%w: %s", repository.ErrConflict, forced)
	case status == http.StatusUnprocessableEntity && forced != nil:
		return repository.Entity{}, fmt.Errorf("%w: %s", repository.ErrInvalidForcedID, forced)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return repository.Entity{}, fmt.Errorf("create %s returned status %d", kind, status)
	}

	id, err := contentid.ParseID(kind, entry.ID)
	if err != nil {
		return repository.Entity{}, fmt.Errorf("repository returned bad id: %w", err)
	}
	edit := entry.EditLink()
	if edit == "" {
		return repository.Entity{}, fmt.Errorf("repository returned no edit link for %s", id)
	}

	c.logger.Debug("entity created", "id", id, "edit", edit)
	return repository.Entity{ID: id, EditLocation: edit}, nil
}

// CreateVersion implements repository.Client.
func (c *Client) CreateVersion(ctx context.Context, editLocation, body string) (repository.Revision, error) {
	headers := map[string]string{"Content-Type": "application/xml"}

	status, entry, err := c.do(ctx, http.MethodPut, c.resolve(editLocation), headers, []byte(body))
	if err != nil {
		return repository.Revision{}, err
	}
	if status == http.StatusNotFound {
		return repository.Revision{}, fmt.Errorf("%w: edit location %s", repository.ErrNotFound, editLocation)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return repository.Revision{}, fmt.Errorf("create version at %s returned status %d", editLocation, status)
	}

	return c.revision(entry, editLocation)
}

// GetVersion implements repository.Client.
func (c *Client) GetVersion(ctx context.Context, id contentid.ID, version contentid.Version) (repository.Revision, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.collectionURL(id.Kind()), id, version)

	status, entry, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return repository.Revision{}, err
	}
	if status == http.StatusNotFound || status == http.StatusGone {
		return repository.Revision{}, fmt.Errorf("%w: %s version %s", repository.NotFoundFor(id), id, version)
	}
	if status != http.StatusOK {
		return repository.Revision{}, fmt.Errorf("get %s version %s returned status %d", id, version, status)
	}

	return c.revision(entry, "")
}

func (c *Client) revision(entry *Entry, fallbackEdit string) (repository.Revision, error) {
	id, err := contentid.ParseAnyID(entry.ID)
	if err != nil {
		return repository.Revision{}, fmt.Errorf("repository returned bad id: %w", err)
	}
	v, err := contentid.ParseVersion(entry.Version)
	if err != nil {
		return repository.Revision{}, fmt.Errorf("repository returned bad version: %w", err)
	}
	edit := entry.EditLink()
	if edit == "" {
		edit = fallbackEdit
	}
	return repository.Revision{ID: id, Version: v, EditLocation: edit}, nil
}

func (c *Client) collectionURL(kind contentid.Kind) string {
	return fmt.Sprintf("%s/%ss", strings.TrimRight(c.config.BaseURL, "/"), kind)
}

// resolve turns a server-relative edit location into an absolute URL.
func (c *Client) resolve(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(location, "/")
}

// do executes one request and decodes an Atom entry from 2xx responses.
// Non-2xx statuses are returned to the caller for classification.
func (c *Client) do(ctx context.Context, method, endpoint string, headers map[string]string, body []byte) (int, *Entry, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("repository returned error status",
			"method", method,
			"url", endpoint,
			"status", resp.StatusCode,
			"body", string(respBody))
		return resp.StatusCode, nil, nil
	}

	var entry Entry
	if err := xml.Unmarshal(respBody, &entry); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return resp.StatusCode, &entry, nil
}
