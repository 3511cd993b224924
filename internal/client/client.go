// Package client is the typed HTTP client for the notebook API, used by the
// terminal UI. It translates HTTP statuses back into the shared sentinel
// errors.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hverdal/quire/internal/api"
	"github.com/hverdal/quire/internal/apperr"
	"github.com/hverdal/quire/internal/notebook"
	"github.com/hverdal/quire/internal/search"
	"github.com/hverdal/quire/internal/settings"
	"github.com/hverdal/quire/internal/tree"
	"github.com/hverdal/quire/internal/vcs"
)

// Client talks to one notebook server.
type Client struct {
	baseURL string
	httpc   *http.Client
	stream  *http.Client // no timeout; SSE and archive downloads
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
		stream:  &http.Client{},
	}
}

// escapePath escapes each segment of a note path for use in a URL while
// keeping the slashes that separate segments.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// statusError turns a non-success response into a sentinel-wrapped error,
// carrying the server's message when one is present.
func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = apperr.ErrNotFound
	case http.StatusConflict:
		sentinel = apperr.ErrExists
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = apperr.ErrValidation
	case http.StatusRequestEntityTooLarge:
		sentinel = apperr.ErrTooLarge
	default:
		sentinel = apperr.ErrUnavailable
	}
	return fmt.Errorf("client: %s: %w", msg, sentinel)
}

// do performs one JSON request. body is marshaled when non-nil; the response
// is decoded into out when non-nil and the status matches want.
func (c *Client) do(ctx context.Context, method, apiPath string, body, out any, want int) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPath, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("client: %v: %w", err, apperr.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

// Health checks that the server is reachable and returns its version.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out, http.StatusOK)
	return out, err
}

// Tree fetches the notebook tree.
func (c *Client) Tree(ctx context.Context) ([]*tree.Node, error) {
	var out api.TreeResponse
	if err := c.do(ctx, http.MethodGet, "/api/tree", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Children, nil
}

// GetNote fetches one note with its rendered HTML.
func (c *Client) GetNote(ctx context.Context, path string) (*api.Note, error) {
	var out api.Note
	if err := c.do(ctx, http.MethodGet, "/api/notes/"+escapePath(path), nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveNote overwrites a note's content. Any failure is reported as a
// rejected save so callers keep the buffer dirty.
func (c *Client) SaveNote(ctx context.Context, path, content string) (*api.Note, error) {
	var out api.Note
	err := c.do(ctx, http.MethodPut, "/api/notes/"+escapePath(path),
		api.SaveNoteRequest{Content: content}, &out, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("client: save %s: %w: %w", path, apperr.ErrSaveRejected, err)
	}
	return &out, nil
}

// CreateNote creates a new note and returns it with its normalized path.
func (c *Client) CreateNote(ctx context.Context, path, content string) (*api.Note, error) {
	var out api.Note
	err := c.do(ctx, http.MethodPost, "/api/notes",
		api.CreateNoteRequest{Path: path, Content: content}, &out, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameNote moves a note and returns the destination path.
func (c *Client) RenameNote(ctx context.Context, path, newPath string) (string, error) {
	var out api.PathResponse
	err := c.do(ctx, http.MethodPost, "/api/notes/rename",
		api.RenameRequest{SourcePath: path, DestinationPath: newPath}, &out, http.StatusOK)
	return out.Path, err
}

// DeleteNote removes a note.
func (c *Client) DeleteNote(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/notes/"+escapePath(path), nil, nil, http.StatusNoContent)
}

// CreateFolder creates a folder and returns its path.
func (c *Client) CreateFolder(ctx context.Context, path string) (string, error) {
	var out api.PathResponse
	err := c.do(ctx, http.MethodPost, "/api/folders",
		api.CreateFolderRequest{Path: path}, &out, http.StatusCreated)
	return out.Path, err
}

// RenameFolder moves a folder and returns the destination path.
func (c *Client) RenameFolder(ctx context.Context, path, newPath string) (string, error) {
	var out api.PathResponse
	err := c.do(ctx, http.MethodPost, "/api/folders/rename",
		api.RenameRequest{SourcePath: path, DestinationPath: newPath}, &out, http.StatusOK)
	return out.Path, err
}

// DeleteFolder removes a folder and everything in it.
func (c *Client) DeleteFolder(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/folders/"+escapePath(path), nil, nil, http.StatusNoContent)
}

// Search runs a content search.
func (c *Client) Search(ctx context.Context, query string) ([]search.Match, error) {
	var out api.SearchResponse
	err := c.do(ctx, http.MethodGet, "/api/search?q="+url.QueryEscape(query), nil, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Settings fetches the notebook settings.
func (c *Client) Settings(ctx context.Context) (settings.Settings, error) {
	var out api.SettingsResponse
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out, http.StatusOK)
	return out.Settings, err
}

// UpdateSettings applies a partial settings patch and returns the result.
func (c *Client) UpdateSettings(ctx context.Context, patch map[string]any) (settings.Settings, error) {
	var out api.SettingsResponse
	err := c.do(ctx, http.MethodPut, "/api/settings", patch, &out, http.StatusOK)
	return out.Settings, err
}

// ExportNote downloads a note as a standalone HTML document.
func (c *Client) ExportNote(ctx context.Context, path, theme string) (string, []byte, error) {
	target := c.baseURL + "/api/export/notes/" + escapePath(path)
	if theme != "" {
		target += "?theme=" + url.QueryEscape(theme)
	}
	return c.download(ctx, target)
}

// ExportArchive downloads the whole notebook as a zip file.
func (c *Client) ExportArchive(ctx context.Context) (string, []byte, error) {
	return c.download(ctx, c.baseURL+"/api/export/archive")
}

func (c *Client) download(ctx context.Context, target string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, fmt.Errorf("client: build request: %w", err)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("client: %v: %w", err, apperr.ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, statusError(resp)
	}

	filename := "download"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			filename = name
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("client: read download: %w", err)
	}
	return filename, data, nil
}

// PasteImage uploads image bytes for a note and returns the stored path plus
// the markdown snippet that embeds it.
func (c *Client) PasteImage(ctx context.Context, notePath, filename string, data []byte) (*notebook.ImageRef, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("notePath", notePath); err != nil {
		return nil, fmt.Errorf("client: build upload: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("client: build upload: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("client: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("client: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/images/paste", &buf)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %v: %w", err, apperr.ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, statusError(resp)
	}
	var ref notebook.ImageRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return nil, fmt.Errorf("client: decode response: %w", err)
	}
	return &ref, nil
}

// CleanupImages reports or removes unreferenced images.
func (c *Client) CleanupImages(ctx context.Context, dryRun bool) (*notebook.CleanupReport, error) {
	var out notebook.CleanupReport
	err := c.do(ctx, http.MethodPost, "/api/images/cleanup",
		api.CleanupRequest{DryRun: &dryRun}, &out, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Commit commits all notebook changes and pushes them.
func (c *Client) Commit(ctx context.Context, message string) (notebook.SyncResult, error) {
	var out notebook.SyncResult
	err := c.do(ctx, http.MethodPost, "/api/versioning/commit",
		api.CommitRequest{Message: message}, &out, http.StatusOK)
	return out, err
}

// Pull updates the notebook from the remote.
func (c *Client) Pull(ctx context.Context) (vcs.PullResult, error) {
	var out vcs.PullResult
	err := c.do(ctx, http.MethodPost, "/api/versioning/pull", struct{}{}, &out, http.StatusOK)
	return out, err
}

// History lists recent commits.
func (c *Client) History(ctx context.Context, limit int) ([]vcs.Commit, error) {
	var out api.HistoryResponse
	target := "/api/versioning/history"
	if limit > 0 {
		target += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, target, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Commits, nil
}

// Versioning reports the repository status.
func (c *Client) Versioning(ctx context.Context) (notebook.VersioningStatus, error) {
	var out notebook.VersioningStatus
	err := c.do(ctx, http.MethodGet, "/api/versioning/status", nil, &out, http.StatusOK)
	return out, err
}

// Gitignore adds or removes one ignore pattern.
func (c *Client) Gitignore(ctx context.Context, pattern string, remove bool) (bool, error) {
	var out api.ChangedResponse
	err := c.do(ctx, http.MethodPost, "/api/versioning/gitignore",
		api.GitignoreRequest{Pattern: pattern, Remove: remove}, &out, http.StatusOK)
	return out.Changed, err
}

// Event is one change notification from the server.
type Event struct {
	Type string
	Path string
}

// Events subscribes to the server's change feed. The returned channel closes
// when ctx is cancelled or the connection drops.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %v: %w", err, apperr.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var ev Event
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Type = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				var data struct {
					Path string `json:"path"`
				}
				_ = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data)
				ev.Path = data.Path
			case line == "":
				if ev.Type != "" {
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
				ev = Event{}
			}
		}
	}()
	return ch, nil
}
