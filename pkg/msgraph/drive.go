package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/enel-control/enel-cli/internal/collab"
)

// Uploads above simpleUploadLimit go through an upload session in chunks of
// uploadChunk bytes, a multiple of 320 KiB as OneDrive requires.
const (
	simpleUploadLimit = 4 << 20
	uploadChunk       = 12 * 320 << 10
)

type driveItem struct {
	Name                 string    `json:"name"`
	Size                 int64     `json:"size"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	Folder               *struct{} `json:"folder"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// fullPath joins p under the configured root.
func (c *httpClient) fullPath(p string) string {
	return strings.Trim(path.Join(c.root, path.Clean("/"+p)), "/")
}

// itemURL addresses a drive item by path, with an optional trailing
// segment such as "content" or "children".
func (c *httpClient) itemURL(p, suffix string) string {
	full := c.fullPath(p)
	if full == "" {
		if suffix == "" {
			return fmt.Sprintf("%s/%s/drive/root", c.baseURL, c.owner)
		}
		return fmt.Sprintf("%s/%s/drive/root/%s", c.baseURL, c.owner, suffix)
	}
	segs := strings.Split(full, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	u := fmt.Sprintf("%s/%s/drive/root:/%s", c.baseURL, c.owner, strings.Join(segs, "/"))
	if suffix != "" {
		u += ":/" + suffix
	}
	return u
}

// Read downloads a file. A missing file yields collab.ErrNotFound.
func (c *httpClient) Read(ctx context.Context, p string) ([]byte, error) {
	data, err := c.do(ctx, request{op: "read " + p, method: http.MethodGet, url: c.itemURL(p, "content")})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write creates or replaces a file, creating parent folders as needed.
func (c *httpClient) Write(ctx context.Context, p string, data []byte) error {
	if len(data) <= simpleUploadLimit {
		_, err := c.do(ctx, request{
			op:          "write " + p,
			method:      http.MethodPut,
			url:         c.itemURL(p, "content"),
			body:        data,
			contentType: "application/octet-stream",
		})
		return err
	}
	return c.writeSession(ctx, p, data)
}

type uploadSession struct {
	UploadURL string `json:"uploadUrl"`
}

func (c *httpClient) writeSession(ctx context.Context, p string, data []byte) error {
	body, err := json.Marshal(map[string]any{
		"item": map[string]string{"@microsoft.graph.conflictBehavior": "replace"},
	})
	if err != nil {
		return eris.Wrap(err, "msgraph: marshal upload session")
	}
	raw, err := c.do(ctx, request{
		op:          "create upload session " + p,
		method:      http.MethodPost,
		url:         c.itemURL(p, "createUploadSession"),
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	var sess uploadSession
	if err := json.Unmarshal(raw, &sess); err != nil || sess.UploadURL == "" {
		return eris.Errorf("msgraph: invalid upload session for %s", p)
	}

	total := len(data)
	for start := 0; start < total; start += uploadChunk {
		end := min(start+uploadChunk, total)
		if _, err := c.doChunk(ctx, sess.UploadURL, data[start:end], start, end, total); err != nil {
			return eris.Wrapf(err, "msgraph: upload %s bytes %d-%d", p, start, end-1)
		}
	}
	return nil
}

func (c *httpClient) doChunk(ctx context.Context, uploadURL string, chunk []byte, start, end, total int) ([]byte, error) {
	return c.do(ctx, request{
		op:          "upload chunk",
		method:      http.MethodPut,
		url:         uploadURL,
		body:        chunk,
		contentType: "application/octet-stream",
		headers:     map[string]string{"Content-Range": fmt.Sprintf("bytes %d-%d/%d", start, end-1, total)},
		raw:         true,
	})
}

// Rename changes the last path element of a file or folder.
func (c *httpClient) Rename(ctx context.Context, p, newName string) error {
	if newName == "" || strings.Contains(newName, "/") {
		return eris.Errorf("msgraph: invalid name %q", newName)
	}
	body, err := json.Marshal(map[string]string{"name": newName})
	if err != nil {
		return eris.Wrap(err, "msgraph: marshal rename")
	}
	_, err = c.do(ctx, request{
		op:          "rename " + p,
		method:      http.MethodPatch,
		url:         c.itemURL(p, ""),
		body:        body,
		contentType: "application/json",
	})
	return err
}

// List returns the direct children of a folder.
func (c *httpClient) List(ctx context.Context, p string) ([]collab.BlobEntry, error) {
	dir := strings.Trim(path.Clean("/"+p), "/")
	next := c.itemURL(p, "children")

	var out []collab.BlobEntry
	for next != "" {
		var page childrenPage
		if err := c.getJSON(ctx, "list "+p, next, &page); err != nil {
			return nil, err
		}
		for _, it := range page.Value {
			out = append(out, collab.BlobEntry{
				Name:     it.Name,
				Path:     strings.TrimPrefix(path.Join(dir, it.Name), "/"),
				Size:     it.Size,
				IsFolder: it.Folder != nil,
				Modified: it.LastModifiedDateTime,
			})
		}
		next = page.NextLink
	}
	return out, nil
}
