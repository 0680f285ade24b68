package autodrive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Get downloads the object stored under cid, inflating it if it was
// uploaded compressed.
func (c *Client) Get(ctx context.Context, cid string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/objects/"+url.PathEscape(cid)+"/download", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", cid, err)
	}
	return inflate(data)
}
