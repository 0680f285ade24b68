package autodrive

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sandevgo/memchain/internal/core"
	"github.com/sandevgo/memchain/pkg/log"
)

type uploadOptions struct {
	Compression *compressionOptions `json:"compression,omitempty"`
}

type compressionOptions struct {
	Algorithm string `json:"algorithm"`
	Level     int    `json:"level"`
}

type createUploadRequest struct {
	Filename      string        `json:"filename"`
	MimeType      string        `json:"mimeType,omitempty"`
	UploadOptions uploadOptions `json:"uploadOptions"`
}

type createUploadResponse struct {
	ID string `json:"id"`
}

type completeUploadResponse struct {
	CID string `json:"cid"`
}

// Put uploads data as a single file and returns the CID assigned by Auto
// Drive.
func (c *Client) Put(ctx context.Context, data []byte, meta core.ObjectMeta) (string, error) {
	logger := log.FromCtx(ctx)

	body := data
	opts := uploadOptions{}
	if c.compress {
		compressed, err := deflate(data)
		if err != nil {
			return "", err
		}
		body = compressed
		opts.Compression = &compressionOptions{Algorithm: compressionAlgorithm, Level: 9}
	}

	var created createUploadResponse
	err := c.doJSON(ctx, http.MethodPost, "/uploads/file", createUploadRequest{
		Filename:      meta.Name,
		MimeType:      meta.MimeType,
		UploadOptions: opts,
	}, &created)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create upload: empty upload id")
	}

	for index, offset := 0, 0; offset < len(body) || index == 0; index++ {
		end := min(offset+c.chunkSize, len(body))
		if err := c.uploadChunk(ctx, created.ID, index, body[offset:end]); err != nil {
			return "", fmt.Errorf("upload chunk %d: %w", index, err)
		}
		offset = end
	}

	var completed completeUploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/uploads/"+url.PathEscape(created.ID)+"/complete", nil, &completed); err != nil {
		return "", fmt.Errorf("complete upload: %w", err)
	}
	if completed.CID == "" {
		return "", fmt.Errorf("complete upload: no cid returned")
	}

	logger.Debug().
		Str("upload_id", created.ID).
		Str("cid", completed.CID).
		Int("size", len(data)).
		Int("wire_size", len(body)).
		Msg("auto drive upload complete")
	return completed.CID, nil
}

func (c *Client) uploadChunk(ctx context.Context, uploadID string, index int, chunk []byte) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "chunk")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := form.WriteField("index", strconv.Itoa(index)); err != nil {
		return err
	}
	if err := form.Close(); err != nil {
		return err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/uploads/file/"+url.PathEscape(uploadID)+"/chunk", &buf, form.FormDataContentType())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = readResponse(resp)
	return err
}
