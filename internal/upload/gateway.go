// Package upload is the client for the media upload gateway. Files go out as
// multipart posts; large images are downscaled on-device first so mobile
// uplinks do not carry full camera resolution.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/apperr"
	"github.com/fathima-sithara/chatsync/internal/model"
)

// maxImageDim is the longest allowed edge of an uploaded image; anything
// larger is fit into this box before upload.
const maxImageDim = 2048

type Result struct {
	URL  string               `json:"url"`
	Kind model.AttachmentKind `json:"kind"`
	Name string               `json:"-"`
	Size int64                `json:"-"`
}

type Gateway struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewGateway(baseURL, token string, timeout time.Duration, log *zap.SugaredLogger) *Gateway {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// KindFor infers the attachment kind from the filename's MIME type.
func KindFor(filename string) model.AttachmentKind {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return model.KindImage
	case strings.HasPrefix(ct, "video/"):
		return model.KindVideo
	case strings.HasPrefix(ct, "audio/"):
		return model.KindAudio
	default:
		return model.KindFile
	}
}

// Upload posts one file to the gateway and returns its public URL and kind.
// Uploads are not retried: the gateway does not deduplicate, and a retried
// upload would orphan the first copy.
func (g *Gateway) Upload(ctx context.Context, filename string, r io.Reader) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, err
	}
	kind := KindFor(filename)
	if kind == model.KindImage {
		data = g.downscale(filename, data)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return Result{}, err
	}
	if _, err := fw.Write(data); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/upload", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Result{}, fmt.Errorf("%w: upload status %d: %s", apperr.ErrNetwork, resp.StatusCode, b)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, err
	}
	if out.Kind == "" {
		out.Kind = kind
	}
	out.Name = filepath.Base(filename)
	out.Size = int64(len(data))
	return out, nil
}

// downscale fits oversized images into the maxImageDim box. Undecodable
// data is uploaded as-is; the gateway does its own validation.
func (g *Gateway) downscale(filename string, data []byte) []byte {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	b := img.Bounds()
	if b.Dx() <= maxImageDim && b.Dy() <= maxImageDim {
		return data
	}
	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		return data
	}
	fitted := imaging.Fit(img, maxImageDim, maxImageDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, format); err != nil {
		g.log.Debugw("image downscale failed, uploading original", "file", filename, "err", err)
		return data
	}
	return buf.Bytes()
}
