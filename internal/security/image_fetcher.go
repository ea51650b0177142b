package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"
)

// ErrImageTooLarge は取得した画像がサイズ上限を超えたことを示す。
var ErrImageTooLarge = errors.New("remote image exceeds size limit")

// RemoteImage はURLから取得した画像。
type RemoteImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageFetcher はユーザーが指定した画像URLをSSRF対策付きで取得する。
type ImageFetcher struct {
	client   *http.Client
	maxBytes int64
	validate func(rawURL string) error
}

// NewImageFetcher はsafeurlクライアントを使うImageFetcherを生成する。
func NewImageFetcher(timeout time.Duration, maxBytes int64) *ImageFetcher {
	return &ImageFetcher{
		client:   NewSafeClient(timeout),
		maxBytes: maxBytes,
		validate: ValidateURL,
	}
}

// Fetch は画像をダウンロードする。
// 本文はmaxBytesまでしか読まず、超過した場合は ErrImageTooLarge を返す。
// Content-Typeの妥当性は呼び出し側で検証する。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*RemoteImage, error) {
	if err := f.validate(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, ErrImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrImageTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}

	return &RemoteImage{
		Filename:    filenameFromURL(rawURL),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "image"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}
