// Package source opens an ingestion source location for reading.
//
// Supported locations:
//   - a local path, or file:///abs/path
//   - gs://bucket/object (Google Cloud Storage, ADC or GCS_CREDENTIALS_JSON)
//   - http:// and https:// (GET with retries on 5xx and transport errors)
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/hashicorp/go-retryablehttp"
	"google.golang.org/api/option"

	"collectwise/internal/logging"
)

// ErrNotFound means the location does not exist (missing file, missing
// object, HTTP 404).
var ErrNotFound = errors.New("source: not found")

// Opener opens locations. The zero value is usable; fields override the
// defaults for tests and tuning.
type Opener struct {
	// HTTP is used for http(s) locations. Nil means a retryable client with
	// three retries.
	HTTP *retryablehttp.Client

	// GCS creates the storage client for gs:// locations. Nil means
	// NewGCSClient.
	GCS func(ctx context.Context) (*storage.Client, error)

	Logger logging.Logger
}

// Open is (&Opener{}).Open.
func Open(ctx context.Context, location string) (io.ReadCloser, error) {
	return (&Opener{}).Open(ctx, location)
}

// Open returns a reader for location. The caller must Close it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("source: empty location")
	}

	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 {
		// Not a URL, or a Windows drive letter.
		return openFile(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return openFile(u.Path)
	case "gs":
		return o.openGCS(ctx, u)
	case "http", "https":
		return o.openHTTP(ctx, location)
	default:
		return nil, fmt.Errorf("source: unsupported scheme %q in %s", u.Scheme, location)
	}
}

func openFile(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return f, nil
}

// NewGCSClient prefers GCS_CREDENTIALS_JSON when set and falls back to
// Application Default Credentials.
func NewGCSClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// gcsReader closes the per-open client together with the object reader.
type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (o *Opener) openGCS(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	bucket := u.Host
	object := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("source: gs location needs bucket and object: %s", u)
	}

	newClient := o.GCS
	if newClient == nil {
		newClient = NewGCSClient
	}
	client, err := newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("source: gcs client: %w", err)
	}

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		_ = client.Close()
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return nil, fmt.Errorf("source: gcs read %s: %w", u, err)
	}
	return &gcsReader{Reader: r, client: client}, nil
}

func (o *Opener) httpClient() *retryablehttp.Client {
	if o.HTTP != nil {
		return o.HTTP
	}
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	if o.Logger != nil {
		c.Logger = o.Logger
	} else {
		c.Logger = nil
	}
	return c
}

func (o *Opener) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	resp, err := o.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: get %s: %w", location, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("source: get %s: unexpected status %s", location, resp.Status)
	}
	return resp.Body, nil
}

// Format guesses the parser format from the location's extension: "xlsx"
// for .xlsx/.xlsm, "json" for .json/.jsonl/.ndjson, otherwise "csv".
func Format(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil && len(u.Scheme) > 1 {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".json", ".jsonl", ".ndjson":
		return "json"
	default:
		return "csv"
	}
}
