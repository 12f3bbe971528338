// Package artifact locates the screenshots, videos, traces and HTML reports a
// test run uploads to the object store and hands out presigned links to them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/dwsmith1983/runledger/pkg/types"
)

// DefaultURLExpiry is how long presigned links stay valid.
const DefaultURLExpiry = time.Hour

const (
	prefixReports   = "reports"
	prefixArtifacts = "artifacts"
	prefixMetadata  = "metadata"

	reportIndex  = "index.html"
	metadataFile = "metadata.json"
)

// Locator maps runs onto object-store paths.
type Locator struct {
	store  ObjectStore
	expiry time.Duration
	logger *slog.Logger
}

// Option configures a Locator.
type Option func(*Locator)

// WithURLExpiry overrides DefaultURLExpiry.
func WithURLExpiry(d time.Duration) Option {
	return func(l *Locator) {
		if d > 0 {
			l.expiry = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locator) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocator creates a locator over store.
func NewLocator(store ObjectStore, opts ...Option) *Locator {
	l := &Locator{store: store, expiry: DefaultURLExpiry, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// RunPrefix returns root/{brand}/{env}/{ts}/ for a run started at ts.
func RunPrefix(root string, brand types.Brand, env types.Environment, ts time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s/", root, brand, env, NormalizeTime(ts))
}

// ReportsPrefix is where the HTML report of a run lives.
func ReportsPrefix(brand types.Brand, env types.Environment, ts time.Time) string {
	return RunPrefix(prefixReports, brand, env, ts)
}

// ArtifactsPrefix is where raw test artifacts of a run live.
func ArtifactsPrefix(brand types.Brand, env types.Environment, ts time.Time) string {
	return RunPrefix(prefixArtifacts, brand, env, ts)
}

// MetadataPrefix is where the run metadata document lives.
func MetadataPrefix(brand types.Brand, env types.Environment, ts time.Time) string {
	return RunPrefix(prefixMetadata, brand, env, ts)
}

// Kind is the artifact category derived from a file extension.
type Kind int

const (
	KindReport Kind = iota
	KindScreenshot
	KindVideo
	KindTrace
)

// Classify returns the category of key by its extension, case-insensitively.
func Classify(key string) Kind {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(key), ".")) {
	case "png", "jpg", "jpeg":
		return KindScreenshot
	case "webm", "mp4":
		return KindVideo
	case "zip":
		return KindTrace
	default:
		return KindReport
	}
}

// Artifacts lists and classifies every object under the run's reports and
// artifacts prefixes, each with a presigned link. The HTML report and the
// metadata file are linked separately when present.
func (l *Locator) Artifacts(ctx context.Context, brand types.Brand, env types.Environment, ts time.Time) (*types.Artifacts, error) {
	out := types.NewArtifacts()
	var err error
	if out.HTMLReportURL, err = l.ReportURL(ctx, brand, env, ts); err != nil {
		return nil, err
	}
	if out.Metadata, err = l.MetadataURL(ctx, brand, env, ts); err != nil {
		return nil, err
	}
	for _, prefix := range []string{ReportsPrefix(brand, env, ts), ArtifactsPrefix(brand, env, ts)} {
		objects, err := l.store.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		for _, obj := range objects {
			if strings.HasSuffix(obj.Key, "/") {
				continue
			}
			url, err := l.store.PresignGet(ctx, obj.Key, l.expiry)
			if err != nil {
				return nil, fmt.Errorf("presigning %s: %w", obj.Key, err)
			}
			item := types.ArtifactItem{Key: obj.Key, URL: url, Size: obj.Size, LastModified: obj.LastModified}
			switch Classify(obj.Key) {
			case KindScreenshot:
				out.Screenshots = append(out.Screenshots, item)
			case KindVideo:
				out.Videos = append(out.Videos, item)
			case KindTrace:
				out.Traces = append(out.Traces, item)
			default:
				out.Reports = append(out.Reports, item)
			}
		}
	}
	return out, nil
}

// ReportURL returns a presigned link to the run's index.html, or "" if the
// report was never uploaded.
func (l *Locator) ReportURL(ctx context.Context, brand types.Brand, env types.Environment, ts time.Time) (string, error) {
	return l.presignIfExists(ctx, ReportsPrefix(brand, env, ts)+reportIndex)
}

// MetadataURL returns a presigned link to the run's metadata.json, or "".
func (l *Locator) MetadataURL(ctx context.Context, brand types.Brand, env types.Environment, ts time.Time) (string, error) {
	return l.presignIfExists(ctx, MetadataPrefix(brand, env, ts)+metadataFile)
}

func (l *Locator) presignIfExists(ctx context.Context, key string) (string, error) {
	if _, err := l.store.Stat(ctx, key); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("checking %s: %w", key, err)
	}
	url, err := l.store.PresignGet(ctx, key, l.expiry)
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return url, nil
}

// Ping reports whether the bucket is reachable.
func (l *Locator) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Usage is the object count and total size under a prefix.
type Usage struct {
	Prefix  string `json:"prefix"`
	Objects int    `json:"objects"`
	Bytes   int64  `json:"bytes"`
}

// Usage totals the objects stored under prefix. An empty prefix covers the
// whole bucket.
func (l *Locator) Usage(ctx context.Context, prefix string) (Usage, error) {
	objects, err := l.store.List(ctx, prefix)
	if err != nil {
		return Usage{}, fmt.Errorf("listing %s: %w", prefix, err)
	}
	u := Usage{Prefix: prefix, Objects: len(objects)}
	for _, obj := range objects {
		u.Bytes += obj.Size
	}
	l.logger.Debug("computed bucket usage", "prefix", prefix, "objects", u.Objects, "bytes", u.Bytes)
	return u, nil
}
