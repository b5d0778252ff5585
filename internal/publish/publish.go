package publish

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/preview"
)

// Object is one uploaded file.
type Object struct {
	Key          string
	Size         int64
	ContentType  string
	CacheControl string
}

// Result describes a finished upload.
type Result struct {
	Bucket   string
	Objects  []Object
	Duration time.Duration
}

// TotalSize returns the number of bytes uploaded.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, o := range r.Objects {
		total += o.Size
	}
	return total
}

// Publisher uploads a build output directory to a bucket.
type Publisher struct {
	client    ObjectPutter
	bucket    string
	prefix    string
	outDir    string
	assetsDir string
	logger    *slog.Logger
}

// New creates a Publisher for cfg's output directory and publish settings.
func New(cfg *config.Config, client ObjectPutter, logger *slog.Logger) (*Publisher, error) {
	if cfg.Publish.Bucket == "" {
		return nil, errors.New("E401").
			WithSuggestion("devpack publish --bucket my-site")
	}
	return &Publisher{
		client:    client,
		bucket:    cfg.Publish.Bucket,
		prefix:    strings.Trim(cfg.Publish.Prefix, "/"),
		outDir:    cfg.OutputPath(),
		assetsDir: cfg.Build.AssetsDir,
		logger:    logging.OrDefault(logger),
	}, nil
}

// Key returns the object key for rel, a slash separated path inside
// outDir.
func (p *Publisher) Key(rel string) string {
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// Publish uploads every file under outDir. Files are uploaded in lexical
// order and the first failure stops the upload.
func (p *Publisher) Publish(ctx context.Context) (*Result, error) {
	start := time.Now()
	if err := preview.CheckOutput(p.outDir); err != nil {
		return nil, err
	}

	result := &Result{Bucket: p.bucket}
	err := filepath.WalkDir(p.outDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(p.outDir, file)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		obj, err := p.upload(ctx, file, rel)
		if err != nil {
			return errors.New("E400").
				WithDetail(fmt.Sprintf("uploading %s to s3://%s/%s", rel, p.bucket, p.Key(rel))).
				Wrap(err)
		}
		p.logger.Debug("uploaded", slog.String("key", obj.Key), slog.Int64("size", obj.Size))
		result.Objects = append(result.Objects, obj)
		return nil
	})
	if err != nil {
		if errors.HasCode(err, "E400") {
			return nil, err
		}
		return nil, errors.New("E400").Wrap(err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("published",
		slog.String("bucket", p.bucket),
		slog.String("prefix", p.prefix),
		slog.Int("files", len(result.Objects)),
		slog.Duration("duration", result.Duration.Round(time.Millisecond)))
	return result, nil
}

func (p *Publisher) upload(ctx context.Context, file, rel string) (Object, error) {
	f, err := os.Open(file)
	if err != nil {
		return Object{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Object{}, err
	}

	obj := Object{
		Key:          p.Key(rel),
		Size:         info.Size(),
		ContentType:  ContentType(rel),
		CacheControl: preview.CachePolicy(p.assetsDir, rel),
	}
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(obj.Key),
		Body:          f,
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String(obj.ContentType),
		CacheControl:  aws.String(obj.CacheControl),
	})
	if err != nil {
		return Object{}, err
	}
	return obj, nil
}

// ContentType returns the MIME type for name.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
