package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/checkoor/pkg/config"
	"github.com/ethpandaops/checkoor/pkg/results"
	"github.com/sirupsen/logrus"
)

// ErrRunNotUploaded is returned for a remote run without a run summary.
var ErrRunNotUploaded = errors.New("run summary not found in bucket")

// objectReader is the part of the S3 client Remote needs.
type objectReader interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Remote reads uploaded runs back from S3-compatible storage.
type Remote struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client objectReader
}

// NewRemote creates a new Remote from the given configuration.
func NewRemote(log logrus.FieldLogger, cfg *config.S3UploadConfig) *Remote {
	return &Remote{
		log:    log.WithField("component", "s3-remote"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}
}

// ListRuns returns the names of the run directories under the prefix.
func (r *Remote) ListRuns(ctx context.Context) ([]string, error) {
	prefix := resolvePrefix(r.cfg.Prefix) + "/"

	var runs []string

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing prefixes under %q: %w", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				runs = append(runs, strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/"))
			}
		}
	}

	r.log.WithField("runs", len(runs)).Debug("Listed remote runs")

	return runs, nil
}

// FetchRun downloads and decodes the run summary of an uploaded run.
func (r *Remote) FetchRun(ctx context.Context, name string) (*results.RunResult, error) {
	key := resolvePrefix(r.cfg.Prefix) + "/" + name + "/" + results.ResultFileName

	data, err := r.getObject(ctx, key)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotUploaded, name)
	}

	var run results.RunResult
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", key, err)
	}

	return &run, nil
}

// getObject returns the contents of the given key.
// If the key does not exist, it returns (nil, nil).
func (r *Remote) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

// isS3NotFound returns true if the error indicates the object does not exist.
func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	// Some S3-compatible implementations return a generic error with
	// "NoSuchKey" in the message rather than the typed error.
	return strings.Contains(err.Error(), "NoSuchKey")
}
