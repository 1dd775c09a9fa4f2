package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/veldtlabs/bannerlake/pkg/normalize"
)

// ArchivePrefix is where processed drop objects are moved after a successful
// run. Objects already under it (or under the preprocessed prefix) are the
// pipeline's own outputs and must never be re-ingested.
const (
	ArchivePrefix      = "archive/"
	PreprocessedPrefix = "preprocessed/"
)

// SkipObject reports whether a drop object key points at pipeline output
// rather than fresh input.
func SkipObject(key string) bool {
	return strings.HasPrefix(key, ArchivePrefix) || strings.HasPrefix(key, PreprocessedPrefix)
}

// ObjectClient is the slice of the S3 API the drop source uses.
type ObjectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type DropConfig struct {
	Logger *slog.Logger
	Client ObjectClient
	Bucket string
	Key    string

	// Optional; defaults to Bucket, archiving under ArchivePrefix.
	ArchiveBucket string
}

func (c *DropConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Client == nil {
		return fmt.Errorf("client is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	if c.ArchiveBucket == "" {
		c.ArchiveBucket = c.Bucket
	}
	return nil
}

// DropSource reads one CSV object from object storage. The first row is the
// header; its column names are canonicalized before records are built, so a
// header like " Banner ID " matches the normalizer's field contract.
type DropSource struct {
	log *slog.Logger
	cfg DropConfig
}

func NewDropSource(cfg DropConfig) (*DropSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &DropSource{log: cfg.Logger, cfg: cfg}, nil
}

func (s *DropSource) Fetch(ctx context.Context) ([]normalize.Record, error) {
	out, err := s.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", s.cfg.Bucket, s.cfg.Key, err)
	}
	defer out.Body.Close()

	records, err := readCSV(out.Body)
	if err != nil {
		return nil, fmt.Errorf("parse object s3://%s/%s: %w", s.cfg.Bucket, s.cfg.Key, err)
	}

	s.log.Debug("fetched drop object", "bucket", s.cfg.Bucket, "key", s.cfg.Key, "records", len(records))
	return records, nil
}

// Archive moves the processed object under the archive prefix: copy first,
// delete only after the copy succeeds.
func (s *DropSource) Archive(ctx context.Context) error {
	archiveKey := ArchivePrefix + s.cfg.Key
	copySource := fmt.Sprintf("%s/%s", s.cfg.Bucket, s.cfg.Key)

	if _, err := s.cfg.Client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.cfg.ArchiveBucket),
		Key:        aws.String(archiveKey),
		CopySource: aws.String(copySource),
	}); err != nil {
		return fmt.Errorf("copy object to s3://%s/%s: %w", s.cfg.ArchiveBucket, archiveKey, err)
	}

	if _, err := s.cfg.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.cfg.Key),
	}); err != nil {
		return fmt.Errorf("delete object s3://%s/%s: %w", s.cfg.Bucket, s.cfg.Key, err)
	}

	s.log.Info("archived drop object", "from", copySource, "to", fmt.Sprintf("%s/%s", s.cfg.ArchiveBucket, archiveKey))
	return nil
}

// readCSV builds one record per data row. A malformed CSV is a fatal
// precondition failure; ragged rows are part of that, only well-formed
// tabular input proceeds.
func readCSV(r io.Reader) ([]normalize.Record, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = normalize.CanonicalColumn(name)
	}

	var records []normalize.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		rec := make(normalize.Record, len(columns))
		for i, col := range columns {
			if row[i] != "" {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
