package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"connection/internal/connection/models"
	"connection/internal/connection/view"
)

const dateLayout = models.CalendarDateLayout

var header = []string{
	"registry_id", "person_id", "first_name", "last_name", "submission_date",
	"programme_name", "membership_type", "membership_end_date",
	"designated_body_code", "tcs_designated_body_code", "programme_owner", "connection_status",
}

// ObjectPutter is the slice of the S3 client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds construction parameters for the S3 client.
type S3Config struct {
	Region          string
	Endpoint        string // optional, for MinIO or localstack
	PathStyle       bool
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string
}

// NewS3Client builds an S3 client from cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Result identifies an uploaded export.
type Result struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Rows   int    `json:"rows"`
}

// Exporter writes the discrepancy view as CSV to a bucket.
type Exporter struct {
	store  view.Store
	client ObjectPutter
	bucket string
	prefix string
	logger *slog.Logger
	clock  func() time.Time
}

type Option func(*Exporter)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPrefix sets the object key prefix. Defaults to "discrepancies/".
func WithPrefix(prefix string) Option {
	return func(e *Exporter) {
		e.prefix = prefix
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *Exporter) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func New(store view.Store, client ObjectPutter, bucket string, opts ...Option) (*Exporter, error) {
	if store == nil || client == nil {
		return nil, fmt.Errorf("store and s3 client are required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	e := &Exporter{
		store:  store,
		client: client,
		bucket: bucket,
		prefix: "discrepancies/",
		logger: slog.New(slog.DiscardHandler),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Export pages through every row matching criteria and uploads one CSV.
// Paging fields on criteria are ignored.
func (e *Exporter) Export(ctx context.Context, criteria models.Criteria) (Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return Result{}, fmt.Errorf("write csv header: %w", err)
	}

	criteria.PageSize = models.MaxPageSize
	criteria.Page = 0
	criteria = criteria.Normalize()
	rows := 0
	for {
		page, err := e.store.Search(ctx, criteria)
		if err != nil {
			return Result{}, fmt.Errorf("read %s page %d: %w", e.store.View(), criteria.Page, err)
		}
		for i := range page.Records {
			if err := w.Write(row(&page.Records[i])); err != nil {
				return Result{}, fmt.Errorf("write csv row: %w", err)
			}
			rows++
		}
		criteria.Page++
		if len(page.Records) == 0 || criteria.Page >= page.TotalPages {
			break
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Result{}, fmt.Errorf("flush csv: %w", err)
	}

	key := e.prefix + e.clock().UTC().Format("20060102T150405Z") + ".csv"
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "discrepancy export upload failed", "bucket", e.bucket, "key", key, "error", err)
		return Result{}, fmt.Errorf("upload export: %w", err)
	}
	e.logger.InfoContext(ctx, "discrepancy export uploaded", "bucket", e.bucket, "key", key, "rows", rows)
	return Result{Bucket: e.bucket, Key: key, Rows: rows}, nil
}

func row(p *models.Projection) []string {
	return []string{
		p.RegistryID, p.PersonID, p.FirstName, p.LastName, formatDate(p.SubmissionDate),
		p.ProgrammeName, p.MembershipType, formatDate(p.MembershipEndDate),
		p.DesignatedBodyCode, p.TCSDesignatedBodyCode, p.ProgrammeOwner, p.ConnectionStatus,
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
