package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type Config struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
	Prefix       string
}

// ObjectPutter is the part of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver keeps the raw payment gateway payloads in an S3 bucket for audit.
type Archiver struct {
	cfg    Config
	client ObjectPutter
	now    func() time.Time
}

func NewArchiver(cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return NewArchiverWithClient(cfg, s3.New(options)), nil
}

func NewArchiverWithClient(cfg Config, client ObjectPutter) *Archiver {
	if cfg.Prefix == "" {
		cfg.Prefix = "payments"
	}
	return &Archiver{
		cfg:    cfg,
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchivePayment stores one webhook body and returns its object key.
func (a *Archiver) ArchivePayment(ctx context.Context, paymentID string, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("no payload to archive")
	}

	key := a.paymentKey(paymentID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"payment-id": paymentID},
	})
	if err != nil {
		return "", fmt.Errorf("archive payload to s3: %w", err)
	}
	return key, nil
}

func (a *Archiver) paymentKey(paymentID string) string {
	now := a.now()
	name := sanitizeKeyPart(paymentID)
	if name == "" {
		name = "unknown"
	}
	prefix := strings.Trim(a.cfg.Prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), name+"-"+uuid.NewString()+".json")
}

func sanitizeKeyPart(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
