// Package report records the outcome of one CLI run and stores it.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/agenthands/scigraph/internal/config"
	"github.com/agenthands/scigraph/internal/core/stats"
)

type Report struct {
	RunID      string         `json:"runId"`
	Command    string         `json:"command"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Stats      stats.RunStats `json:"stats"`
	Error      string         `json:"error,omitempty"`
}

func New(command string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Command:   command,
		StartedAt: time.Now().UTC(),
		Stats:     stats.New(),
	}
}

func (r *Report) Finish(res stats.RunStats, err error) {
	r.FinishedAt = time.Now().UTC()
	r.Stats = res
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Name is the object name a sink stores the report under.
func (r *Report) Name() string {
	return fmt.Sprintf("%s_%s_%s.json", r.StartedAt.Format("20060102T150405Z"), r.Command, r.RunID)
}

type Sink interface {
	Write(ctx context.Context, r *Report) (location string, err error)
}

// NewSink builds the sink selected by cfg.Sink.
func NewSink(ctx context.Context, cfg config.ReportConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "none":
		return NopSink{}, nil
	case "file":
		return &FileSink{Dir: cfg.Dir}, nil
	case "s3":
		return NewS3Sink(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown report sink %q", cfg.Sink)
	}
}

type NopSink struct{}

func (NopSink) Write(context.Context, *Report) (string, error) { return "", nil }

type FileSink struct {
	Dir string
}

func (s *FileSink) Write(ctx context.Context, r *Report) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	p := filepath.Join(s.Dir, r.Name())
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// PutObjectAPI is the slice of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Sink struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

// NewS3Sink connects to AWS S3 or, when S3Endpoint is set, to an
// S3-compatible store addressed path-style.
func NewS3Sink(ctx context.Context, cfg config.ReportConfig) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3Key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Sink{Client: client, Bucket: cfg.S3Bucket, Prefix: cfg.S3Prefix}, nil
}

func (s *S3Sink) Write(ctx context.Context, r *Report) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	key := path.Join(s.Prefix, r.Name())
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload report to s3://%s/%s: %w", s.Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.Bucket, key), nil
}
