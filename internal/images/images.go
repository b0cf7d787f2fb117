// Package images stores avatar and product pictures in an S3 compatible bucket.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var ErrNotImage = errors.New("file is not an image")

const (
	FolderAvatars  = "avatars"
	FolderProducts = "products"
)

// S3API is the part of *s3.Client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Storage struct {
	client        S3API
	bucket        string
	publicBaseURL string
	now           func() time.Time
}

func New(ctx context.Context, cfg config.S3) (*Storage, error) {
	const op = "images.New"

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func NewWithClient(client S3API, bucket, publicBaseURL string) *Storage {
	return &Storage{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

// Detect sniffs the content type and rejects anything that is not an image.
func Detect(data []byte) (string, error) {
	mt, err := detect(data)
	if err != nil {
		return "", err
	}

	return mt.String(), nil
}

func detect(data []byte) (*mimetype.MIME, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}

	return mt, nil
}

// Upload stores data under folder and returns its public URL. The object key
// doubles as the image id.
func (s *Storage) Upload(ctx context.Context, folder string, data []byte) (models.Image, error) {
	const op = "images.Upload"

	mt, err := detect(data)
	if err != nil {
		return models.Image{}, err
	}

	key := s.key(folder, mt.Extension())

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mt.String()),
	})
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.Image{
		URL: s.publicBaseURL + "/" + key,
		ID:  key,
	}, nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	const op = "images.Delete"

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) key(folder, ext string) string {
	d := s.now()
	if ext == "" {
		ext = ".bin"
	}

	return fmt.Sprintf("%s/%d/%02d/%s%s", folder, d.Year(), d.Month(), uuid.New(), ext)
}
