package images

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestDetect(t *testing.T) {
	ct, err := Detect(pngPixel)
	require.NoError(t, err)
	require.Equal(t, "image/png", ct)

	_, err = Detect([]byte("plain text, not a picture"))
	require.ErrorIs(t, err, ErrNotImage)
}

func TestUpload(t *testing.T) {
	client := &fakeS3{}
	s := NewWithClient(client, "market", "https://cdn.example.com/market/")
	s.now = func() time.Time { return time.Date(2026, 4, 9, 0, 0, 0, 0, time.UTC) }

	img, err := s.Upload(context.Background(), FolderProducts, pngPixel)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(img.ID, "products/2026/04/"))
	require.True(t, strings.HasSuffix(img.ID, ".png"))
	require.Equal(t, "https://cdn.example.com/market/"+img.ID, img.URL)

	require.Len(t, client.puts, 1)
	require.Equal(t, "market", aws.ToString(client.puts[0].Bucket))
	require.Equal(t, "image/png", aws.ToString(client.puts[0].ContentType))
	require.EqualValues(t, len(pngPixel), aws.ToInt64(client.puts[0].ContentLength))
}

func TestUploadRejectsNonImage(t *testing.T) {
	client := &fakeS3{}
	s := NewWithClient(client, "market", "https://cdn")

	_, err := s.Upload(context.Background(), FolderAvatars, []byte("%PDF-1.4"))
	require.ErrorIs(t, err, ErrNotImage)
	require.Empty(t, client.puts)
}

func TestDelete(t *testing.T) {
	client := &fakeS3{}
	s := NewWithClient(client, "market", "https://cdn")

	require.NoError(t, s.Delete(context.Background(), "avatars/2026/04/x.png"))
	require.Equal(t, []string{"avatars/2026/04/x.png"}, client.deletes)

	client.err = errors.New("boom")
	require.ErrorContains(t, s.Delete(context.Background(), "k"), "images.Delete: boom")
}
