package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.png", "b")
	writeFile(t, root, "albums/2024/a.JPG", "a")
	writeFile(t, root, "notes.txt", "n")
	writeFile(t, root, ".hidden/x.png", "x")
	writeFile(t, root, ".DS_Store", "junk")

	t.Run("all visible files", func(t *testing.T) {
		items, err := Dir{Root: root}.Items(context.Background())
		require.NoError(t, err)

		var names []string
		for _, item := range items {
			names = append(names, item.FileName)
		}
		assert.Equal(t, []string{"albums/2024/a.JPG", "b.png", "notes.txt"}, names)
		assert.Equal(t, []byte("a"), items[0].Buffer)
	})

	t.Run("extension filter", func(t *testing.T) {
		items, err := Dir{Root: root, Extensions: []string{".png", ".jpg"}}.Items(context.Background())
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "albums/2024/a.JPG", items[0].FileName)
		assert.Equal(t, "b.png", items[1].FileName)
	})

	t.Run("hidden included", func(t *testing.T) {
		items, err := Dir{Root: root, IncludeHidden: true}.Items(context.Background())
		require.NoError(t, err)
		assert.Len(t, items, 5)
	})

	t.Run("not a directory", func(t *testing.T) {
		_, err := Dir{Root: filepath.Join(root, "b.png")}.Items(context.Background())
		assert.Error(t, err)
	})
}

func TestManifest(t *testing.T) {
	manifest := `[
		{"fileName": "cat.png", "base64": "Y2F0"},
		{"fileName": "", "base64": "Zm9v"},
		{"fileName": "dog.png"}
	]`

	items, err := ReadManifest(strings.NewReader(manifest))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "cat.png", items[0].FileName)
	assert.Equal(t, "Y2F0", items[0].Base64)
	assert.Nil(t, items[0].Buffer)
	assert.Equal(t, "", items[1].FileName)
	assert.Equal(t, "", items[2].Base64)

	_, err = ReadManifest(strings.NewReader(`{"fileName": "x"}`))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))
	fromFile, err := Manifest{Path: path}.Items(context.Background())
	require.NoError(t, err)
	assert.Equal(t, items, fromFile)
}

func TestCollect(t *testing.T) {
	one := Func(func(ctx context.Context) ([]*scopedupload.UploadItem, error) {
		return []*scopedupload.UploadItem{{FileName: "a"}}, nil
	})
	two := Func(func(ctx context.Context) ([]*scopedupload.UploadItem, error) {
		return []*scopedupload.UploadItem{{FileName: "b"}, {FileName: "c"}}, nil
	})
	empty := Func(func(ctx context.Context) ([]*scopedupload.UploadItem, error) {
		return nil, nil
	})
	failing := Func(func(ctx context.Context) ([]*scopedupload.UploadItem, error) {
		return nil, fmt.Errorf("boom")
	})

	items, err := Collect(context.Background(), one, nil, two)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[2].FileName)

	_, err = Collect(context.Background(), empty)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Collect(context.Background(), one, failing)
	assert.ErrorContains(t, err, "boom")
}

// fakeS3 serves objects from memory.
type fakeS3 struct {
	objects map[string]string
	keys    []string
	listErr error
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range f.keys {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{
				Key:  aws.String(key),
				Size: aws.Int64(int64(len(f.objects[key]))),
			})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}
	}
	n := int64(len(body))
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: aws.Int64(n),
		ContentRange:  aws.String(fmt.Sprintf("bytes 0-%d/%d", n-1, n)),
	}, nil
}

func TestS3(t *testing.T) {
	client := &fakeS3{
		objects: map[string]string{
			"uploads/cat.png":        "cat",
			"uploads/albums/dog.jpg": "dog",
			"uploads/albums/":        "",
			"elsewhere/ignored.png":  "x",
		},
		keys: []string{"uploads/albums/", "uploads/albums/dog.jpg", "uploads/cat.png", "elsewhere/ignored.png"},
	}

	items, err := NewS3WithClient(client, S3Config{Bucket: "media", Prefix: "uploads/"}).Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "albums/dog.jpg", items[0].FileName)
	assert.Equal(t, []byte("dog"), items[0].Buffer)
	assert.Equal(t, "cat.png", items[1].FileName)
	assert.Equal(t, []byte("cat"), items[1].Buffer)

	limited, err := NewS3WithClient(client, S3Config{Bucket: "media", Prefix: "uploads/", MaxObjects: 1}).Items(context.Background())
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestS3_ErrorMapping(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{code: "NoSuchBucket", want: ErrBucketNotFound},
		{code: "AccessDenied", want: ErrAccessDenied},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			client := &fakeS3{listErr: &smithy.GenericAPIError{Code: tt.code}}
			_, err := NewS3WithClient(client, S3Config{Bucket: "media"}).Items(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}

	client := &fakeS3{listErr: &smithy.GenericAPIError{Code: "SlowDown"}}
	_, err := NewS3WithClient(client, S3Config{Bucket: "media"}).Items(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBucketNotFound)
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.Error(t, err)
}
