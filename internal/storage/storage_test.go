package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	existsFn func(bucket string) (bool, error)
	made     []string
	put      map[string]string
	removed  []string
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(bucket)
	}
	return true, nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, _ string, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if f.put == nil {
		f.put = map[string]string{}
	}
	f.put[key] = opts.ContentType + ":" + string(body)
	return minio.UploadInfo{Key: key}, nil
}

func (f *fakeObjects) RemoveObject(_ context.Context, _ string, key string, _ minio.RemoveObjectOptions) error {
	f.removed = append(f.removed, key)
	return nil
}

func TestKeyLayout(t *testing.T) {
	key := Key("c-1", "p-1", "Floor Plan (v2).pdf")
	assert.True(t, strings.HasPrefix(key, "creators/c-1/p-1/"), key)
	assert.True(t, strings.HasSuffix(key, "-Floor_Plan_v2_.pdf"), key)

	shared := Key("c-1", "", `..\..\etc/passwd`)
	assert.True(t, strings.HasPrefix(shared, "creators/c-1/shared/"), shared)
	assert.True(t, strings.HasSuffix(shared, "-passwd"), shared)

	assert.True(t, strings.HasSuffix(Key("c-1", "", "..."), "-file"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		size        int64
		contentType string
		want        error
	}{
		{"image", 1024, "image/jpeg", nil},
		{"video with params", 1024, "video/mp4; codecs=avc1", nil},
		{"pdf", 1024, "application/pdf", nil},
		{"exact limit", MaxUploadBytes, "image/png", nil},
		{"too large", MaxUploadBytes + 1, "image/png", ErrTooLarge},
		{"empty", 0, "image/png", ErrEmpty},
		{"zip", 1024, "application/zip", ErrUnsupportedType},
		{"missing type", 1024, "", ErrUnsupportedType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.size, tt.contentType))
		})
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeObjects{existsFn: func(string) (bool, error) { return false, nil }}
	s := newStore(fake, "tour-assets", "http://minio:9000", nil)

	require.NoError(t, s.EnsureBucket(context.Background()))
	assert.Equal(t, []string{"tour-assets"}, fake.made)
}

func TestEnsureBucketPropagatesError(t *testing.T) {
	fake := &fakeObjects{existsFn: func(string) (bool, error) { return false, errors.New("denied") }}
	s := newStore(fake, "tour-assets", "http://minio:9000", nil)

	err := s.EnsureBucket(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tour-assets")
	assert.Empty(t, fake.made)
}

func TestPutRemoveAndPublicURL(t *testing.T) {
	fake := &fakeObjects{}
	s := newStore(fake, "tour-assets", "http://minio:9000/", nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "creators/c-1/shared/a b.png", strings.NewReader("png"), 3, "image/png"))
	assert.Equal(t, "image/png:png", fake.put["creators/c-1/shared/a b.png"])

	require.NoError(t, s.Remove(ctx, "creators/c-1/shared/a b.png"))
	assert.Equal(t, []string{"creators/c-1/shared/a b.png"}, fake.removed)

	assert.Equal(t, "http://minio:9000/tour-assets/creators/c-1/shared/a%20b.png", s.PublicURL("creators/c-1/shared/a b.png"))
}
