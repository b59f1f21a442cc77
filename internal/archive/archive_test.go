package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yok-tottii/meetscribe/internal/logger"
)

type fakePutter struct {
	failures int
	calls    int
	keys     []string
	bodies   [][]byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 slow down")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func testConfig() S3Config {
	return S3Config{Bucket: "meetings", Prefix: "/team/", AccessKeyID: "id", SecretAccessKey: "secret"}
}

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestS3Config_IsConfigured(t *testing.T) {
	assert.True(t, testConfig().IsConfigured())
	assert.False(t, S3Config{Bucket: "b"}.IsConfigured())
	assert.False(t, S3Config{}.IsConfigured())
}

func TestS3Config_Redacted(t *testing.T) {
	cfg := testConfig()
	red := cfg.Redacted()
	assert.Equal(t, "********", red.SecretAccessKey)
	assert.Equal(t, "secret", cfg.SecretAccessKey)
	assert.Empty(t, S3Config{}.Redacted().SecretAccessKey)
}

func TestNewUploader_NotConfigured(t *testing.T) {
	_, err := NewUploader(S3Config{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUploader_Key(t *testing.T) {
	u := newUploader(&fakePutter{}, testConfig(), logger.Nop())
	assert.Equal(t, "team/20250101_120000/20250101_120000.wav", u.Key("20250101_120000", "/tmp/rec/20250101_120000.wav"))

	u = newUploader(&fakePutter{}, S3Config{Bucket: "b"}, logger.Nop())
	assert.Equal(t, "s1/t.txt", u.Key("s1", "t.txt"))
}

func TestUploader_UploadRetries(t *testing.T) {
	fake := &fakePutter{failures: 2}
	u := newUploader(fake, testConfig(), logger.Nop())
	u.delay, u.maxDelay = time.Millisecond, 2*time.Millisecond

	p := writeArtifact(t, "transcript.txt", "hello")
	key, err := u.Upload(context.Background(), "s1", p)
	require.NoError(t, err)

	assert.Equal(t, "team/s1/transcript.txt", key)
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, []byte("hello"), fake.bodies[0])
}

func TestUploader_UploadGivesUp(t *testing.T) {
	fake := &fakePutter{failures: 10}
	u := newUploader(fake, testConfig(), logger.Nop())
	u.delay, u.maxDelay = time.Millisecond, time.Millisecond

	_, err := u.Upload(context.Background(), "s1", writeArtifact(t, "a.pdf", "%PDF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503 slow down")
	assert.Equal(t, 3, fake.calls)
}

func TestUploader_UploadAllSkipsEmpty(t *testing.T) {
	fake := &fakePutter{}
	u := newUploader(fake, testConfig(), logger.Nop())

	a := writeArtifact(t, "a.wav", "RIFF")
	b := writeArtifact(t, "b.txt", "text")
	keys, err := u.UploadAll(context.Background(), "s2", a, "", b)
	require.NoError(t, err)
	assert.Equal(t, []string{"team/s2/a.wav", "team/s2/b.txt"}, keys)
}

func TestUploader_MissingFile(t *testing.T) {
	u := newUploader(&fakePutter{}, testConfig(), logger.Nop())
	u.delay, u.maxDelay = time.Millisecond, time.Millisecond

	_, err := u.Upload(context.Background(), "s1", filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestUploader_UploadStopsOnCancel(t *testing.T) {
	fake := &fakePutter{failures: 10}
	u := newUploader(fake, testConfig(), logger.Nop())
	u.delay, u.maxDelay = time.Hour, time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := u.Upload(ctx, "s1", writeArtifact(t, "a.txt", "x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.calls)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/wav", contentType("x.WAV"))
	assert.Equal(t, "application/pdf", contentType("x.pdf"))
	assert.Equal(t, "text/plain; charset=utf-8", contentType("x.txt"))
	assert.Equal(t, "application/octet-stream", contentType("x.bin"))
}
