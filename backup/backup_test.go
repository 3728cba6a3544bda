package backup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	// GIVEN: An uploader with a fixed clock
	// WHEN: Uploading a workbook
	// THEN: One object lands under backups/ with a timestamped key
	fake := &fakeS3{}
	logger, _ := test.NewNullLogger()
	at := time.Date(2025, time.January, 15, 10, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	u := New(fake, "ledger-backups", logger).WithClock(func() time.Time { return at })

	res, err := u.Upload(context.Background(), []byte("xlsx-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "backups/ledger-20250115T050000Z.xlsx", res.Key)
	assert.Equal(t, 10, res.Size)
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "ledger-backups", aws.ToString(fake.inputs[0].Bucket))
	assert.Equal(t, res.Key, aws.ToString(fake.inputs[0].Key))
	assert.Equal(t, "xlsx-bytes", string(fake.bodies[0]))
}

func TestUpload_Failure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	u := New(&fakeS3{err: errors.New("access denied")}, "b", logger)

	_, err := u.Upload(context.Background(), []byte("x"))
	assert.ErrorContains(t, err, "access denied")
	assert.Len(t, hook.Entries, 1)
}

func TestUpload_NotConfigured(t *testing.T) {
	var u *Uploader
	_, err := u.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewFromEnv(context.Background(), "ap-south-1", "", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
