package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connection/internal/connection/models"
	"connection/internal/connection/view/store"
)

type fakePutter struct {
	bucket, key string
	body        []byte
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestExportWritesEveryRow(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(models.ViewDiscrepancy)
	total := models.MaxPageSize + 3
	for i := range total {
		rec := &models.Record{
			RegistryID:            fmt.Sprintf("R%06d", i),
			DesignatedBodyCode:    "BODY1",
			TCSDesignatedBodyCode: "BODY2",
			SubmissionDate:        models.DatePtr(2025, time.May, 1+i%28),
		}
		require.NoError(t, st.Upsert(ctx, models.ProjectFor(models.ViewDiscrepancy, rec)))
	}

	put := &fakePutter{}
	now := time.Date(2025, time.June, 15, 8, 30, 0, 0, time.UTC)
	e, err := New(st, put, "exports", WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := e.Export(ctx, models.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, total, res.Rows)
	assert.Equal(t, "exports", put.bucket)
	assert.Equal(t, "discrepancies/20250615T083000Z.csv", put.key)

	lines, err := csv.NewReader(bytes.NewReader(put.body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, total+1)
	assert.Equal(t, header, lines[0])
	assert.Equal(t, "BODY1", lines[1][8])
	assert.Equal(t, "Yes", lines[1][11])
}

func TestExportUploadFailure(t *testing.T) {
	boom := errors.New("access denied")
	e, err := New(store.NewMemory(models.ViewDiscrepancy), &fakePutter{err: boom}, "exports")
	require.NoError(t, err)

	_, err = e.Export(context.Background(), models.Criteria{})
	assert.ErrorIs(t, err, boom)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(store.NewMemory(models.ViewDiscrepancy), &fakePutter{}, "")
	assert.Error(t, err)
}
