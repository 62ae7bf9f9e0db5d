package persist

import (
	"context"
	"io"
	"testing"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/tracker"
	"github.com/stretchr/testify/require"
)

type fakeBlob struct {
	objects map[string][]byte
	puts    int
}

func newFakeBlob() *fakeBlob { return &fakeBlob{objects: make(map[string][]byte)} }

func (f *fakeBlob) key(bucket, objectName string) string { return bucket + "/" + objectName }

func (f *fakeBlob) ObjectExists(_ context.Context, bucket, objectName string) (bool, error) {
	_, ok := f.objects[f.key(bucket, objectName)]
	return ok, nil
}

func (f *fakeBlob) UploadFileObj(_ context.Context, bucket, objectName string, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects[f.key(bucket, objectName)] = data
	f.puts++
	return "s3://" + f.key(bucket, objectName), nil
}

func (f *fakeBlob) PutJSON(_ context.Context, bucket, objectName string, payload any) (string, error) {
	f.objects[f.key(bucket, objectName)] = []byte("json")
	f.puts++
	return "s3://" + f.key(bucket, objectName), nil
}

type fakeLineage struct {
	rows map[string]tracker.Metadata
	// onSave, when set, runs at the start of every SaveArtifact call.
	onSave func(m tracker.Metadata)
}

func newFakeLineage() *fakeLineage { return &fakeLineage{rows: make(map[string]tracker.Metadata)} }

func (f *fakeLineage) Exists(_ context.Context, id string) (bool, error) {
	_, ok := f.rows[id]
	return ok, nil
}

func (f *fakeLineage) SaveArtifact(_ context.Context, m tracker.Metadata) error {
	if f.onSave != nil {
		f.onSave(m)
	}
	f.rows[m.ArtifactID] = m
	return nil
}

func (f *fakeLineage) GetArtifact(_ context.Context, id string) (*tracker.ArtifactRow, error) {
	m, ok := f.rows[id]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	return &tracker.ArtifactRow{ArtifactID: m.ArtifactID, FPS: m.FPS, Filename: m.Filename}, nil
}

func TestPersistUploadsBlobBeforeLineageRow(t *testing.T) {
	ctx := context.Background()
	blob := newFakeBlob()
	lineage := newFakeLineage()
	v := New(blob, lineage)

	a := artifact.Autoshot{VideoIDVal: "v1", Bucket: "u1", TaskNameVal: "shotdetect"}

	blobAtSave := false
	lineage.onSave = func(tracker.Metadata) {
		blobAtSave, _ = blob.ObjectExists(ctx, a.UserBucket(), a.ObjectKey())
	}

	require.NoError(t, v.Persist(ctx, a, map[string]any{"segments": []int{0, 100}}))
	require.True(t, blobAtSave, "blob must already exist when the lineage row is written")

	blobOK, err := blob.ObjectExists(ctx, a.UserBucket(), a.ObjectKey())
	require.NoError(t, err)
	require.True(t, blobOK, "blob must exist once Persist returns")

	lineageOK, err := lineage.Exists(ctx, a.ArtifactID())
	require.NoError(t, err)
	require.True(t, lineageOK)

	row := lineage.rows[a.ArtifactID()]
	require.Equal(t, a.ArtifactType(), row.ArtifactType)
	require.Equal(t, a.VideoID(), row.ParentArtifactID)
}

func TestExistsRequiresBothLineageAndBlob(t *testing.T) {
	ctx := context.Background()
	blob := newFakeBlob()
	lineage := newFakeLineage()
	v := New(blob, lineage)

	a := artifact.Autoshot{VideoIDVal: "v1", Bucket: "u1", TaskNameVal: "shotdetect"}

	ok, err := v.Exists(ctx, a)
	require.NoError(t, err)
	require.False(t, ok, "must not exist before either store is written")

	// Lineage row present but blob missing: still not exists.
	require.NoError(t, lineage.SaveArtifact(ctx, tracker.Metadata{ArtifactID: a.ArtifactID()}))
	ok, err = v.Exists(ctx, a)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, v.Persist(ctx, a, map[string]any{}))
	ok, err = v.Exists(ctx, a)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExistsSkipsBlobCheckWhenArtifactHasNoObjectKey(t *testing.T) {
	ctx := context.Background()
	blob := newFakeBlob()
	lineage := newFakeLineage()
	v := New(blob, lineage)

	video := artifact.Video{VideoIDVal: "v1"}
	require.NoError(t, lineage.SaveArtifact(ctx, tracker.Metadata{ArtifactID: video.ArtifactID()}))

	ok, err := v.Exists(ctx, video)
	require.NoError(t, err)
	require.True(t, ok, "video artifacts have no object key, so lineage presence alone must suffice")
}
