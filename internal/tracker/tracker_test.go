package tracker

import (
	"context"
	"testing"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	tr := New(db)
	require.NoError(t, tr.Initialize(context.Background()))
	return tr
}

func TestSaveArtifactIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	meta := Metadata{
		ArtifactID:       "root-video",
		ArtifactType:     artifact.TypeVideo,
		ParentArtifactID: "",
		TaskName:         "ingest",
		UserID:           "u1",
	}
	require.NoError(t, tr.SaveArtifact(ctx, meta))
	require.NoError(t, tr.SaveArtifact(ctx, meta)) // duplicate insert must be absorbed

	var count int64
	require.NoError(t, tr.db.Model(&ArtifactRow{}).Where("artifact_id = ?", "root-video").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSaveArtifactInsertsEdgeWithParent(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	require.NoError(t, tr.SaveArtifact(ctx, Metadata{ArtifactID: "v1", ArtifactType: artifact.TypeVideo, TaskName: "ingest", UserID: "u1"}))
	require.NoError(t, tr.SaveArtifact(ctx, Metadata{ArtifactID: "shot1", ArtifactType: artifact.TypeAutoshot, ParentArtifactID: "v1", TaskName: "shotdetect", UserID: "u1"}))

	children, err := tr.GetChildren(ctx, "v1", "")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "shot1", children[0].ArtifactID)
}

func TestGetDescendantsTraversesForestAndToleratesCycles(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	require.NoError(t, tr.SaveArtifact(ctx, Metadata{ArtifactID: "v1", ArtifactType: artifact.TypeVideo, TaskName: "ingest", UserID: "u1"}))
	require.NoError(t, tr.SaveArtifact(ctx, Metadata{ArtifactID: "shot1", ArtifactType: artifact.TypeAutoshot, ParentArtifactID: "v1", TaskName: "shotdetect", UserID: "u1"}))
	require.NoError(t, tr.SaveArtifact(ctx, Metadata{ArtifactID: "img1", ArtifactType: artifact.TypeImage, ParentArtifactID: "shot1", TaskName: "imageextract", UserID: "u1"}))
	// Close a cycle img1 -> v1 so the traversal has to stop at a visited id.
	require.NoError(t, tr.db.Model(&ArtifactRow{}).Where("artifact_id = ?", "v1").Update("parent_artifact_id", "img1").Error)

	desc, err := tr.GetDescendants(ctx, "v1")
	require.NoError(t, err)
	require.True(t, desc["v1"])
	require.True(t, desc["shot1"])
	require.True(t, desc["img1"])
	require.Len(t, desc, 3)
}

func TestDeleteSubtreeRemovesArtifactsAndEdges(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	require.NoError(t, tr.SaveArtifact(ctx, Metadata{ArtifactID: "v1", ArtifactType: artifact.TypeVideo, TaskName: "ingest", UserID: "u1"}))
	require.NoError(t, tr.SaveArtifact(ctx, Metadata{ArtifactID: "shot1", ArtifactType: artifact.TypeAutoshot, ParentArtifactID: "v1", TaskName: "shotdetect", UserID: "u1"}))

	deletedArtifacts, deletedEdges, err := tr.DeleteSubtree(ctx, []string{"v1", "shot1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), deletedArtifacts)
	require.Equal(t, int64(1), deletedEdges)

	exists, err := tr.Exists(ctx, "shot1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestGetArtifactReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.GetArtifact(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
