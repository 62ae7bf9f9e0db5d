// Package tracker implements the relational lineage store: the artifact
// table and parent/child edge table that make up the forest rooted at
// Video artifacts.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup by artifact_id matches no row.
var ErrNotFound = errors.New("tracker: artifact not found")

// ArtifactRow is the gorm model backing artifacts_application (spec §6.4).
type ArtifactRow struct {
	ArtifactID       string `gorm:"column:artifact_id;primaryKey;size:128"`
	ArtifactType     string `gorm:"column:artifact_type;size:64;index"`
	MinioURL         string `gorm:"column:minio_url;size:1024"`
	ParentArtifactID string `gorm:"column:parent_artifact_id;size:128;index"`
	TaskName         string `gorm:"column:task_name;size:128"`
	UserID           string `gorm:"column:user_id;size:128;index"`
	FPS              float64 `gorm:"column:fps"`
	Filename         string  `gorm:"column:filename;size:512"`
	CreatedAt        time.Time
}

func (ArtifactRow) TableName() string { return "artifacts_application" }

// LineageEdgeRow is the gorm model backing artifact_lineage_application
// (spec §6.4).
type LineageEdgeRow struct {
	ID                 string `gorm:"column:id;primaryKey;size:64"`
	ParentArtifactID   string `gorm:"column:parent_artifact_id;size:128;index"`
	ChildArtifactID    string `gorm:"column:child_artifact_id;size:128;index"`
	TransformationType string `gorm:"column:transformation_type;size:64"`
	CreatedAt          time.Time
}

func (LineageEdgeRow) TableName() string { return "artifact_lineage_application" }

// Tracker wraps a gorm connection over the two lineage tables.
type Tracker struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// Initialize creates the lineage tables if they do not already exist,
// mirroring original_source's ArtifactTracker.initialize().
func (t *Tracker) Initialize(ctx context.Context) error {
	return t.db.WithContext(ctx).AutoMigrate(&ArtifactRow{}, &LineageEdgeRow{})
}

// Metadata is the payload SaveArtifact persists; it mirrors the Python
// ArtifactMetadata pydantic model.
type Metadata struct {
	ArtifactID       string
	ArtifactType      artifact.Type
	MinioURL         string
	ParentArtifactID string
	TaskName         string
	UserID           string
	// FPS carries Video.FPS through to the lineage row, the only place it
	// survives for a Video artifact (which has no object key, so nothing
	// ever reaches blob storage for it) — read back on a skipped re-run so
	// downstream frame-index-to-timestamp math still has an fps to use.
	FPS float64
	// Filename carries Video.Filename the same way, so the status API can
	// report video_name without ever having a blob to read it back from.
	Filename string
}

// SaveArtifact inserts the artifact row and, when a parent is present, its
// lineage edge, in one transaction. Duplicate content-addressed inserts are
// silently absorbed via ON CONFLICT DO NOTHING — the UPSERT semantics
// spec.md §4.2 requires and the Python tracker lacked.
func (t *Tracker) SaveArtifact(ctx context.Context, m Metadata) error {
	row := ArtifactRow{
		ArtifactID:       m.ArtifactID,
		ArtifactType:     string(m.ArtifactType),
		MinioURL:         m.MinioURL,
		ParentArtifactID: m.ParentArtifactID,
		TaskName:         m.TaskName,
		UserID:           m.UserID,
		FPS:              m.FPS,
		Filename:         m.Filename,
		CreatedAt:        time.Now().UTC(),
	}

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "artifact_id"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return err
		}

		if m.ParentArtifactID == "" {
			return nil
		}

		edge := LineageEdgeRow{
			ID:                 m.ArtifactID + ":" + m.ParentArtifactID,
			ParentArtifactID:   m.ParentArtifactID,
			ChildArtifactID:    m.ArtifactID,
			TransformationType: m.TaskName,
			CreatedAt:          time.Now().UTC(),
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error
	})
}

// GetArtifact fetches a single row by id.
func (t *Tracker) GetArtifact(ctx context.Context, id string) (*ArtifactRow, error) {
	var row ArtifactRow
	err := t.db.WithContext(ctx).Where("artifact_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Exists reports whether a lineage row exists for the given artifact id.
func (t *Tracker) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := t.db.WithContext(ctx).Model(&ArtifactRow{}).Where("artifact_id = ?", id).Count(&count).Error
	return count > 0, err
}

// GetChildren returns direct children of parentID, optionally filtered by
// artifact_type.
func (t *Tracker) GetChildren(ctx context.Context, parentID string, artifactType string) ([]ArtifactRow, error) {
	q := t.db.WithContext(ctx).Where("parent_artifact_id = ?", parentID)
	if artifactType != "" {
		q = q.Where("artifact_type = ?", artifactType)
	}
	var rows []ArtifactRow
	err := q.Find(&rows).Error
	return rows, err
}

// GetDescendants performs a guarded depth-first traversal over the artifact
// table's parent_artifact_id links starting at rootID, returning the full
// descendant id set (rootID included). The
// visited set defends against accidental cycles even though the data model
// forbids them (spec.md §4.2, §9, Design Notes "cyclic-by-accident lineage").
func (t *Tracker) GetDescendants(ctx context.Context, rootID string) (map[string]bool, error) {
	visited := make(map[string]bool)
	if err := t.descend(ctx, rootID, visited); err != nil {
		return nil, err
	}
	return visited, nil
}

func (t *Tracker) descend(ctx context.Context, parentID string, visited map[string]bool) error {
	if visited[parentID] {
		return nil
	}
	visited[parentID] = true

	var childIDs []string
	err := t.db.WithContext(ctx).
		Model(&ArtifactRow{}).
		Where("parent_artifact_id = ?", parentID).
		Pluck("artifact_id", &childIDs).Error
	if err != nil {
		return err
	}

	for _, childID := range childIDs {
		if err := t.descend(ctx, childID, visited); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSubtree removes all artifact rows and lineage edges whose id
// appears (on either side, for edges) in ids. Returns the number of
// artifact rows and edge rows removed.
func (t *Tracker) DeleteSubtree(ctx context.Context, ids []string) (deletedArtifacts int64, deletedEdges int64, err error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edgeResult := tx.Where("parent_artifact_id IN ? OR child_artifact_id IN ?", ids, ids).
			Delete(&LineageEdgeRow{})
		if edgeResult.Error != nil {
			return edgeResult.Error
		}
		deletedEdges = edgeResult.RowsAffected

		artifactResult := tx.Where("artifact_id IN ?", ids).Delete(&ArtifactRow{})
		if artifactResult.Error != nil {
			return artifactResult.Error
		}
		deletedArtifacts = artifactResult.RowsAffected
		return nil
	})
	return deletedArtifacts, deletedEdges, err
}

// CountByType returns how many rows within ids carry the given artifact type.
func (t *Tracker) CountByType(ctx context.Context, ids []string, artifactType string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := t.db.WithContext(ctx).Model(&ArtifactRow{}).
		Where("artifact_id IN ? AND artifact_type = ?", ids, artifactType).
		Count(&count).Error
	return count, err
}

// LatestCreatedAt returns the max created_at among the given ids, used by
// the status reporter.
func (t *Tracker) LatestCreatedAt(ctx context.Context, ids []string) (time.Time, error) {
	var rows []ArtifactRow
	if len(ids) == 0 {
		return time.Time{}, nil
	}
	err := t.db.WithContext(ctx).Where("artifact_id IN ?", ids).Find(&rows).Error
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, r := range rows {
		if r.CreatedAt.After(latest) {
			latest = r.CreatedAt
		}
	}
	return latest, nil
}

// RowsForIDs returns the full rows for the given id set, used by the
// cascading deleter to resolve blob URLs before removal.
func (t *Tracker) RowsForIDs(ctx context.Context, ids []string) ([]ArtifactRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []ArtifactRow
	err := t.db.WithContext(ctx).Where("artifact_id IN ?", ids).Find(&rows).Error
	return rows, err
}
