package scenestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sceneforge/internal/config"
	"sceneforge/internal/segmenter"
)

// Store manages video and scene persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "sceneforge.db")
	// Pragmas go in the DSN so each pooled connection gets them; a plain
	// db.Exec would configure only one connection in the pool.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// CreateVideo segments a script into scenes and persists the new aggregate.
func (s *Store) CreateVideo(ctx context.Context, title, script string) (*Video, error) {
	result, err := segmenter.Segment(script)
	if err != nil {
		return nil, fmt.Errorf("segment script: %w", err)
	}

	now := time.Now().UTC()
	video := &Video{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    VideoStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, slice := range result.Slices {
		video.Scenes = append(video.Scenes, Scene{
			ID:              uuid.NewString(),
			VideoID:         video.ID,
			Name:            slice.Name,
			Code:            slice.Code,
			Order:           i,
			Status:          SceneStatusPending,
			ProducedSymbols: slice.Produced,
			ConsumedSymbols: slice.Consumed,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO videos (id, title, status, final_artifact_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		video.ID,
		video.Title,
		video.Status,
		nullableString(video.FinalArtifactRef),
		formatTime(video.CreatedAt),
		formatTime(video.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}
	if err := insertScenes(ctx, tx, video); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit video: %w", err)
	}
	return video, nil
}

// GetVideo fetches a video aggregate by identifier. A missing id returns
// (nil, nil).
func (s *Store) GetVideo(ctx context.Context, id string) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	return s.scanVideoWithScenes(ctx, row)
}

// LatestVideo returns the most recently created video, or (nil, nil) when the
// store is empty.
func (s *Store) LatestVideo(ctx context.Context) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC, id DESC LIMIT 1`)
	return s.scanVideoWithScenes(ctx, row)
}

// ListVideos returns every video aggregate ordered by creation time.
func (s *Store) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, video := range videos {
		if err := s.loadScenes(ctx, video); err != nil {
			return nil, err
		}
	}
	return videos, nil
}

// GetScene fetches one scene of a video. A missing scene returns (nil, nil).
func (s *Store) GetScene(ctx context.Context, videoID, sceneID string) (*Scene, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE video_id = ? AND id = ?`, videoID, sceneID)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// ApplyOperation loads the aggregate, applies one structural edit, reindexes,
// and persists the result. An unknown video id returns (nil, nil).
func (s *Store) ApplyOperation(ctx context.Context, videoID string, op Operation) (*Video, error) {
	video, err := s.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	if err := op.apply(video, now); err != nil {
		return nil, err
	}
	video.Reindex()
	video.UpdatedAt = now

	if err := s.SaveVideo(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

// SaveVideo persists the whole aggregate in one transaction: the video row is
// updated and the scene rows are replaced wholesale.
func (s *Store) SaveVideo(ctx context.Context, video *Video) error {
	if video == nil {
		return errors.New("video is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE videos SET title = ?, status = ?, final_artifact_ref = ?, updated_at = ? WHERE id = ?`,
		video.Title,
		video.Status,
		nullableString(video.FinalArtifactRef),
		formatTime(video.UpdatedAt),
		video.ID,
	); err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE video_id = ?`, video.ID); err != nil {
		return fmt.Errorf("delete scenes: %w", err)
	}
	if err := insertScenes(ctx, tx, video); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit video: %w", err)
	}
	return nil
}

// UpdateSceneStatus persists a status transition for one scene. The artifact
// ref is stored on compiled transitions and the error message on failures.
func (s *Store) UpdateSceneStatus(ctx context.Context, videoID, sceneID string, status SceneStatus, artifactRef, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scenes SET status = ?, artifact_ref = ?, error_message = ?, updated_at = ?
         WHERE video_id = ? AND id = ?`,
		status,
		nullableString(artifactRef),
		nullableString(errorMessage),
		formatTime(time.Now().UTC()),
		videoID,
		sceneID,
	)
	if err != nil {
		return fmt.Errorf("update scene status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSceneNotFound, sceneID)
	}
	return nil
}

// UpdateVideoStatus persists a status transition for the video row alone.
func (s *Store) UpdateVideoStatus(ctx context.Context, videoID string, status VideoStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		formatTime(time.Now().UTC()),
		videoID,
	)
	if err != nil {
		return fmt.Errorf("update video status: %w", err)
	}
	return nil
}

// MarkVideoReady records the final artifact and flips the video to ready. It
// refuses when any scene is not compiled or the artifact ref is empty, so the
// ready state always implies a complete set of compiled scenes.
func (s *Store) MarkVideoReady(ctx context.Context, videoID, finalArtifactRef string) (*Video, error) {
	if finalArtifactRef == "" {
		return nil, errors.New("final artifact ref is empty")
	}
	video, err := s.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, nil
	}
	if !video.AllScenesCompiled() {
		return nil, fmt.Errorf("video %s has uncompiled scenes", videoID)
	}
	video.Status = VideoStatusReady
	video.FinalArtifactRef = finalArtifactRef
	video.UpdatedAt = time.Now().UTC()
	if err := s.SaveVideo(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

// SceneStats returns a count of scenes grouped by status for one video.
func (s *Store) SceneStats(ctx context.Context, videoID string) (map[SceneStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM scenes WHERE video_id = ? GROUP BY status`, videoID)
	if err != nil {
		return nil, fmt.Errorf("scene stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[SceneStatus]int)
	for rows.Next() {
		var status SceneStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

const videoColumns = "id, title, status, final_artifact_ref, created_at, updated_at"
const sceneColumns = "id, video_id, name, code, position, status, artifact_ref, error_message, produced_symbols, consumed_symbols, created_at, updated_at"

func (s *Store) scanVideoWithScenes(ctx context.Context, row *sql.Row) (*Video, error) {
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	if err := s.loadScenes(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

func (s *Store) loadScenes(ctx context.Context, video *Video) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE video_id = ? ORDER BY position`, video.ID)
	if err != nil {
		return fmt.Errorf("load scenes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return err
		}
		video.Scenes = append(video.Scenes, *scene)
	}
	return rows.Err()
}

func insertScenes(ctx context.Context, tx *sql.Tx, video *Video) error {
	for i := range video.Scenes {
		scene := &video.Scenes[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scenes (
                id, video_id, name, code, position, status, artifact_ref,
                error_message, produced_symbols, consumed_symbols, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scene.ID,
			video.ID,
			scene.Name,
			scene.Code,
			scene.Order,
			scene.Status,
			nullableString(scene.ArtifactRef),
			nullableString(scene.ErrorMessage),
			marshalSymbols(scene.ProducedSymbols),
			marshalSymbols(scene.ConsumedSymbols),
			formatTime(scene.CreatedAt),
			formatTime(scene.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert scene %s: %w", scene.ID, err)
		}
	}
	return nil
}

func scanVideo(scanner interface{ Scan(dest ...any) error }) (*Video, error) {
	var (
		id         string
		title      string
		statusStr  string
		finalRef   sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &title, &statusStr, &finalRef, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	video := &Video{
		ID:               id,
		Title:            title,
		Status:           VideoStatus(statusStr),
		FinalArtifactRef: finalRef.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		video.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		video.UpdatedAt = updated
	}
	return video, nil
}

func scanScene(scanner interface{ Scan(dest ...any) error }) (*Scene, error) {
	var (
		id          string
		videoID     string
		name        string
		code        string
		position    int
		statusStr   string
		artifactRef sql.NullString
		errorMsg    sql.NullString
		producedRaw sql.NullString
		consumedRaw sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&id, &videoID, &name, &code, &position, &statusStr,
		&artifactRef, &errorMsg, &producedRaw, &consumedRaw, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	scene := &Scene{
		ID:              id,
		VideoID:         videoID,
		Name:            name,
		Code:            code,
		Order:           position,
		Status:          SceneStatus(statusStr),
		ArtifactRef:     artifactRef.String,
		ErrorMessage:    errorMsg.String,
		ProducedSymbols: unmarshalSymbols(producedRaw.String),
		ConsumedSymbols: unmarshalSymbols(consumedRaw.String),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		scene.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		scene.UpdatedAt = updated
	}
	return scene, nil
}

func marshalSymbols(symbols []string) any {
	if len(symbols) == 0 {
		return nil
	}
	data, err := json.Marshal(symbols)
	if err != nil {
		return nil
	}
	return string(data)
}

func unmarshalSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	var symbols []string
	if err := json.Unmarshal([]byte(raw), &symbols); err != nil {
		return nil
	}
	return symbols
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
