package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/debemdeboas/archive-editor/internal/db"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/util"
	"github.com/debemdeboas/archive-editor/internal/util/compression"
	"github.com/google/uuid"
)

const selectPosts = `SELECT id, COALESCE(title, ''), COALESCE(description, ''), content, slides, published,
	COALESCE(md_content_hash, ''), created_at, modified_at, COALESCE(user_id, '') FROM posts`

const upsertPost = `INSERT INTO posts (id, title, description, content, slides, published, md_content_hash, created_at, modified_at, user_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		content = excluded.content,
		slides = excluded.slides,
		published = excluded.published,
		md_content_hash = excluded.md_content_hash,
		modified_at = excluded.modified_at,
		user_id = excluded.user_id`

type DBPostRepository struct { // implements PostRepository
	postIndex

	// Row count and latest modification time seen by the last load.
	fingerprint  string
	reloadPeriod time.Duration

	db         db.DB
	compressor compression.Compressor
}

func NewDBPostRepository(db db.DB, compressor compression.Compressor, reloadPeriod time.Duration) *DBPostRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &DBPostRepository{
		postIndex:    newPostIndex(),
		reloadPeriod: reloadPeriod,
		db:           db,
		compressor:   compressor,
	}
}

func (r *DBPostRepository) Init(ctx context.Context) error {
	if err := r.load(); err != nil {
		return err
	}
	go poll(ctx, r.reloadPeriod, r.ReloadPosts)
	return nil
}

func (r *DBPostRepository) load() error {
	fp, err := r.currentFingerprint()
	if err != nil {
		return err
	}
	posts, err := r.GetPosts()
	if err != nil {
		return err
	}
	r.notify(r.replace(posts))
	r.fingerprint = fp
	return nil
}

func (r *DBPostRepository) currentFingerprint() (string, error) {
	var count int
	var latest sql.NullString
	err := r.db.QueryRow(`SELECT COUNT(*), MAX(modified_at) FROM posts`).Scan(&count, &latest)
	if err != nil {
		return "", fmt.Errorf("error reading posts fingerprint: %w", err)
	}
	return fmt.Sprintf("%d@%s", count, latest.String), nil
}

func (r *DBPostRepository) GetPosts() ([]model.Post, error) {
	rows, err := r.db.Query(selectPosts)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		post, err := r.scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return posts, nil
}

func (r *DBPostRepository) scanPost(rows *sql.Rows) (model.Post, error) {
	var post model.Post
	var content, slides []byte
	var published int
	var created, modified sql.NullTime

	err := rows.Scan(&post.ID, &post.Title, &post.Description, &content, &slides, &published,
		&post.MDContentHash, &created, &modified, &post.Owner)
	if err != nil {
		return post, fmt.Errorf("error scanning post: %w", err)
	}

	post.Published = published != 0
	post.CreatedDate = created.Time
	post.ModifiedDate = modified.Time
	if !modified.Valid {
		post.ModifiedDate = created.Time
	}

	if len(content) > 0 {
		post.Markdown, err = r.compressor.Decompress(content)
		if err != nil {
			return post, fmt.Errorf("error decompressing content of %s: %w", post.ID, err)
		}
	}

	post.Slides = []string{}
	if len(slides) > 0 {
		raw, err := r.compressor.Decompress(slides)
		if err != nil {
			return post, fmt.Errorf("error decompressing slides of %s: %w", post.ID, err)
		}
		if post.Slides, err = model.DecodeSlides(string(raw)); err != nil {
			return post, err
		}
	}

	return post, nil
}

// ReloadPosts reloads the index when the table fingerprint moved and
// notifies about posts whose content hash changed.
func (r *DBPostRepository) ReloadPosts(ctx context.Context) {
	fp, err := r.currentFingerprint()
	if err != nil {
		repoLogger.Error().Err(err).Msg("Error checking posts fingerprint")
		return
	}
	if fp == r.fingerprint {
		repoLogger.Debug().Msg("No posts modified, skipping reload")
		return
	}

	repoLogger.Debug().Str("fingerprint", fp).Msg("Posts may have changed, performing full reload")
	if err := r.load(); err != nil {
		repoLogger.Error().Err(err).Msg(config.ErrReloadingPosts)
	}
}

func (r *DBPostRepository) NewPost() *model.Post {
	now := time.Now().UTC()

	return &model.Post{
		ID:     model.PostID(uuid.New().String()),
		Slides: []string{},

		CreatedDate:  now,
		ModifiedDate: now,
	}
}

func (r *DBPostRepository) SavePost(ctx context.Context, post *model.Post) error {
	compressed, err := r.compressor.Compress(post.Markdown)
	if err != nil {
		return fmt.Errorf("error compressing content: %w", err)
	}

	encodedSlides, err := model.EncodeSlides(post.Slides)
	if err != nil {
		return err
	}
	slides, err := r.compressor.Compress([]byte(encodedSlides))
	if err != nil {
		return fmt.Errorf("error compressing slides: %w", err)
	}

	// Hash of the stored (compressed) content.
	post.MDContentHash = util.ContentHash(compressed)
	if post.CreatedDate.IsZero() {
		post.CreatedDate = time.Now().UTC()
	}
	post.ModifiedDate = time.Now().UTC()

	_, err = r.db.Get().ExecContext(ctx, upsertPost,
		post.ID, post.Title, post.Description, compressed, slides, boolToInt(post.Published),
		post.MDContentHash, post.CreatedDate, post.ModifiedDate, post.Owner,
	)
	if err != nil {
		return fmt.Errorf("error saving post: %w", err)
	}

	r.put(*post)
	repoLogger.Debug().Str("post_id", string(post.ID)).Msg("Post saved")
	return nil
}

func (r *DBPostRepository) SetPostField(ctx context.Context, id model.PostID, field string, value any) error {
	if err := checkField(field, value); err != nil {
		return err
	}

	column := value
	if b, ok := value.(bool); ok {
		column = boolToInt(b)
	}

	now := time.Now().UTC()
	// field is one of the validated column names.
	res, err := r.db.Get().ExecContext(ctx,
		`UPDATE posts SET `+field+` = ?, modified_at = ? WHERE id = ?`,
		column, now, id,
	)
	if err != nil {
		return fmt.Errorf("error setting %s: %w", field, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}

	if cached, err := r.ReadPost(id); err == nil {
		post := *cached
		applyField(&post, field, value)
		post.ModifiedDate = now
		r.put(post)
	}

	repoLogger.Debug().Str("post_id", string(id)).Str("field", field).Msg("Post field set")
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
