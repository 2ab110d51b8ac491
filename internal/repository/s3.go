package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/util"
	"github.com/debemdeboas/archive-editor/internal/util/compression"
	"github.com/google/uuid"
)

const s3ObjectSuffix = ".json"

// S3API is the subset of the S3 client used by S3PostRepository.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	Bucket          string
	Prefix          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds a client for any S3 compatible endpoint.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("error loading S3 config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// s3Post is the JSON document stored for every post.
type s3Post struct {
	ID           model.PostID `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Markdown     string       `json:"markdown"`
	Slides       []string     `json:"slides"`
	Published    bool         `json:"published"`
	Owner        model.UserID `json:"owner,omitempty"`
	CreatedDate  time.Time    `json:"created_at"`
	ModifiedDate time.Time    `json:"modified_at"`
}

// S3PostRepository stores one compressed JSON object per post under a
// key prefix.
type S3PostRepository struct { // implements PostRepository
	postIndex

	client       S3API
	bucket       string
	prefix       string
	reloadPeriod time.Duration
	compressor   compression.Compressor

	mu    sync.Mutex
	etags map[model.PostID]string
}

func NewS3PostRepository(client S3API, bucket, prefix string, compressor compression.Compressor, reloadPeriod time.Duration) *S3PostRepository {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &S3PostRepository{
		postIndex:    newPostIndex(),
		client:       client,
		bucket:       bucket,
		prefix:       prefix,
		reloadPeriod: reloadPeriod,
		compressor:   compressor,
		etags:        make(map[model.PostID]string),
	}
}

func (r *S3PostRepository) key(id model.PostID) string {
	return r.prefix + string(id) + s3ObjectSuffix
}

func (r *S3PostRepository) Init(ctx context.Context) error {
	posts, err := r.GetPosts(ctx)
	if err != nil {
		return err
	}
	r.replace(posts)

	go poll(ctx, r.reloadPeriod, r.ReloadPosts)
	return nil
}

// GetPosts lists the bucket and downloads only objects whose ETag changed
// since the last listing.
func (r *S3PostRepository) GetPosts(ctx context.Context) ([]model.Post, error) {
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})

	posts := make([]model.Post, 0)
	seen := make(map[model.PostID]string)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing posts: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, s3ObjectSuffix) {
				continue
			}
			id := model.PostID(strings.TrimSuffix(strings.TrimPrefix(key, r.prefix), s3ObjectSuffix))
			etag := aws.ToString(obj.ETag)
			seen[id] = etag

			r.mu.Lock()
			known := r.etags[id]
			r.mu.Unlock()
			if cached, err := r.ReadPost(id); err == nil && known != "" && known == etag {
				posts = append(posts, *cached)
				continue
			}

			post, err := r.fetch(ctx, key)
			if err != nil {
				return nil, err
			}
			posts = append(posts, post)
		}
	}

	r.mu.Lock()
	r.etags = seen
	r.mu.Unlock()

	return posts, nil
}

func (r *S3PostRepository) fetch(ctx context.Context, key string) (model.Post, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return model.Post{}, fmt.Errorf("error fetching %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return model.Post{}, fmt.Errorf("error reading %s: %w", key, err)
	}
	raw, err := r.compressor.Decompress(body)
	if err != nil {
		return model.Post{}, fmt.Errorf("error decompressing %s: %w", key, err)
	}

	var obj s3Post
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.Post{}, fmt.Errorf("error decoding %s: %w", key, err)
	}

	return model.Post{
		ID:            obj.ID,
		Title:         obj.Title,
		Description:   obj.Description,
		Path:          key,
		Markdown:      []byte(obj.Markdown),
		MDContentHash: util.ContentHash(body),
		Slides:        model.CloneSlides(obj.Slides),
		Published:     obj.Published,
		Owner:         obj.Owner,
		CreatedDate:   obj.CreatedDate,
		ModifiedDate:  obj.ModifiedDate,
	}, nil
}

func (r *S3PostRepository) ReloadPosts(ctx context.Context) {
	posts, err := r.GetPosts(ctx)
	if err != nil {
		repoLogger.Error().Err(err).Msg(config.ErrReloadingPosts)
		return
	}
	r.notify(r.replace(posts))
}

func (r *S3PostRepository) NewPost() *model.Post {
	now := time.Now().UTC()
	id := model.PostID(uuid.New().String())

	return &model.Post{
		ID:           id,
		Path:         r.key(id),
		Slides:       []string{},
		CreatedDate:  now,
		ModifiedDate: now,
	}
}

func (r *S3PostRepository) SavePost(ctx context.Context, post *model.Post) error {
	post.ModifiedDate = time.Now().UTC()
	if post.CreatedDate.IsZero() {
		post.CreatedDate = post.ModifiedDate
	}
	post.Path = r.key(post.ID)

	raw, err := json.Marshal(s3Post{
		ID:           post.ID,
		Title:        post.Title,
		Description:  post.Description,
		Markdown:     string(post.Markdown),
		Slides:       model.CloneSlides(post.Slides),
		Published:    post.Published,
		Owner:        post.Owner,
		CreatedDate:  post.CreatedDate,
		ModifiedDate: post.ModifiedDate,
	})
	if err != nil {
		return fmt.Errorf("error encoding post: %w", err)
	}
	body, err := r.compressor.Compress(raw)
	if err != nil {
		return fmt.Errorf("error compressing post: %w", err)
	}

	out, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(post.Path),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("error uploading post: %w", err)
	}

	post.MDContentHash = util.ContentHash(body)
	r.mu.Lock()
	r.etags[post.ID] = aws.ToString(out.ETag)
	r.mu.Unlock()
	r.put(*post)

	repoLogger.Debug().Str("post_id", string(post.ID)).Str("key", post.Path).Msg("Post uploaded")
	return nil
}

func (r *S3PostRepository) SetPostField(ctx context.Context, id model.PostID, field string, value any) error {
	if err := checkField(field, value); err != nil {
		return err
	}
	cached, err := r.ReadPost(id)
	if err != nil {
		return err
	}

	post := *cached
	applyField(&post, field, value)
	return r.SavePost(ctx, &post)
}
