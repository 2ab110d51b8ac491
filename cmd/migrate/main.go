package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/debemdeboas/archive-editor/internal/db"
	"github.com/debemdeboas/archive-editor/internal/logger"
	"github.com/debemdeboas/archive-editor/internal/model"
	"github.com/debemdeboas/archive-editor/internal/repository"
	"github.com/debemdeboas/archive-editor/internal/util"
	"github.com/debemdeboas/archive-editor/internal/util/compression"
)

func main() {
	var (
		path        string
		ownerID     string
		dbPath      string
		compressAlg string
	)

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Import a directory of markdown files as posts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := logger.New("info")
			db.SetLogger(l)
			repository.SetLogger(l)

			database := db.NewSQLiteAt(dbPath)
			if err := database.InitDB(); err != nil {
				return err
			}
			defer database.Close()

			compressor, err := compression.New(compressAlg)
			if err != nil {
				return err
			}
			repo := repository.NewDBPostRepository(database, compressor, 0)
			if err := repo.Init(cmd.Context()); err != nil {
				return err
			}

			imported, err := importDir(cmd.Context(), l, repo, path, model.UserID(ownerID))
			l.Info().Int("imported", imported).Str("path", path).Msg("Migration finished")
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "directory containing .md files")
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "owner user ID for the posts")
	cmd.Flags().StringVar(&dbPath, "db", db.DefaultPath, "SQLite database file")
	cmd.Flags().StringVar(&compressAlg, "compression", "zstd", "content compression (zstd, gzip or none)")
	cmd.MarkFlagRequired("path")
	cmd.MarkFlagRequired("owner-id")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// importDir saves every .md file in dir as a post. Files that fail are
// logged and skipped.
func importDir(ctx context.Context, l zerolog.Logger, repo repository.PostRepository, dir string, owner model.UserID) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("error reading directory %s: %w", dir, err)
	}

	imported := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".md") {
			continue
		}
		if err := importFile(ctx, repo, dir, file, owner); err != nil {
			l.Error().Err(err).Str("file", file.Name()).Msg("Error importing file")
			continue
		}
		imported++
		l.Info().Str("file", file.Name()).Msg("Imported post")
	}
	return imported, nil
}

func importFile(ctx context.Context, repo repository.PostRepository, dir string, file os.DirEntry, owner model.UserID) error {
	content, err := os.ReadFile(filepath.Join(dir, file.Name()))
	if err != nil {
		return err
	}
	fileInfo, err := file.Info()
	if err != nil {
		return err
	}

	post := repo.NewPost()
	post.Owner = owner
	post.Title = strings.TrimSuffix(file.Name(), ".md")
	post.Markdown = content
	post.CreatedDate = fileInfo.ModTime().UTC()
	post.ModifiedDate = post.CreatedDate

	if fm, err := util.GetFrontMatter(content); err == nil {
		if fm.Title != "" {
			post.Title = fm.Title
		}
		post.Description = fm.Description
		post.Published = fm.Published
		if fm.Slides != nil {
			post.Slides = model.CloneSlides(fm.Slides)
		}
		if !fm.Date.IsZero() {
			post.CreatedDate = fm.Date.UTC()
		}
		post.Markdown = util.StripFrontMatter(content)
	}

	return repo.SavePost(ctx, post)
}
