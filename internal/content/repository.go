// Package content loads blog posts from disk: one JSON metadata file and one
// markdown body per post id.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/euforicio/blogmd/internal/renderer"
)

const (
	metadataExt = ".json"
	markdownExt = ".md"
)

// PostMetadata describes one post. ID always equals the metadata file name
// without its extension.
type PostMetadata struct {
	ID            string   `json:"id" validate:"required"`
	Title         string   `json:"title" validate:"required"`
	Description   string   `json:"description" validate:"required"`
	Date          string   `json:"date" validate:"required"`
	Author        string   `json:"author" validate:"required"`
	Keywords      []string `json:"keywords" validate:"required"`
	Category      string   `json:"category" validate:"required"`
	CoverImageURL string   `json:"cover_image_url"`
}

// PostContent is a post's metadata plus its rendered body. It is built per
// request and never stored.
type PostContent struct {
	PostMetadata
	HTMLContent string `json:"html_content"`
}

// Repository reads posts from a metadata directory (<id>.json) and a posts
// directory (<id>.md). Nothing is cached; every call goes back to disk.
type Repository struct {
	renderer    *renderer.Service
	validate    *validator.Validate
	logger      *slog.Logger
	postsDir    string
	metadataDir string
}

// NewRepository constructs a repository over the given directories.
func NewRepository(postsDir, metadataDir string, rendererSvc *renderer.Service, logger *slog.Logger) (*Repository, error) {
	if strings.TrimSpace(postsDir) == "" {
		return nil, errors.New("posts directory must be provided")
	}
	if strings.TrimSpace(metadataDir) == "" {
		return nil, errors.New("metadata directory must be provided")
	}
	if rendererSvc == nil {
		return nil, errors.New("renderer service must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absPosts, err := filepath.Abs(postsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve posts directory: %w", err)
	}
	absMeta, err := filepath.Abs(metadataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve metadata directory: %w", err)
	}

	return &Repository{
		renderer:    rendererSvc,
		validate:    newValidator(),
		logger:      logger.With("component", "content"),
		postsDir:    absPosts,
		metadataDir: absMeta,
	}, nil
}

// PostsDir returns the absolute markdown directory.
func (r *Repository) PostsDir() string { return r.postsDir }

// MetadataDir returns the absolute metadata directory.
func (r *Repository) MetadataDir() string { return r.metadataDir }

// ListPostIDs returns the base name of every metadata file, in directory
// enumeration order. Sub-directories and names GetPost could not load
// (dot-files, backslashes) are skipped.
func (r *Repository) ListPostIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.metadataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: list metadata directory: %w", ErrIO, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metadataExt) {
			continue
		}
		id := strings.TrimSuffix(name, metadataExt)
		if !ValidID(id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListAllMetadata loads every post's metadata sorted ascending by date. The
// comparison is a plain string comparison and the sort is stable, so posts
// with identical date strings keep their enumeration order. A single bad file
// fails the whole listing.
func (r *Repository) ListAllMetadata(ctx context.Context) ([]PostMetadata, error) {
	ids, err := r.ListPostIDs(ctx)
	if err != nil {
		return nil, err
	}
	posts := make([]PostMetadata, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := r.readMetadata(id)
		if err != nil {
			return nil, err
		}
		posts = append(posts, meta)
	}
	SortByDate(posts)
	return posts, nil
}

// GetPost reads and renders a single post.
func (r *Repository) GetPost(ctx context.Context, id string) (PostContent, error) {
	meta, body, err := r.Source(ctx, id)
	if err != nil {
		return PostContent{}, err
	}
	doc, err := r.renderer.Render(ctx, id, body)
	if err != nil {
		return PostContent{}, err
	}
	return PostContent{PostMetadata: meta, HTMLContent: doc.HTML}, nil
}

// Source returns a post's metadata and its unrendered markdown body.
func (r *Repository) Source(ctx context.Context, id string) (PostMetadata, []byte, error) {
	if err := ctx.Err(); err != nil {
		return PostMetadata{}, nil, err
	}
	if !ValidID(id) {
		return PostMetadata{}, nil, fmt.Errorf("%w: invalid id %q: %w", ErrNotFound, id, os.ErrNotExist)
	}

	body, err := os.ReadFile(r.markdownPath(id)) //nolint:gosec // id validated as a plain file name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PostMetadata{}, nil, fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
		}
		return PostMetadata{}, nil, fmt.Errorf("%w: read post %s: %w", ErrIO, id, err)
	}

	if _, err := os.Stat(r.metadataPath(id)); errors.Is(err, os.ErrNotExist) {
		return PostMetadata{}, nil, fmt.Errorf("%w: %s: %w", ErrNotFound, id, err)
	}
	meta, err := r.readMetadata(id)
	if err != nil {
		return PostMetadata{}, nil, err
	}
	return meta, body, nil
}

// ValidID reports whether id can name a post file: non-empty, no path
// separators, not a dot-file.
func ValidID(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

// SortByDate orders posts ascending by their date string. "2021-5-1" sorts
// after "2021-05-01" even though both name the same day.
func SortByDate(posts []PostMetadata) {
	slices.SortStableFunc(posts, func(a, b PostMetadata) int {
		return strings.Compare(a.Date, b.Date)
	})
}

func (r *Repository) markdownPath(id string) string {
	return filepath.Join(r.postsDir, id+markdownExt)
}

func (r *Repository) metadataPath(id string) string {
	return filepath.Join(r.metadataDir, id+metadataExt)
}

func (r *Repository) readMetadata(id string) (PostMetadata, error) {
	path := r.metadataPath(id)
	data, err := os.ReadFile(path) //nolint:gosec // path built from a listed or validated id
	if err != nil {
		return PostMetadata{}, fmt.Errorf("%w: read metadata %s: %w", ErrIO, id, err)
	}
	meta, err := r.parseMetadata(data)
	if err != nil {
		return PostMetadata{}, fmt.Errorf("%w: %s: %w", ErrParse, filepath.Base(path), err)
	}
	if meta.ID != id {
		r.logger.Warn("metadata id differs from file name, using file name",
			slog.String("file", filepath.Base(path)), slog.String("id", meta.ID))
		meta.ID = id
	}
	return meta, nil
}

// parseMetadata decodes exactly one JSON object with no unknown fields and
// checks required fields.
func (r *Repository) parseMetadata(data []byte) (PostMetadata, error) {
	var meta PostMetadata
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&meta); err != nil {
		if errors.Is(err, io.EOF) {
			return PostMetadata{}, errors.New("empty metadata file")
		}
		return PostMetadata{}, err
	}
	if err := decoder.Decode(new(struct{})); !errors.Is(err, io.EOF) {
		return PostMetadata{}, errors.New("metadata file must contain a single JSON object")
	}
	if err := r.validate.Struct(meta); err != nil {
		return PostMetadata{}, describeValidation(err)
	}
	return meta, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
}
