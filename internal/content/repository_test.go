package content_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/euforicio/blogmd/internal/content"
	"github.com/euforicio/blogmd/internal/renderer"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRepo(t *testing.T, root string) *content.Repository {
	t.Helper()
	repo, err := content.NewRepository(
		filepath.Join(root, "blogs"),
		filepath.Join(root, "blogs", "metadata"),
		renderer.NewService(discard(), renderer.Options{}),
		discard(),
	)
	require.NoError(t, err)
	return repo
}

// writePost writes blogs/<id>.md and blogs/metadata/<id>.json under root.
// An empty body or metadata skips that file.
func writePost(t *testing.T, root, id, metadata, body string) {
	t.Helper()
	meta := filepath.Join(root, "blogs", "metadata")
	require.NoError(t, os.MkdirAll(meta, 0o755))
	if metadata != "" {
		require.NoError(t, os.WriteFile(filepath.Join(meta, id+".json"), []byte(metadata), 0o644))
	}
	if body != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "blogs", id+".md"), []byte(body), 0o644))
	}
}

func metadataJSON(id, date string) string {
	return `{"id":"` + id + `","title":"T ` + id + `","description":"d","date":"` + date +
		`","author":"a","keywords":["k1","k2"],"category":"c","cover_image_url":""}`
}

func fixtureRoot() string {
	return filepath.Join("..", "..", "testdata", "blog")
}

func TestGetPostSucceedsForEveryListedID(t *testing.T) {
	t.Parallel()
	repo := newRepo(t, fixtureRoot())
	ctx := context.Background()

	ids, err := repo.ListPostIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	for _, id := range ids {
		post, err := repo.GetPost(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, id, post.ID)
		assert.NotEmpty(t, post.HTMLContent)
	}
}

func TestGetPostRendersMarkdown(t *testing.T) {
	t.Parallel()
	repo := newRepo(t, fixtureRoot())

	post, err := repo.GetPost(context.Background(), "hello-world")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", post.Title)
	assert.Equal(t, []string{"meta", "go"}, post.Keywords)
	assert.Contains(t, post.HTMLContent, `<h1 id="hello-world">`)
	assert.Contains(t, post.HTMLContent, `href="/blogs/linux-signals"`)
}

func TestListPostIDsSkipsNonMetadataEntries(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePost(t, root, "one", metadataJSON("one", "2020-01-01"), "# one")
	meta := filepath.Join(root, "blogs", "metadata")
	require.NoError(t, os.WriteFile(filepath.Join(meta, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(meta, ".draft.json"), []byte("{}"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(meta, "nested.json"), 0o755))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.WriteFile(filepath.Join(meta, `a\b.json`), []byte(metadataJSON(`a\b`, "2020-01-01")), 0o644))
	}

	repo := newRepo(t, root)
	ids, err := repo.ListPostIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, ids)

	for _, id := range ids {
		_, err := repo.GetPost(context.Background(), id)
		assert.NoError(t, err, id)
	}
}

func TestListPostIDsUnreadableDirectory(t *testing.T) {
	t.Parallel()
	repo := newRepo(t, t.TempDir())

	_, err := repo.ListPostIDs(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, content.ErrIO)
}

func TestListAllMetadataSortsByDateString(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePost(t, root, "a", metadataJSON("a", "2021-05-01"), "# a")
	writePost(t, root, "b", metadataJSON("b", "2021-5-1"), "# b")
	writePost(t, root, "c", metadataJSON("c", "2021-04-30"), "# c")

	posts, err := newRepo(t, root).ListAllMetadata(context.Background())
	require.NoError(t, err)

	got := make([]string, 0, len(posts))
	for _, p := range posts {
		got = append(got, p.Date)
	}
	// string order, not calendar order: "2021-5-1" is not equal to "2021-05-01"
	assert.Equal(t, []string{"2021-04-30", "2021-05-01", "2021-5-1"}, got)
	assert.True(t, slices.IsSortedFunc(posts, func(x, y content.PostMetadata) int {
		return strings.Compare(x.Date, y.Date)
	}))
}

func TestListAllMetadataKeepsEnumerationOrderForEqualDates(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePost(t, root, "alpha", metadataJSON("alpha", "2022-02-02"), "# a")
	writePost(t, root, "beta", metadataJSON("beta", "2022-02-02"), "# b")
	writePost(t, root, "early", metadataJSON("early", "2020-01-01"), "# e")

	repo := newRepo(t, root)
	ids, err := repo.ListPostIDs(context.Background())
	require.NoError(t, err)

	posts, err := repo.ListAllMetadata(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "early", posts[0].ID)

	var tied []string
	for _, id := range ids {
		if id != "early" {
			tied = append(tied, id)
		}
	}
	assert.Equal(t, tied, []string{posts[1].ID, posts[2].ID})
}

func TestSortByDateIsStable(t *testing.T) {
	t.Parallel()
	posts := []content.PostMetadata{
		{ID: "z", Date: "2024-01-01"},
		{ID: "y", Date: "2023-01-01"},
		{ID: "x", Date: "2024-01-01"},
		{ID: "w", Date: "2023-01-01"},
	}
	content.SortByDate(posts)

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"y", "w", "z", "x"}, ids)
}

func TestListAllMetadataFailsOnBadFile(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"malformed":        `{"id": "bad",`,
		"missing required": `{"id":"bad","title":"t","description":"d","date":"2020-01-01","author":"a","category":"c"}`,
		"null keywords":    `{"id":"bad","title":"t","description":"d","date":"2020-01-01","author":"a","keywords":null,"category":"c"}`,
		"unknown field":    `{"id":"bad","title":"t","description":"d","date":"2020-01-01","author":"a","keywords":[],"category":"c","draft":true}`,
		"wrong type":       `{"id":"bad","title":"t","description":"d","date":"2020-01-01","author":"a","keywords":"go","category":"c"}`,
		"two objects":      metadataJSON("bad", "2020-01-01") + metadataJSON("bad", "2020-01-01"),
		"empty":            " ",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			writePost(t, root, "good", metadataJSON("good", "2020-01-01"), "# good")
			writePost(t, root, "bad", body, "# bad")

			posts, err := newRepo(t, root).ListAllMetadata(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, content.ErrParse)
			assert.Nil(t, posts)
		})
	}
}

func TestMissingRequiredFieldNamesTheField(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePost(t, root, "bad",
		`{"id":"bad","title":"t","description":"d","date":"2020-01-01","keywords":[],"category":"c"}`, "# bad")

	post, err := newRepo(t, root).GetPost(context.Background(), "bad")
	require.ErrorIs(t, err, content.ErrParse)
	assert.Contains(t, err.Error(), "author")
	assert.Equal(t, content.PostContent{}, post)
}

func TestEmptyKeywordsAndCoverAreAccepted(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePost(t, root, "plain",
		`{"id":"plain","title":"t","description":"d","date":"2020-01-01","author":"a","keywords":[],"category":"c"}`, "# plain")

	post, err := newRepo(t, root).GetPost(context.Background(), "plain")
	require.NoError(t, err)
	assert.Empty(t, post.Keywords)
	assert.Empty(t, post.CoverImageURL)
}

func TestGetPostNotFound(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePost(t, root, "body-only", "", "# body")
	writePost(t, root, "meta-only", metadataJSON("meta-only", "2020-01-01"), "")
	repo := newRepo(t, root)

	for _, id := range []string{"missing-id", "body-only", "meta-only", "../metadata/meta-only", "", ".hidden"} {
		_, err := repo.GetPost(context.Background(), id)
		require.Error(t, err, id)
		assert.ErrorIs(t, err, content.ErrNotFound, id)
		assert.ErrorIs(t, err, os.ErrNotExist, id)
	}
}

func TestMetadataIDFollowsFileName(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writePost(t, root, "real-name", metadataJSON("stale-name", "2020-01-01"), "# x")
	repo := newRepo(t, root)

	post, err := repo.GetPost(context.Background(), "real-name")
	require.NoError(t, err)
	assert.Equal(t, "real-name", post.ID)

	all, err := repo.ListAllMetadata(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "real-name", all[0].ID)
}

func TestValidID(t *testing.T) {
	t.Parallel()
	assert.True(t, content.ValidID("hello-world"))
	assert.True(t, content.ValidID("c++ notes"))
	assert.False(t, content.ValidID(""))
	assert.False(t, content.ValidID(".."))
	assert.False(t, content.ValidID("a/b"))
	assert.False(t, content.ValidID(`a\b`))
}
