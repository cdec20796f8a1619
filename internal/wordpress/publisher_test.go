package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bryan-buckman/instapress/internal/database"
	"github.com/bryan-buckman/instapress/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeWP simulates the WordPress REST endpoints the publisher uses.
type fakeWP struct {
	mu          sync.Mutex
	uploadCount int
	postCount   int
	postBodies  []map[string]any
	tags        map[string]int64 // existing tag name -> id
	nextID      int64
	failMedia   bool
	failPosts   bool
	server      *httptest.Server
}

func newFakeWP(t *testing.T) *fakeWP {
	t.Helper()
	wp := &fakeWP{tags: make(map[string]int64), nextID: 500}
	wp.server = httptest.NewServer(http.HandlerFunc(wp.handle))
	t.Cleanup(wp.server.Close)
	return wp
}

func (wp *fakeWP) handle(w http.ResponseWriter, r *http.Request) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	switch {
	case r.URL.Path == "/wp-json/wp/v2/media" && r.Method == http.MethodPost:
		if wp.failMedia {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		wp.uploadCount++
		wp.nextID++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%d,"source_url":"https://wp.example/f%d.jpg"}`, wp.nextID, wp.nextID)

	case r.URL.Path == "/wp-json/wp/v2/tags" && r.Method == http.MethodGet:
		search := strings.ToLower(r.URL.Query().Get("search"))
		type tag struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		}
		matches := []tag{}
		for name, id := range wp.tags {
			if strings.Contains(strings.ToLower(name), search) {
				matches = append(matches, tag{ID: id, Name: name})
			}
		}
		json.NewEncoder(w).Encode(matches)

	case r.URL.Path == "/wp-json/wp/v2/tags" && r.Method == http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		wp.nextID++
		wp.tags[body.Name] = wp.nextID
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%d}`, wp.nextID)

	case r.URL.Path == "/wp-json/wp/v2/posts" && r.Method == http.MethodPost:
		if wp.failPosts {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		wp.postCount++
		wp.postBodies = append(wp.postBodies, body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1}`)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestPublisher(t *testing.T, wp *fakeWP) (*Publisher, *database.DB, string) {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	log := zap.NewNop().Sugar()
	client := NewClient(wp.server.URL, "user", "pass", log)
	mediaDir := t.TempDir()
	return NewPublisher(db, client, 7, log), db, mediaDir
}

// addPostWithImage stores a pending post with one downloaded image.
func addPostWithImage(t *testing.T, db *database.DB, mediaDir, postID, caption, timestamp string) {
	t.Helper()
	_, err := db.AddPost(&model.Post{ID: postID, Caption: caption, MediaType: model.MediaTypeImage, Timestamp: timestamp})
	require.NoError(t, err)
	localPath := filepath.Join(mediaDir, postID+".jpg")
	require.NoError(t, os.WriteFile(localPath, []byte("jpeg-bytes"), 0o644))
	_, err = db.AddMedia(&model.Media{ID: postID, PostID: postID, MediaType: model.MediaTypeImage, LocalPath: localPath})
	require.NoError(t, err)
}

func TestPublishPendingMarksDelivered(t *testing.T) {
	wp := newFakeWP(t)
	pub, db, mediaDir := newTestPublisher(t, wp)
	addPostWithImage(t, db, mediaDir, "p1", "Sunset #vibes #ocean", "2023-01-02T03:04:05+0000")

	count, err := pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pending, err := db.PendingPosts()
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.Len(t, wp.postBodies, 1)
	body := wp.postBodies[0]
	assert.Equal(t, "Sunset #vibes #ocean", body["title"])
	assert.Equal(t, "photo-sunset-vibes-ocean", body["slug"])
	assert.Equal(t, "publish", body["status"])
	assert.Equal(t, "2023-01-02T03:04:05Z", body["date"])
	assert.Equal(t, []any{float64(7)}, body["categories"])
	assert.NotZero(t, body["featured_media"])
	assert.Len(t, body["tags"], 2)

	// Re-running never re-creates the post.
	count, err = pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, wp.postCount)
}

func TestCachedUploadIsNeverRepeated(t *testing.T) {
	wp := newFakeWP(t)
	pub, db, mediaDir := newTestPublisher(t, wp)
	addPostWithImage(t, db, mediaDir, "p1", "hello", "")
	require.NoError(t, db.SetMediaUpload("p1", 99, "https://wp.example/cached.jpg"))

	count, err := pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, wp.uploadCount)
	assert.Equal(t, float64(99), wp.postBodies[0]["featured_media"])
}

func TestResetForcesReupload(t *testing.T) {
	wp := newFakeWP(t)
	pub, db, mediaDir := newTestPublisher(t, wp)
	addPostWithImage(t, db, mediaDir, "p1", "hello", "")
	require.NoError(t, db.SetMediaUpload("p1", 99, "https://wp.example/cached.jpg"))

	n, err := db.ResetMediaUploads()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, wp.uploadCount)
}

func TestTestModePublishesOneWithoutMarking(t *testing.T) {
	wp := newFakeWP(t)
	pub, db, mediaDir := newTestPublisher(t, wp)
	addPostWithImage(t, db, mediaDir, "p1", "first", "2023-01-01T00:00:00+0000")
	addPostWithImage(t, db, mediaDir, "p2", "second", "2023-02-01T00:00:00+0000")

	count, err := pub.PublishPending(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, wp.postCount)

	// Dry run: nothing is marked delivered.
	pending, err := db.PendingPosts()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPostCreateFailureLeavesPendingKeepsUploads(t *testing.T) {
	wp := newFakeWP(t)
	wp.failPosts = true
	pub, db, mediaDir := newTestPublisher(t, wp)
	addPostWithImage(t, db, mediaDir, "p1", "hello", "")

	count, err := pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, wp.uploadCount)

	pending, err := db.PendingPosts()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// The upload cache survives the failure and is reused on the retry.
	media, err := db.MediaForPost("p1")
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.True(t, media[0].Uploaded())

	wp.failPosts = false
	count, err = pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, wp.uploadCount)
}

func TestUploadFailureSkipsItemAndContinues(t *testing.T) {
	wp := newFakeWP(t)
	pub, db, mediaDir := newTestPublisher(t, wp)
	addPostWithImage(t, db, mediaDir, "p1", "broken", "2023-01-01T00:00:00+0000")
	addPostWithImage(t, db, mediaDir, "p2", "fine", "2023-02-01T00:00:00+0000")

	// First item's media file is gone; the second item must still go out.
	require.NoError(t, os.Remove(filepath.Join(mediaDir, "p1.jpg")))

	count, err := pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, wp.postBodies, 1)
	assert.Equal(t, "fine", wp.postBodies[0]["title"])

	pending, err := db.PendingPosts()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "p1", pending[0].ID)
}

func TestTagResolutionMatchesCaseInsensitively(t *testing.T) {
	wp := newFakeWP(t)
	wp.tags["Vibes"] = 100
	pub, db, mediaDir := newTestPublisher(t, wp)
	addPostWithImage(t, db, mediaDir, "p1", "Sunset #vibes #ocean", "")

	count, err := pub.PublishPending(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.Len(t, wp.postBodies, 1)
	tags, ok := wp.postBodies[0]["tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, float64(100), tags[0])

	// "ocean" didn't exist and was created.
	wp.mu.Lock()
	_, created := wp.tags["ocean"]
	wp.mu.Unlock()
	assert.True(t, created)
}
