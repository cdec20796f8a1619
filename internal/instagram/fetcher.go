package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/bryan-buckman/instapress/internal/database"
	"github.com/bryan-buckman/instapress/internal/model"
	"go.uber.org/zap"
)

// listFields are the post fields requested from the listing endpoint.
const listFields = "id,caption,media_type,media_url,permalink,timestamp"

// mediaItem mirrors one entry from the Graph API media endpoints.
type mediaItem struct {
	ID        string `json:"id"`
	Caption   string `json:"caption"`
	MediaType string `json:"media_type"`
	MediaURL  string `json:"media_url"`
	Permalink string `json:"permalink"`
	Timestamp string `json:"timestamp"`
}

// listResponse is a page of the media listing.
type listResponse struct {
	Data   []mediaItem `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Fetcher pulls new posts from Instagram into the store and downloads their
// media files locally.
type Fetcher struct {
	db       database.Store
	client   *http.Client
	baseURL  string
	mediaDir string
	log      *zap.SugaredLogger
}

// NewFetcher creates a fetcher writing media files under mediaDir.
func NewFetcher(db database.Store, mediaDir string, log *zap.SugaredLogger) *Fetcher {
	return &Fetcher{
		db:       db,
		client:   http.DefaultClient,
		baseURL:  DefaultBaseURL,
		mediaDir: mediaDir,
		log:      log,
	}
}

// FetchAndStore fetches new posts, persists each together with its media, and
// downloads the media bytes. Each post and its assets are stored as one
// sequential step before moving to the next, so a crash mid-run leaves no
// half-constructed item: the next run re-fetches anything not yet inserted.
// Returns the number of new posts stored.
func (f *Fetcher) FetchAndStore(ctx context.Context, token string) (int, error) {
	posts, err := f.fetchNewPosts(ctx, token)
	if err != nil {
		return 0, err
	}
	for _, post := range posts {
		f.log.Debugw("processing post", "id", post.ID)
		p := &model.Post{
			ID:        post.ID,
			Caption:   post.Caption,
			MediaType: post.MediaType,
			Permalink: post.Permalink,
			Timestamp: post.Timestamp,
		}
		if _, err := f.db.AddPost(p); err != nil {
			return 0, fmt.Errorf("store post %s: %w", post.ID, err)
		}
		if post.MediaType == model.MediaTypeCarousel {
			for _, child := range f.fetchChildren(ctx, post.ID, token) {
				if err := f.storeMedia(ctx, child.ID, post.ID, child.MediaType, child.MediaURL); err != nil {
					return 0, err
				}
			}
		} else {
			if err := f.storeMedia(ctx, post.ID, post.ID, post.MediaType, post.MediaURL); err != nil {
				return 0, err
			}
		}
	}
	f.log.Debugw("stored new posts", "count", len(posts))
	return len(posts), nil
}

// fetchNewPosts pages through the media listing and returns posts whose IDs
// are not yet stored. Paging stops on the first page with zero new posts, on
// a missing next cursor, or on a non-success response (partial results kept).
func (f *Fetcher) fetchNewPosts(ctx context.Context, token string) ([]mediaItem, error) {
	existing, err := f.db.ExistingPostIDs()
	if err != nil {
		return nil, fmt.Errorf("load existing ids: %w", err)
	}

	var posts []mediaItem
	url := fmt.Sprintf("%s/me/media?fields=%s&access_token=%s", f.baseURL, listFields, token)
	page := 1
	for url != "" {
		f.log.Debugw("fetching page", "page", page)
		var parsed listResponse
		if ok := f.getJSON(ctx, url, &parsed); !ok {
			break
		}
		var fresh []mediaItem
		for _, item := range parsed.Data {
			if _, seen := existing[item.ID]; !seen {
				fresh = append(fresh, item)
			}
		}
		posts = append(posts, fresh...)
		// A page with nothing new bounds the re-fetch cost; the absence of a
		// next cursor ends paging even when the page did contain new posts.
		if len(fresh) == 0 || parsed.Paging.Next == "" {
			break
		}
		url = parsed.Paging.Next
		page++
	}
	f.log.Infow("fetched new posts", "count", len(posts), "pages", page)
	return posts, nil
}

// fetchChildren returns the media children of a carousel post. A non-success
// response yields an empty list; the post itself stays stored and pending.
func (f *Fetcher) fetchChildren(ctx context.Context, postID, token string) []mediaItem {
	url := fmt.Sprintf("%s/%s/children?fields=id,media_type,media_url&access_token=%s",
		f.baseURL, postID, token)
	var parsed struct {
		Data []mediaItem `json:"data"`
	}
	if ok := f.getJSON(ctx, url, &parsed); !ok {
		f.log.Debugw("error fetching children", "post", postID)
		return nil
	}
	return parsed.Data
}

// getJSON performs a GET and decodes the body, reporting success. Transport
// errors and non-200 responses are logged, never propagated.
func (f *Fetcher) getJSON(ctx context.Context, url string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.log.Errorw("build request", "error", err)
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Errorw("instagram request failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.log.Debugw("instagram non-success response", "status", resp.StatusCode)
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		f.log.Errorw("decode instagram response", "error", err)
		return false
	}
	return true
}

// storeMedia persists a media record and downloads its bytes. Download
// failures are logged and left for the next run; the record is kept so the
// existence check retries the file naturally.
func (f *Fetcher) storeMedia(ctx context.Context, mediaID, postID, mediaType, mediaURL string) error {
	localPath := model.LocalMediaPath(f.mediaDir, mediaID, mediaType)
	m := &model.Media{
		ID:        mediaID,
		PostID:    postID,
		MediaType: mediaType,
		MediaURL:  mediaURL,
		LocalPath: localPath,
	}
	if _, err := f.db.AddMedia(m); err != nil {
		return fmt.Errorf("store media %s: %w", mediaID, err)
	}
	if err := f.download(ctx, mediaURL, localPath); err != nil {
		f.log.Errorw("download failed", "media", mediaID, "error", err)
	}
	return nil
}

// download streams a media URL to the local path. Skips when the file already
// exists; on failure no partial file is left behind.
func (f *Fetcher) download(ctx context.Context, mediaURL, localPath string) error {
	if _, err := os.Stat(localPath); err == nil {
		f.log.Debugw("media already downloaded", "path", localPath)
		return nil
	}
	f.log.Debugw("downloading media", "url", mediaURL, "path", localPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("get media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download http %d", resp.StatusCode)
	}

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(localPath)
		return fmt.Errorf("write file: %w", err)
	}
	return file.Close()
}
