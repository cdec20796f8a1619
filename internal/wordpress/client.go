// Package wordpress publishes pending posts to a WordPress site over its
// REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bryan-buckman/instapress/internal/model"
	"go.uber.org/zap"
)

// Client is a minimal WordPress REST API client using application-password
// basic auth.
type Client struct {
	siteURL     string
	username    string
	appPassword string
	client      *http.Client
	log         *zap.SugaredLogger
}

// NewClient creates a client for the given site.
func NewClient(siteURL, username, appPassword string, log *zap.SugaredLogger) *Client {
	return &Client{
		siteURL:     strings.TrimRight(siteURL, "/"),
		username:    username,
		appPassword: appPassword,
		client:      http.DefaultClient,
		log:         log,
	}
}

// UploadMedia uploads a local media file and returns the WordPress media ID
// and served URL.
func (c *Client) UploadMedia(ctx context.Context, localPath, mediaType string) (int64, string, error) {
	contentType := "image/jpeg"
	filename := "instagram_image.jpg"
	if mediaType == model.MediaTypeVideo {
		contentType = "video/mp4"
		filename = "instagram_video.mp4"
	}

	file, err := os.Open(localPath)
	if err != nil {
		return 0, "", fmt.Errorf("open media file: %w", err)
	}
	defer file.Close()

	c.log.Debugw("uploading media", "path", localPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.siteURL+"/wp-json/wp/v2/media", file)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, "", fmt.Errorf("upload http %d", resp.StatusCode)
	}

	var parsed struct {
		ID        int64  `json:"id"`
		SourceURL string `json:"source_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, "", fmt.Errorf("decode upload response: %w", err)
	}
	c.log.Debugw("uploaded media", "wp_media_id", parsed.ID)
	return parsed.ID, parsed.SourceURL, nil
}

// GetOrCreateTag returns the tag ID for a hashtag name, creating the tag when
// no existing one matches case-insensitively. The leading '#' is dropped.
func (c *Client) GetOrCreateTag(ctx context.Context, tagName string) (int64, error) {
	name := strings.TrimPrefix(tagName, "#")

	if id, found := c.searchTag(ctx, name); found {
		return id, nil
	}
	return c.createTag(ctx, name)
}

// searchTag looks for an existing tag whose name matches case-insensitively.
// WordPress search is fuzzy, so the exact match happens client-side.
func (c *Client) searchTag(ctx context.Context, name string) (int64, bool) {
	searchURL := fmt.Sprintf("%s/wp-json/wp/v2/tags?search=%s", c.siteURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return 0, false
	}
	req.SetBasicAuth(c.username, c.appPassword)
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debugw("tag search failed", "tag", name, "error", err)
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	var tags []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return 0, false
	}
	for _, t := range tags {
		if strings.EqualFold(t.Name, name) {
			return t.ID, true
		}
	}
	return 0, false
}

func (c *Client) createTag(ctx context.Context, name string) (int64, error) {
	body, _ := json.Marshal(map[string]string{"name": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.siteURL+"/wp-json/wp/v2/tags", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("create tag: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("create tag http %d", resp.StatusCode)
	}
	var parsed struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode tag response: %w", err)
	}
	return parsed.ID, nil
}

// PostParams holds the fields for a new WordPress post.
type PostParams struct {
	Title         string
	Content       string
	Slug          string
	CategoryID    int
	TagIDs        []int64
	FeaturedMedia int64  // 0 when the post has no featured image
	Date          string // RFC 3339 publish date
}

// CreatePost creates a published post.
func (c *Client) CreatePost(ctx context.Context, p PostParams) error {
	payload := map[string]any{
		"title":      p.Title,
		"content":    p.Content,
		"slug":       p.Slug,
		"status":     "publish",
		"categories": []int{p.CategoryID},
		"tags":       p.TagIDs,
		"date":       p.Date,
	}
	if p.FeaturedMedia != 0 {
		payload["featured_media"] = p.FeaturedMedia
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}

	c.log.Debugw("creating post", "title", p.Title, "date", p.Date)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.siteURL+"/wp-json/wp/v2/posts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("create post request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("create post http %d: %s", resp.StatusCode, detail)
	}
	return nil
}
