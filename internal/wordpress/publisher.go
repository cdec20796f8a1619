package wordpress

import (
	"context"
	"time"

	"github.com/bryan-buckman/instapress/internal/database"
	"github.com/bryan-buckman/instapress/internal/model"
	"github.com/bryan-buckman/instapress/internal/transform"
	"go.uber.org/zap"
)

// instagramTimestamp is the zone-without-colon format the Graph API emits.
const instagramTimestamp = "2006-01-02T15:04:05-0700"

// Publisher pushes pending posts to WordPress, reusing cached media uploads
// and marking posts delivered only on confirmed creation.
type Publisher struct {
	db         database.Store
	client     *Client
	categoryID int
	log        *zap.SugaredLogger
	now        func() time.Time
}

// NewPublisher creates a publisher posting into the given category.
func NewPublisher(db database.Store, client *Client, categoryID int, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		db:         db,
		client:     client,
		categoryID: categoryID,
		log:        log,
		now:        time.Now,
	}
}

// PublishPending publishes every pending post, one at a time. A failure on
// one post skips it and continues; it stays pending for the next run. In test
// mode only the first pending post is published and its delivery flag is left
// unset. Returns the number of posts created.
func (p *Publisher) PublishPending(ctx context.Context, testMode bool) (int, error) {
	pending, err := p.db.PendingPosts()
	if err != nil {
		return 0, err
	}
	if len(pending) > 0 {
		p.log.Infow("found pending posts", "count", len(pending))
	}
	if testMode && len(pending) > 1 {
		pending = pending[:1]
	}

	published := 0
	for _, post := range pending {
		if err := p.publishOne(ctx, post, testMode); err != nil {
			p.log.Errorw("publish failed, post left pending", "post", post.ID, "error", err)
			continue
		}
		published++
	}
	return published, nil
}

func (p *Publisher) publishOne(ctx context.Context, post model.Post, testMode bool) error {
	p.log.Debugw("publishing post", "id", post.ID)

	mediaList, err := p.db.MediaForPost(post.ID)
	if err != nil {
		return err
	}
	uploads, err := p.resolveMedia(ctx, mediaList)
	if err != nil {
		return err
	}

	result := transform.Post(post, mediaList, uploads)

	// A tag that fails to resolve is dropped, never aborts the post.
	var tagIDs []int64
	for _, name := range result.TagNames {
		id, err := p.client.GetOrCreateTag(ctx, name)
		if err != nil {
			p.log.Debugw("skipping unresolvable tag", "tag", name, "error", err)
			continue
		}
		tagIDs = append(tagIDs, id)
	}

	var featured int64
	if up, ok := uploads[result.FeaturedMediaID]; ok {
		featured = up.MediaID
	}

	if err := p.client.CreatePost(ctx, PostParams{
		Title:         result.Title,
		Content:       result.Content,
		Slug:          result.Slug,
		CategoryID:    p.categoryID,
		TagIDs:        tagIDs,
		FeaturedMedia: featured,
		Date:          p.publishDate(post.Timestamp),
	}); err != nil {
		return err
	}

	if testMode {
		p.log.Infow("test post created, not marking as posted", "post", post.ID)
		return nil
	}
	if err := p.db.MarkPostPublished(post.ID); err != nil {
		return err
	}
	p.log.Debugw("published post", "id", post.ID)
	return nil
}

// resolveMedia returns the WordPress upload for every media asset, uploading
// those without a cached one and persisting the result before moving on.
// Already-uploaded assets are never re-uploaded. Uploads cached before a
// later failure stay cached; they are reused on the retry instead of being
// rolled back.
func (p *Publisher) resolveMedia(ctx context.Context, mediaList []model.Media) (map[string]transform.Upload, error) {
	uploads := make(map[string]transform.Upload)
	for _, m := range mediaList {
		if m.Uploaded() {
			p.log.Debugw("using cached media upload", "media", m.ID, "wp_media_id", m.WPMediaID)
			uploads[m.ID] = transform.Upload{MediaID: m.WPMediaID, URL: m.WPURL}
			continue
		}
		wpID, wpURL, err := p.client.UploadMedia(ctx, m.LocalPath, m.MediaType)
		if err != nil {
			return nil, err
		}
		if err := p.db.SetMediaUpload(m.ID, wpID, wpURL); err != nil {
			return nil, err
		}
		uploads[m.ID] = transform.Upload{MediaID: wpID, URL: wpURL}
	}
	return uploads, nil
}

// publishDate normalizes the Instagram timestamp to RFC 3339, falling back to
// the current time when the source didn't provide one.
func (p *Publisher) publishDate(timestamp string) string {
	if timestamp != "" {
		if t, err := time.Parse(instagramTimestamp, timestamp); err == nil {
			return t.Format(time.RFC3339)
		}
		if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return p.now().UTC().Format(time.RFC3339)
}
