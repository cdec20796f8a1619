// Package transform converts a stored Instagram post into WordPress content.
// Everything here is pure: no I/O, no store access.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bryan-buckman/instapress/internal/model"
	"github.com/gosimple/slug"
)

// Hashtags may contain letters and digits from any script.
var hashtagRe = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

// Upload is a media asset's cached WordPress identity.
type Upload struct {
	MediaID int64
	URL     string
}

// Result is everything the publisher needs to create the WordPress post.
type Result struct {
	Title           string
	Content         string
	Slug            string
	TagNames        []string // raw hashtags, first-occurrence order, not de-duplicated
	FeaturedMediaID string   // source media ID of the first image, empty if none
}

// Post builds the WordPress post content for an Instagram post. uploads maps
// source media IDs to their WordPress uploads; media without an entry are
// omitted from the markup. The featured image is excluded from the body.
func Post(post model.Post, media []model.Media, uploads map[string]Upload) Result {
	caption := post.Caption

	title := caption
	if i := strings.IndexByte(caption, '\n'); i >= 0 {
		title = caption[:i]
	}
	if title == "" {
		title = "Untitled"
	}

	featured := firstImageID(media)

	var content strings.Builder
	for _, m := range media {
		up, ok := uploads[m.ID]
		if !ok || m.ID == featured {
			continue
		}
		switch m.MediaType {
		case model.MediaTypeImage:
			fmt.Fprintf(&content,
				`<!-- wp:image {"id":%d} --><figure class="wp-block-image"><img src="%s" alt="" class="wp-image-%d"/></figure><!-- /wp:image -->`,
				up.MediaID, up.URL, up.MediaID)
		case model.MediaTypeVideo:
			fmt.Fprintf(&content,
				`<!-- wp:video {"id":%d} --><figure class="wp-block-video"><video controls src="%s"></video></figure><!-- /wp:video -->`,
				up.MediaID, up.URL)
		}
	}
	content.WriteString(formatCaption(caption))

	return Result{
		Title:           title,
		Content:         content.String(),
		Slug:            slug.Make("Photo " + title),
		TagNames:        ExtractTags(caption),
		FeaturedMediaID: featured,
	}
}

// ExtractTags returns every hashtag in the caption, in order of appearance.
func ExtractTags(caption string) []string {
	return hashtagRe.FindAllString(caption, -1)
}

// RemoveTags strips hashtags from the caption and trims the result.
func RemoveTags(caption string) string {
	return strings.TrimSpace(hashtagRe.ReplaceAllString(caption, ""))
}

// formatCaption wraps each non-empty caption line in a paragraph block,
// hashtags removed.
func formatCaption(caption string) string {
	var b strings.Builder
	for _, line := range strings.Split(RemoveTags(caption), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "<!-- wp:paragraph --><p>%s</p><!-- /wp:paragraph -->", line)
	}
	return b.String()
}

// firstImageID returns the source ID of the first image in the media list,
// or empty when the post has no image to feature.
func firstImageID(media []model.Media) string {
	for _, m := range media {
		if m.MediaType == model.MediaTypeImage {
			return m.ID
		}
	}
	return ""
}
