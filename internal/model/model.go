// Package model defines shared data structures.
package model

import (
	"path/filepath"
	"time"
)

// Instagram media type values as they appear on the wire.
const (
	MediaTypeImage    = "IMAGE"
	MediaTypeVideo    = "VIDEO"
	MediaTypeCarousel = "CAROUSEL_ALBUM"
)

// Post represents one Instagram post (a single photo/video or a carousel album).
type Post struct {
	ID        string
	Caption   string
	MediaType string
	Permalink string
	Timestamp string // original ISO timestamp from Instagram, kept verbatim
	Posted    bool   // true once published to WordPress
}

// Media represents one image or video file belonging to a post.
// A carousel's children share one post; a single-media post owns exactly
// one Media whose ID equals the post ID.
type Media struct {
	ID        string
	PostID    string
	MediaType string
	MediaURL  string
	LocalPath string
	WPMediaID int64  // 0 until uploaded to WordPress
	WPURL     string // empty until uploaded
}

// Uploaded reports whether this media has a cached WordPress upload.
func (m *Media) Uploaded() bool {
	return m.WPMediaID != 0
}

// Credential is a stored key/value credential entry.
type Credential struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Credential key constants.
const (
	CredentialAccessToken = "access_token"
	CredentialTokenExpiry = "token_expiry"
)

// LocalMediaPath derives the deterministic local file path for a media asset.
func LocalMediaPath(dir, mediaID, mediaType string) string {
	ext := ".jpg"
	if mediaType == MediaTypeVideo {
		ext = ".mp4"
	}
	return filepath.Join(dir, mediaID+ext)
}
