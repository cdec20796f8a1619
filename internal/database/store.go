// Package database provides SQLite storage for sync state.
package database

import (
	"time"

	"github.com/bryan-buckman/instapress/internal/model"
)

// Store defines the interface for sync-state operations. The SQLite
// implementation satisfies it; tests may substitute doubles.
type Store interface {
	Close() error

	// Post operations
	ExistingPostIDs() (map[string]struct{}, error)
	AddPost(post *model.Post) (bool, error)
	GetPost(postID string) (*model.Post, error)
	PendingPosts() ([]model.Post, error)
	MarkPostPublished(postID string) error

	// Media operations
	AddMedia(media *model.Media) (bool, error)
	MediaForPost(postID string) ([]model.Media, error)
	SetMediaUpload(mediaID string, wpMediaID int64, wpURL string) error
	ResetMediaUploads() (int64, error)

	// Credential operations
	GetCredential(key string) (string, time.Time, error)
	SetCredential(key, value string) error
}
