package models

import (
	"io"
	"time"
)

/*
 Application layer data models.
*/

// Pin is a single memory post authored by a user
type Pin struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	TextContent     string    `json:"textContent"`
	ImageURLs       []string  `json:"imageUrls"`
	MusicLink       string    `json:"musicLink,omitempty"`
	GifURL          string    `json:"gifUrl,omitempty"`
	Sticker         string    `json:"sticker,omitempty"`
	BackgroundColor string    `json:"backgroundColor,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	IsArchived      bool      `json:"isArchived"`
}

// OwnedBy tells whether the user identified by userID authored the pin
func (p *Pin) OwnedBy(userID string) bool {
	return userID != "" && p.OwnerID == userID
}

// Profile models individual service user as seen by other users
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// RawPinPayload is the pin data as submitted by a client. None of its fields is trusted before validation.
type RawPinPayload struct {
	TextContent     string
	MusicLink       string
	GifURL          string
	Sticker         string
	BackgroundColor string
}

// ValidatedPin is a RawPinPayload that passed validation and normalization
type ValidatedPin struct {
	TextContent     string
	MusicLink       string
	GifURL          string
	Sticker         string
	BackgroundColor string
}

// File is a local attachment selected for upload
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// FeedItem vends a pin along with its resolved author for rendering feeds
type FeedItem struct {
	Pin
	AuthorUsername string `json:"authorUsername"`
	// Editable reports whether the edit window was still open when the feed got assembled
	Editable bool `json:"editable"`
}
