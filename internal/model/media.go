package model

import (
	"io"
	"time"
)

// File is an upload waiting to be validated and stored. Size is the
// declared length; the reader is still capped at the upload limit.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadResult describes a stored blob.
type UploadResult struct {
	Path     string `json:"path"`
	FullPath string `json:"fullPath"`
	URL      string `json:"url"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	// MimeType is the type the upload was accepted as.
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// UploadOptions are the optional parts of an upload-and-record call.
type UploadOptions struct {
	Folder  string
	PostID  *string
	AltText string
}

type Media struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FilePath   string    `json:"filePath"`
	Bucket     string    `json:"bucket"`
	URL        string    `json:"url"`
	FileSize   int64     `json:"fileSize"`
	MimeType   string    `json:"mimeType"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	UploaderID string    `json:"uploaderId"`
	PostID     *string   `json:"postId"`
	AltText    string    `json:"altText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DeleteOutcome reports one item of a bulk delete.
type DeleteOutcome struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}
