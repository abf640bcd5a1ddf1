package api

// File is storage provider file metadata
type File struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	MimeType    string   `json:"mimeType,omitempty"`
	CreatedTime string   `json:"createdTime,omitempty"`
	Parents     []string `json:"parents,omitempty"`
	Trashed     bool     `json:"trashed,omitempty"`
}

// Change is one entry of the provider change feed
type Change struct {
	FileID  string `json:"fileId"`
	Removed bool   `json:"removed"`
	File    *File  `json:"file,omitempty"`
}

// ChangeList is one page of the change feed.
// Exactly one of NextPageToken or NewStartPageToken is set:
// NewStartPageToken means the feed is drained.
type ChangeList struct {
	Changes           []Change `json:"changes"`
	NextPageToken     string   `json:"nextPageToken,omitempty"`
	NewStartPageToken string   `json:"newStartPageToken,omitempty"`
}

// Channel is a registered push notification subscription
type Channel struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId"`
	Expiration int64  `json:"expiration,string,omitempty"`
}
