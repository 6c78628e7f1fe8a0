// server/internal/models/common.go
package models

// MediaPointer references a file kept in object storage (S3 or compatible).
type MediaPointer struct {
	ID         string `bson:"id" json:"id"`
	URL        string `bson:"url" json:"url"`
	FileName   string `bson:"fileName" json:"fileName"`
	FileType   string `bson:"fileType" json:"fileType"`
	UploadedBy string `bson:"uploadedBy,omitempty" json:"uploadedBy,omitempty"`
}
