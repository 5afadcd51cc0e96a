package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medicore/medicore-api/pkg/config"
	appErrors "github.com/medicore/medicore-api/pkg/errors"
	"github.com/medicore/medicore-api/pkg/storage"
)

// saveUpload reads one multipart file field, enforces the configured size and
// MIME limits by sniffing the first 512 bytes, and stores the file under
// prefix with a random name. Returns the stored relative path.
func saveUpload(c *gin.Context, field, prefix string, store *storage.LocalStorage, uploads config.UploadsConfig) (string, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s file required", field))
	}
	if uploads.MaxFileSizeBytes > 0 && fileHeader.Size > uploads.MaxFileSizeBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "file exceeds the size limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	defer file.Close()

	head := make([]byte, 512)
	n, _ := file.Read(head)
	contentType := http.DetectContentType(head[:n])
	if !mimeAllowed(uploads, contentType) {
		return "", appErrors.Clone(appErrors.ErrUnsupportedMedia, fmt.Sprintf("file type %s is not allowed", contentType))
	}
	if _, err := file.Seek(0, 0); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}

	relPath := fmt.Sprintf("%s/%s%s", prefix, uuid.NewString(), filepath.Ext(fileHeader.Filename))
	if _, err := store.SaveStream(relPath, file); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return relPath, nil
}

func mimeAllowed(uploads config.UploadsConfig, contentType string) bool {
	for _, allowed := range uploads.AllowedMIMEs {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
