package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clcummin/threat-designer/internal/apperr"
	"github.com/clcummin/threat-designer/internal/store"
)

const maxUploadBytes = 10 << 20 // 10 MiB, mirrors a typical diagram-image ceiling

// generateUploadURL implements generate_upload_url / §6's "Upload":
// returns {presigned, name}. name is an s3_location the caller later passes
// back on start_threat_modeling; presigned is this adapter's own PUT route
// for the blob, since there is no external object store behind this core.
func (h *handler) generateUploadURL(c *gin.Context) {
	key := uuid.New().String()
	name := fmt.Sprintf("s3://%s/%s", h.deps.UploadBucket, key)
	presigned := fmt.Sprintf("%s://%s/api/v1/uploads/%s", schemeOf(c), c.Request.Host, key)
	// The upload is later stored under its normalized s3_location (see
	// putUploadBlob), not the bare key, so a start_threat_modeling request
	// that echoes `name` back as s3_location resolves to the same record
	// internal/executor's loadDiagram looks up.
	c.JSON(http.StatusOK, uploadURLResponse{Presigned: presigned, Name: name})
}

func schemeOf(c *gin.Context) string {
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

// putUploadBlob is this adapter's own presigned-URL target: the client PUTs
// the raw image bytes here, with the mime type in Content-Type. Storage
// quota enforcement (spec.md §3's "null-data sentinel") rejects a blob over
// maxUploadBytes by storing the quota-exceeded sentinel instead of the data.
func (h *handler) putUploadBlob(c *gin.Context) {
	key, err := store.NormalizeS3Location(fmt.Sprintf("s3://%s/%s", h.deps.UploadBucket, c.Param("key")))
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid upload key", err))
		return
	}
	mimeType := c.ContentType()
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	data, readErr := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes+1))
	if readErr != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "failed to read upload body", readErr))
		return
	}
	if len(data) > maxUploadBytes {
		h.deps.Store.PutUploadQuotaExceeded(key, mimeType, "upload exceeds storage quota")
		writeError(c, apperr.New(apperr.KindValidation, "upload exceeds storage quota"))
		return
	}

	h.deps.Store.PutUpload(key, store.UploadedFile{Type: mimeType, Data: data})
	c.Status(http.StatusNoContent)
}

// getDownloadBlob implements get_download_blob / §6's "Download": retrieves
// the stored blob and reconstructs a binary object with its original mime
// type.
func (h *handler) getDownloadBlob(c *gin.Context) {
	key, err := store.NormalizeS3Location(fmt.Sprintf("s3://%s/%s", h.deps.UploadBucket, c.Param("key")))
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindValidation, "invalid upload key", err))
		return
	}
	file, ok := h.deps.Store.GetUpload(key)
	if !ok {
		writeError(c, apperr.New(apperr.KindNotFound, "upload not found"))
		return
	}
	if file.Error != "" || len(file.Data) == 0 {
		writeError(c, apperr.New(apperr.KindNotFound, "upload has no stored data: "+file.Error))
		return
	}
	c.JSON(http.StatusOK, downloadBlobResponse{Name: key, Type: file.Type, Data: file.Data, Timestamp: file.Timestamp})
}
