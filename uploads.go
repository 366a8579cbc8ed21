package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/DataGeek404/micro-finance-app-sub001/config"
	"github.com/DataGeek404/micro-finance-app-sub001/gateway"
	"github.com/DataGeek404/micro-finance-app-sub001/models"
	"github.com/DataGeek404/micro-finance-app-sub001/notify"
	"github.com/DataGeek404/micro-finance-app-sub001/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadSizeBytes = 5 << 20
	thumbnailWidth     = 200
)

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

var attachmentMimeTypes = map[string]bool{
	"application/pdf":           true,
	"text/csv":                  true,
	"text/plain; charset=utf-8": true,
	// xlsx files sniff as zip
	"application/zip": true,
}

type uploadResponse struct {
	ObjectKey          string `json:"object_key"`
	URL                string `json:"url"`
	ContentType        string `json:"content_type"`
	Size               int    `json:"size"`
	ThumbnailObjectKey string `json:"thumbnail_object_key,omitempty"`
	ThumbnailURL       string `json:"thumbnail_url,omitempty"`
}

var errUploadTooLarge = &utils.ValidationError{Fields: map[string]string{"file": "max"}, Msg: "file size exceeds 5MB limit"}

// uploadHandler stores one multipart "file" under "<folder>/<uuid><ext>". Images also get a
// 200px wide JPEG thumbnail under "<folder>/thumbnails/".
func (s *server) uploadHandler(c *gin.Context) {
	logger := s.logger
	store := s.gateway()
	if store == nil {
		respondError(c, "Upload failed", models.ErrGatewayNotConfigured)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSizeBytes+(1<<20))
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, "Upload failed", errUploadTooLarge)
			return
		}
		respondError(c, "Upload failed", &utils.ValidationError{Fields: map[string]string{"file": "required"}, Msg: "file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		respondError(c, "Upload failed", err)
		return
	}
	if len(data) > maxUploadSizeBytes {
		respondError(c, "Upload failed", errUploadTooLarge)
		return
	}
	if len(data) == 0 {
		respondError(c, "Upload failed", &utils.ValidationError{Fields: map[string]string{"file": "required"}, Msg: "file is empty"})
		return
	}

	contentType := http.DetectContentType(data)
	isImage := imageMimeTypes[contentType]
	if !isImage && !attachmentMimeTypes[contentType] {
		respondError(c, "Upload failed", &utils.ValidationError{Fields: map[string]string{"file": "mime"}, Msg: "unsupported file type " + contentType})
		return
	}

	folder := utils.SanitizeSegment(c.DefaultPostForm("folder", "uploads"))
	if folder == "" || strings.Contains(folder, "..") {
		folder = "uploads"
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = extensionFromMimeType(contentType)
	}

	ctx := c.Request.Context()
	objectKey := utils.NewObjectKey(folder, ext)
	if err := store.Upload(ctx, objectKey, data, contentType); err != nil {
		logUploadError(logger, err, objectKey)
		respondError(c, "Upload failed", err)
		return
	}

	resp := uploadResponse{
		ObjectKey:   objectKey,
		URL:         store.PublicURL(objectKey),
		ContentType: contentType,
		Size:        len(data),
	}
	if isImage {
		thumbKey, err := createThumbnail(ctx, store, objectKey, data)
		if err != nil {
			logUploadError(logger, err, objectKey)
		} else {
			resp.ThumbnailObjectKey = thumbKey
			resp.ThumbnailURL = store.PublicURL(thumbKey)
		}
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)
	logger.WithFields(logrus.Fields{
		"user_id":    userId,
		"user_name":  userName,
		"mime_type":  contentType,
		"size":       len(data),
		"object_key": objectKey,
	}).Info("[upload.complete]")

	respondCreated(c, resp, notify.Success("File uploaded", header.Filename+" was uploaded"))
}

func createThumbnail(ctx context.Context, store gateway.Blobs, objectKey string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := thumbnailObjectKey(objectKey)
	if err := store.Upload(ctx, thumbnailKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := strings.TrimSuffix(path.Base(objectKey), path.Ext(objectKey)) + ".jpg"
	return path.Join(dir, "thumbnails", filename)
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "application/pdf":
		return ".pdf"
	case "text/csv", "text/plain; charset=utf-8":
		return ".csv"
	case "application/zip":
		return ".xlsx"
	default:
		return ""
	}
}

func logUploadError(logger *logrus.Logger, err error, objectKey string) {
	if logger == nil {
		logger = config.GetLogger()
	}
	config.LogError(logger, "uploads.go", "uploadHandler", "upload", objectKey, err)
}
