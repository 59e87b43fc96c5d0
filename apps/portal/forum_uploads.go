package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"grievance/libs/backend"

	"github.com/google/uuid"
)

const (
	maxForumImages         = 5
	maxForumImageBytes     = 5 << 20
	compensationTimeout    = 15 * time.Second
	staleStagedUploadAge   = time.Hour
	uploadCleanupBatchSize = 100
)

// objectStorage is the part of Supabase storage the forum needs.
type objectStorage interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, data []byte) error
	Remove(ctx context.Context, bucket string, paths []string) error
	PublicURL(bucket, objectPath string) string
}

// uploadLedger tracks forum objects between staging and commit so that
// objects left behind by a failed post can be removed later.
type uploadLedger interface {
	RecordStaged(ctx context.Context, bucket, complaintID string, paths []string) error
	MarkCommitted(ctx context.Context, bucket string, paths []string) error
	MarkOrphaned(ctx context.Context, bucket string, paths []string) error
	Forget(ctx context.Context, bucket string, paths []string) error
	ListCleanupCandidates(ctx context.Context, stagedBefore time.Time, limit int) ([]uploadEntry, error)
}

type queuedImage struct {
	Name     string
	MimeType string
	Data     []byte
}

// imageQueue keeps the pending images of a forum post and their previews in
// lockstep. Index i of Images always belongs to index i of Previews. release
// runs once for every image that leaves the queue.
type imageQueue struct {
	limit    int
	images   []queuedImage
	previews []string
	rejected int
	release  func(image queuedImage, preview string)
}

func newImageQueue(limit int, release func(image queuedImage, preview string)) *imageQueue {
	return &imageQueue{limit: limit, release: release}
}

// Add queues an image unless the queue is full, in which case the image is
// counted as rejected and false is returned.
func (q *imageQueue) Add(image queuedImage, preview string) bool {
	if len(q.images) >= q.limit {
		q.rejected++
		return false
	}
	q.images = append(q.images, image)
	q.previews = append(q.previews, preview)
	return true
}

func (q *imageQueue) Remove(index int) bool {
	if index < 0 || index >= len(q.images) {
		return false
	}
	q.releaseImage(q.images[index], q.previews[index])
	q.images = append(q.images[:index], q.images[index+1:]...)
	q.previews = append(q.previews[:index], q.previews[index+1:]...)
	return true
}

func (q *imageQueue) Images() []queuedImage {
	return append([]queuedImage(nil), q.images...)
}

func (q *imageQueue) Previews() []string {
	return append([]string(nil), q.previews...)
}

func (q *imageQueue) Rejected() int { return q.rejected }

func (q *imageQueue) Len() int { return len(q.images) }

// ReleaseAll drops every queued image in selection order.
func (q *imageQueue) ReleaseAll() {
	for q.Len() > 0 {
		q.Remove(0)
	}
}

func (q *imageQueue) releaseImage(image queuedImage, preview string) {
	if q.release != nil {
		q.release(image, preview)
	}
}

var errUploadsUnavailable = errors.New("image uploads are not configured")

type uploadError struct {
	Name string
	Err  error
}

func (e *uploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *uploadError) Unwrap() error { return e.Err }

// publishForumPost stages every image in object storage and then creates the
// post. Any failure removes the objects staged so far; removals that fail are
// left to the cleanup job through the ledger.
func (a *App) publishForumPost(ctx context.Context, post backend.ForumPostCreate, images []queuedImage) (*backend.ForumPost, error) {
	if len(images) > 0 && a.storage == nil {
		return nil, errUploadsUnavailable
	}

	bucket := a.cfg.StorageBucket
	var uploaded []string
	urls := make([]string, 0, len(images))
	for _, image := range images {
		objectPath := a.objectName(extensionFromMime(image.MimeType, image.Name))
		a.ledgerRecordStaged(ctx, bucket, post.ComplaintID, objectPath)

		if err := a.storage.Upload(ctx, bucket, objectPath, image.MimeType, image.Data); err != nil {
			a.log.Error("forum image upload failed", "complaint_id", post.ComplaintID, "name", image.Name, "err", err)
			a.compensateUploads(ctx, bucket, uploaded, []string{objectPath})
			return nil, &uploadError{Name: image.Name, Err: err}
		}
		uploaded = append(uploaded, objectPath)
		urls = append(urls, a.storage.PublicURL(bucket, objectPath))
	}
	a.metrics.observeUploads("staged", len(uploaded))

	post.ImageURLs = urls
	created, err := a.backend.CreateForumPost(ctx, post)
	if err != nil {
		a.compensateUploads(ctx, bucket, uploaded, nil)
		return nil, err
	}

	if len(uploaded) > 0 {
		a.metrics.observeUploads("committed", len(uploaded))
		if a.ledger != nil {
			if err := a.ledger.MarkCommitted(ctx, bucket, uploaded); err != nil {
				a.log.Error("upload ledger commit failed", "complaint_id", post.ComplaintID, "err", err)
			}
		}
	}
	return created, nil
}

func (a *App) ledgerRecordStaged(ctx context.Context, bucket, complaintID, objectPath string) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.RecordStaged(ctx, bucket, complaintID, []string{objectPath}); err != nil {
		a.log.Error("upload ledger stage failed", "path", objectPath, "err", err)
	}
}

// compensateUploads removes uploaded objects. notUploaded are ledger entries
// whose upload never completed and only need forgetting.
func (a *App) compensateUploads(ctx context.Context, bucket string, uploaded, notUploaded []string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	forget := append([]string(nil), notUploaded...)
	if len(uploaded) > 0 {
		if err := a.storage.Remove(cleanupCtx, bucket, uploaded); err != nil {
			a.log.Error("forum image compensation failed", "bucket", bucket, "paths", uploaded, "err", err)
			a.metrics.observeUploads("orphaned", len(uploaded))
			if a.ledger != nil {
				if err := a.ledger.MarkOrphaned(cleanupCtx, bucket, uploaded); err != nil {
					a.log.Error("upload ledger orphan failed", "err", err)
				}
			}
		} else {
			a.metrics.observeUploads("compensated", len(uploaded))
			forget = append(forget, uploaded...)
		}
	}

	if a.ledger != nil && len(forget) > 0 {
		if err := a.ledger.Forget(cleanupCtx, bucket, forget); err != nil {
			a.log.Error("upload ledger forget failed", "err", err)
		}
	}
}

func (a *App) objectName(ext string) string {
	if a.newObjectName != nil {
		return a.newObjectName(ext)
	}
	return uuid.NewString() + ext
}

func extensionFromMime(mimeType string, fallbackName string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	extensions, _ := mime.ExtensionsByType(mimeType)
	if len(extensions) > 0 {
		return extensions[0]
	}
	ext := strings.ToLower(filepath.Ext(fallbackName))
	if ext == "" {
		return ".jpg"
	}
	return ext
}

func cleanMimeType(input string) string {
	value := strings.TrimSpace(strings.ToLower(input))
	if strings.Contains(value, ";") {
		value = strings.SplitN(value, ";", 2)[0]
	}
	if value == "image/jpg" {
		value = "image/jpeg"
	}
	return strings.TrimSpace(value)
}

// checkImageType returns the image MIME type of data. The declared type may
// be empty; when present it must agree with the sniffed content.
func checkImageType(declared string, data []byte) (string, bool) {
	sniffed := cleanMimeType(http.DetectContentType(data))
	if !strings.HasPrefix(sniffed, "image/") {
		return "", false
	}
	declared = cleanMimeType(declared)
	if declared != "" && declared != "application/octet-stream" && declared != sniffed {
		return "", false
	}
	return sniffed, true
}

// cleanupOrphanedUploads removes objects the ledger marks orphaned or that
// stayed staged past staleStagedUploadAge.
func (a *App) cleanupOrphanedUploads(ctx context.Context) (int, error) {
	if a.ledger == nil || a.storage == nil {
		a.log.Info("upload cleanup skipped", "ledger", a.ledger != nil, "storage", a.storage != nil)
		return 0, nil
	}

	entries, err := a.ledger.ListCleanupCandidates(ctx, time.Now().Add(-staleStagedUploadAge), uploadCleanupBatchSize)
	if err != nil {
		a.metrics.observeJob("upload_cleanup", err)
		return 0, fmt.Errorf("list cleanup candidates: %w", err)
	}

	byBucket := map[string][]string{}
	var buckets []string
	for _, entry := range entries {
		if _, ok := byBucket[entry.Bucket]; !ok {
			buckets = append(buckets, entry.Bucket)
		}
		byBucket[entry.Bucket] = append(byBucket[entry.Bucket], entry.Path)
	}

	removed := 0
	var errs []error
	for _, bucket := range buckets {
		paths := byBucket[bucket]
		if err := a.storage.Remove(ctx, bucket, paths); err != nil {
			errs = append(errs, fmt.Errorf("remove from %s: %w", bucket, err))
			continue
		}
		if err := a.ledger.Forget(ctx, bucket, paths); err != nil {
			errs = append(errs, fmt.Errorf("forget in %s: %w", bucket, err))
			continue
		}
		removed += len(paths)
	}
	a.metrics.observeUploads("cleaned", removed)
	err = errors.Join(errs...)
	a.metrics.observeJob("upload_cleanup", err)
	a.log.Info("upload cleanup finished", "candidates", len(entries), "removed", removed)
	return removed, err
}
