package main

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"grievance/libs/backend"

	"github.com/gin-gonic/gin"
)

const (
	forumPathPrefix      = "/forum"
	trendingDefaultLimit = 10
	trendingMaxLimit     = 50
	// maxForumPostBytes leaves room for a few images past the cap, which
	// are counted as rejected rather than failing the post.
	maxForumPostBytes = 8*maxForumImageBytes + 1<<20
)

type forumDraft struct {
	AuthorName    string
	AuthorEmail   string
	Content       string
	// PendingImages names the images a failed post did not publish. File
	// inputs cannot be refilled, so the page asks for them again.
	PendingImages []string
}

type forumPostView struct {
	AuthorName string
	Content    string
	ImageURLs  []string
	Upvotes    int
	Downvotes  int
	CreatedAt  string
	createdAt  time.Time
}

type forumComplaintRow struct {
	ID             string
	Description    string
	Status         string
	Department     string
	Location       string
	UpvoteCount    int
	ForumPostCount int
	PriorityBoost  string
}

type forumViewData struct {
	baseViewData
	ComplaintID   string
	Loaded        bool
	UpvoteCount   int
	PostCount     int
	PriorityBoost string
	Posts         []forumPostView
	Similar       []forumComplaintRow
	Draft         forumDraft
	VoterEmail    string
	MaxImages     int
	MaxImageMB    int
}

type forumTrendingViewData struct {
	baseViewData
	Limit int
	Rows  []forumComplaintRow
}

func (a *App) registerForumRoutes(r *gin.Engine) {
	forum := r.Group(forumPathPrefix)
	{
		forum.GET("/trending", a.forumTrendingPageHandler)
		forum.GET("/:complaint_id", a.forumPageHandler)
		forum.POST("/:complaint_id/vote", a.forumVoteSubmitHandler)
		forum.POST("/:complaint_id/posts", a.forumPostSubmitHandler)
	}
}

func forumPath(complaintID string) string {
	return forumPathPrefix + "/" + url.PathEscape(complaintID)
}

func (a *App) forumPageHandler(c *gin.Context) {
	draft := forumDraft{}
	if session := a.currentSession(c); session != nil {
		draft.AuthorEmail = session.Email
	}
	a.renderForumPage(c, http.StatusOK, normalizeComplaintID(c.Param("complaint_id")), draft, "")
}

func (a *App) renderForumPage(c *gin.Context, status int, complaintID string, draft forumDraft, errorMessage string) {
	lang := a.languageFromRequest(c)
	data := forumViewData{
		baseViewData: a.baseData(c, "page_title_forum", "forum"),
		ComplaintID:  complaintID,
		Draft:        draft,
		VoterEmail:   draft.AuthorEmail,
		MaxImages:    maxForumImages,
		MaxImageMB:   maxForumImageBytes >> 20,
	}
	if errorMessage != "" {
		data.ErrorMessage = errorMessage
	}

	thread, err := a.backend.Forum(c.Request.Context(), complaintID)
	if err != nil {
		if data.ErrorMessage == "" {
			data.ErrorMessage = backendErrorMessage(err, lang, "error_forum_load_failed")
			status = statusForBackendError(err)
		}
		a.renderTemplate(c, status, templateForumPath, data)
		return
	}

	data.Loaded = true
	data.UpvoteCount = thread.UpvoteCount
	data.PostCount = thread.PostCount
	data.PriorityBoost = fmt.Sprintf("%.1f", thread.CommunityPriorityBoost)
	data.Posts = a.buildForumPosts(thread.Posts)
	for _, complaint := range thread.SimilarComplaints {
		data.Similar = append(data.Similar, buildForumComplaintRow(lang, complaint))
	}
	a.renderTemplate(c, status, templateForumPath, data)
}

// buildForumPosts orders posts newest first. Posts with unparseable
// timestamps keep their backend order after the dated ones.
func (a *App) buildForumPosts(posts []backend.ForumPost) []forumPostView {
	views := make([]forumPostView, 0, len(posts))
	for _, post := range posts {
		created, _ := parseBackendTimestamp(post.CreatedAt)
		views = append(views, forumPostView{
			AuthorName: post.AuthorName,
			Content:    post.Content,
			ImageURLs:  post.ImageURLs,
			Upvotes:    post.Upvotes,
			Downvotes:  post.Downvotes,
			CreatedAt:  a.formatTimestamp(post.CreatedAt),
			createdAt:  created,
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].createdAt.After(views[j].createdAt)
	})
	return views
}

func buildForumComplaintRow(lang string, complaint backend.Complaint) forumComplaintRow {
	return forumComplaintRow{
		ID:             complaint.ID,
		Description:    truncateText(complaint.Description, descriptionPreviewLen),
		Status:         statusLabel(lang, complaint.Status),
		Department:     complaint.Department(),
		Location:       formatLocation(complaint.Location),
		UpvoteCount:    complaint.UpvoteCount,
		ForumPostCount: complaint.ForumPostCount,
		PriorityBoost:  fmt.Sprintf("%.1f", complaint.CommunityPriorityBoost),
	}
}

func (a *App) forumTrendingPageHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	limit := trendingDefaultLimit
	if parsed, err := strconv.Atoi(strings.TrimSpace(c.Query("limit"))); err == nil && parsed > 0 {
		limit = min(parsed, trendingMaxLimit)
	}

	data := forumTrendingViewData{
		baseViewData: a.baseData(c, "page_title_forum_trending", "forum"),
		Limit:        limit,
		Rows:         []forumComplaintRow{},
	}
	complaints, err := a.backend.Trending(c.Request.Context(), limit)
	if err != nil {
		data.ErrorMessage = backendErrorMessage(err, lang, "error_forum_load_failed")
		a.renderTemplate(c, statusForBackendError(err), templateForumTrendingPath, data)
		return
	}
	for _, complaint := range complaints {
		data.Rows = append(data.Rows, buildForumComplaintRow(lang, complaint))
	}
	a.renderTemplate(c, http.StatusOK, templateForumTrendingPath, data)
}

func (a *App) forumVoteSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	complaintID := normalizeComplaintID(c.Param("complaint_id"))
	target := forumPath(complaintID)

	if !a.checkRateLimit("vote:"+c.ClientIP(), forumVoteRateLimitRequests, rateLimitWindow, time.Now()) {
		redirectWithMessage(c, target, "error", t(lang, "error_rate_limited"))
		return
	}

	voterEmail := strings.ToLower(strings.TrimSpace(c.PostForm("voter_email")))
	if err := a.validate.Var(voterEmail, "required,email"); err != nil {
		redirectWithMessage(c, target, "error", t(lang, "error_voter_email_required"))
		return
	}
	voteType := strings.TrimSpace(c.PostForm("vote_type"))
	if voteType != backend.VoteUp && voteType != backend.VoteDown {
		redirectWithMessage(c, target, "error", t(lang, "error_invalid_vote"))
		return
	}

	result, err := a.backend.Vote(c.Request.Context(), backend.VoteRequest{
		ComplaintID: complaintID,
		VoterEmail:  voterEmail,
		VoteType:    voteType,
	})
	if err != nil {
		a.log.Warn("forum vote failed", "complaint_id", complaintID, "err", err)
		redirectWithMessage(c, target, "error", backendErrorMessage(err, lang, "error_vote_failed"))
		return
	}
	redirectWithMessage(c, target, "notice", tf(lang, "notice_vote_recorded", voteActionLabel(lang, result.Action), result.UpvoteCount))
}

func (a *App) forumPostSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	complaintID := normalizeComplaintID(c.Param("complaint_id"))

	tooLarge := tf(lang, "error_post_too_large", maxForumImages, maxForumImageBytes>>20)
	if c.Request.ContentLength > maxForumPostBytes {
		a.renderForumPage(c, http.StatusRequestEntityTooLarge, complaintID, forumDraft{}, tooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxForumPostBytes)
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			a.renderForumPage(c, http.StatusRequestEntityTooLarge, complaintID, forumDraft{}, tooLarge)
			return
		}
		a.renderForumPage(c, http.StatusBadRequest, complaintID, forumDraft{}, t(lang, "error_invalid_form"))
		return
	}

	draft := forumDraft{
		AuthorName:  strings.TrimSpace(c.PostForm("author_name")),
		AuthorEmail: strings.ToLower(strings.TrimSpace(c.PostForm("author_email"))),
		Content:     strings.TrimSpace(c.PostForm("content")),
	}
	if draft.AuthorName == "" || draft.Content == "" || a.validate.Var(draft.AuthorEmail, "required,email") != nil {
		a.renderForumPage(c, http.StatusUnprocessableEntity, complaintID, draft, t(lang, "error_forum_fields_required"))
		return
	}

	if !a.checkRateLimit("forum_post:"+c.ClientIP(), forumPostRateLimitRequests, rateLimitWindow, time.Now()) {
		a.renderForumPage(c, http.StatusTooManyRequests, complaintID, draft, t(lang, "error_rate_limited"))
		return
	}

	queue, apiErr := a.readForumImages(c, lang)
	if apiErr != nil {
		a.renderForumPage(c, apiErr.Status, complaintID, draft, apiErr.Message)
		return
	}
	defer queue.ReleaseAll()

	_, err := a.publishForumPost(c.Request.Context(), backend.ForumPostCreate{
		ComplaintID: complaintID,
		AuthorName:  draft.AuthorName,
		AuthorEmail: draft.AuthorEmail,
		Content:     draft.Content,
	}, queue.Images())
	if err != nil {
		status, message := a.forumPostError(lang, err)
		draft.PendingImages = queue.Previews()
		a.renderForumPage(c, status, complaintID, draft, message)
		return
	}

	target, _ := url.Parse(forumPath(complaintID))
	query := target.Query()
	query.Set("notice", t(lang, "notice_post_created"))
	if rejected := queue.Rejected(); rejected > 0 {
		query.Set("warning", tf(lang, "warning_images_rejected", maxForumImages, rejected))
	}
	target.RawQuery = query.Encode()
	c.Redirect(http.StatusSeeOther, target.String())
}

// readForumImages queues the uploaded images in selection order. Files past
// maxForumImages are counted as rejected without being read. The queue's
// buffered bytes show up in the forum image buffer gauge until released.
func (a *App) readForumImages(c *gin.Context, lang string) (*imageQueue, *apiError) {
	queue := newImageQueue(maxForumImages, a.releaseForumImage)
	if c.Request.MultipartForm == nil {
		return queue, nil
	}

	for idx, fileHeader := range c.Request.MultipartForm.File["images"] {
		name := strings.TrimSpace(fileHeader.Filename)
		if name == "" {
			name = fmt.Sprintf("image-%d", idx+1)
		}
		if queue.Len() >= maxForumImages {
			queue.Add(queuedImage{Name: name}, name)
			continue
		}

		data, apiErr := readForumImage(lang, name, fileHeader)
		if apiErr != nil {
			queue.ReleaseAll()
			return nil, apiErr
		}
		mimeType, ok := checkImageType(fileHeader.Header.Get("Content-Type"), data)
		if !ok {
			queue.ReleaseAll()
			return nil, &apiError{Status: http.StatusUnsupportedMediaType, Code: "invalid_image_type", Message: tf(lang, "error_image_type", name)}
		}
		queue.Add(queuedImage{Name: name, MimeType: mimeType, Data: data}, name)
		a.metrics.observeImageBuffer(len(data))
	}
	return queue, nil
}

func readForumImage(lang, name string, fileHeader *multipart.FileHeader) ([]byte, *apiError) {
	opened, err := fileHeader.Open()
	if err != nil {
		return nil, &apiError{Status: http.StatusBadRequest, Code: "invalid_image", Message: tf(lang, "error_image_type", name)}
	}
	defer opened.Close()

	data, err := io.ReadAll(io.LimitReader(opened, maxForumImageBytes+1))
	if err != nil {
		return nil, &apiError{Status: http.StatusBadRequest, Code: "invalid_image", Message: tf(lang, "error_image_type", name)}
	}
	if len(data) > maxForumImageBytes {
		return nil, &apiError{Status: http.StatusRequestEntityTooLarge, Code: "image_too_large", Message: tf(lang, "error_image_too_large", name, maxForumImageBytes>>20)}
	}
	return data, nil
}

func (a *App) releaseForumImage(image queuedImage, _ string) {
	if len(image.Data) > 0 {
		a.metrics.observeImageBuffer(-len(image.Data))
	}
}

func (a *App) forumPostError(lang string, err error) (int, string) {
	var uploadErr *uploadError
	switch {
	case errors.Is(err, errUploadsUnavailable):
		return http.StatusServiceUnavailable, t(lang, "error_uploads_unavailable")
	case errors.As(err, &uploadErr):
		return http.StatusBadGateway, tf(lang, "error_image_upload_failed", uploadErr.Name)
	default:
		a.log.Warn("forum post failed", "err", err)
		return statusForBackendError(err), backendErrorMessage(err, lang, "error_forum_post_failed")
	}
}
