package main

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"grievance/libs/backend"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	adminPathPrefix       = "/admin"
	recentChangesLimit    = 10
	insightsDefaultDays   = 30
	insightsMaxDays       = 365
	descriptionPreviewLen = 120
)

type adminFilters struct {
	Status     string
	Department string
}

type adminComplaintRow struct {
	ID           string
	Description  string
	CitizenName  string
	CitizenEmail string
	Location     string
	Status       string
	StatusLabel  string
	Urgency      string
	UrgencyLabel string
	Department   string
	SLADeadline  string
	CreatedAt    string
	UpvoteCount  int
	Editing      bool
	EditURL      string
	ForumURL     string
}

type statusOption struct {
	Value    string
	Label    string
	Selected bool
}

type departmentCount struct {
	Name  string
	Count int
}

type statusChangeRow struct {
	ComplaintID    string
	AdminEmail     string
	PreviousStatus string
	NewStatus      string
	Notes          string
	ChangedAt      string
}

type adminDashboardViewData struct {
	baseViewData
	Filters          adminFilters
	Metrics          *backend.DashboardMetrics
	DepartmentCounts []departmentCount
	MetricsError     string
	Rows             []adminComplaintRow
	ListError        string
	EditID           string
	StatusOptions    []statusOption
	StatusFilter     []statusOption
	Pagination       paginationViewData
	CurrentURL       string
	ExportQuery      string
	RecentChanges    []statusChangeRow
	AuditEnabled     bool
	FollowupDays     int
}

func (a *App) registerAdminRoutes(r *gin.Engine) {
	admin := r.Group(adminPathPrefix)
	admin.Use(a.requireAdmin())
	{
		admin.GET("", a.adminDashboardPageHandler)
		admin.GET("/", a.adminDashboardPageHandler)
		admin.POST("/complaints/:id/status", a.adminStatusSubmitHandler)
		admin.POST("/complaints/:id/notify", a.adminNotifySubmitHandler)
		admin.POST("/complaints/:id/followup", a.adminFollowupSubmitHandler)
		admin.POST("/followups/run", a.adminRunFollowupsSubmitHandler)
		admin.POST("/monitoring/run", a.adminRunMonitoringSubmitHandler)
		admin.GET("/heatmap", a.adminHeatmapPageHandler)
		admin.GET("/heatmap.json", a.adminHeatmapJSONHandler)
		admin.GET("/sentiment", a.adminSentimentPageHandler)
		admin.GET("/export.csv", a.adminExportCSVHandler)
		admin.GET("/export.pdf", a.adminExportPDFHandler)
	}
}

func parseAdminFilters(c *gin.Context) adminFilters {
	status := strings.TrimSpace(c.Query("status"))
	if !backend.IsValidStatus(status) {
		status = ""
	}
	return adminFilters{
		Status:     status,
		Department: strings.TrimSpace(c.Query("department")),
	}
}

func (f adminFilters) query() url.Values {
	query := url.Values{}
	if f.Status != "" {
		query.Set("status", f.Status)
	}
	if f.Department != "" {
		query.Set("department", f.Department)
	}
	return query
}

// currentURL is the dashboard URL for these filters without page or edit.
func (f adminFilters) currentURL() string {
	encoded := f.query().Encode()
	if encoded == "" {
		return adminPathPrefix
	}
	return adminPathPrefix + "?" + encoded
}

func (a *App) adminDashboardPageHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	filters := parseAdminFilters(c)
	page := parsePage(c.Query("page"))
	editID := strings.TrimSpace(c.Query("edit"))
	ctx := c.Request.Context()

	var (
		metrics    *backend.DashboardMetrics
		complaints []backend.Complaint
		metricsErr error
		listErr    error
		g          errgroup.Group
	)
	// A plain group: one failed fetch must not cancel the other.
	g.Go(func() error {
		metrics, metricsErr = a.backend.Dashboard(ctx)
		return metricsErr
	})
	g.Go(func() error {
		complaints, listErr = a.backend.ListComplaints(ctx, backend.ListFilter{
			Limit:      defaultPerPage + 1,
			Offset:     pageOffset(page, defaultPerPage),
			Status:     filters.Status,
			Department: filters.Department,
		})
		return listErr
	})
	if err := g.Wait(); err != nil {
		a.log.Warn("admin dashboard partially loaded", "metrics_err", metricsErr, "list_err", listErr)
	}

	base := a.baseData(c, "page_title_admin", "admin")
	data := adminDashboardViewData{
		baseViewData:  base,
		Filters:       filters,
		Metrics:       metrics,
		EditID:        editID,
		CurrentURL:    filters.currentURL(),
		ExportQuery:   filters.query().Encode(),
		StatusFilter:  buildStatusOptions(lang, filters.Status),
		AuditEnabled:  a.store != nil || a.recentStatusChangesHook != nil,
		FollowupDays:  a.cfg.FollowupDaysWithoutUpdate,
		Rows:          []adminComplaintRow{},
		RecentChanges: []statusChangeRow{},
	}
	if metricsErr != nil {
		data.MetricsError = tf(lang, "error_metrics_load_failed", backendErrorMessage(metricsErr, lang, "error_network"))
	} else if metrics != nil {
		data.DepartmentCounts = sortedDepartmentCounts(metrics.ByDepartment)
	}

	hasNext := false
	if listErr != nil {
		data.ListError = tf(lang, "error_complaints_load_failed", backendErrorMessage(listErr, lang, "error_network"))
	} else {
		if len(complaints) > defaultPerPage {
			hasNext = true
			complaints = complaints[:defaultPerPage]
		}
		pageURL := data.CurrentURL
		if page > defaultPage {
			pageURL = withQueryParam(pageURL, "page", strconv.Itoa(page))
		}
		for _, complaint := range complaints {
			row := a.buildAdminComplaintRow(lang, complaint, pageURL)
			row.Editing = complaint.ID == editID
			if row.Editing {
				data.StatusOptions = buildStatusOptions(lang, complaint.Status)
			}
			data.Rows = append(data.Rows, row)
		}
	}
	data.Pagination = buildPaginationView(page, hasNext, data.CurrentURL)

	if data.AuditEnabled {
		changes, err := a.recentStatusChanges(ctx, recentChangesLimit)
		if err != nil {
			a.log.Error("list recent status changes failed", "err", err)
		}
		for _, change := range changes {
			data.RecentChanges = append(data.RecentChanges, statusChangeRow{
				ComplaintID:    change.ComplaintID,
				AdminEmail:     change.AdminEmail,
				PreviousStatus: statusLabel(lang, change.PreviousStatus),
				NewStatus:      statusLabel(lang, change.NewStatus),
				Notes:          change.Notes,
				ChangedAt:      change.ChangedAt.In(a.timeLocation()).Format("02 Jan 2006 15:04 MST"),
			})
		}
	}

	status := http.StatusOK
	if metricsErr != nil && listErr != nil {
		status = http.StatusBadGateway
	}
	a.renderTemplate(c, status, templateAdminDashboardPath, data)
}

func (a *App) buildAdminComplaintRow(lang string, complaint backend.Complaint, pageURL string) adminComplaintRow {
	return adminComplaintRow{
		ID:           complaint.ID,
		Description:  truncateText(complaint.Description, descriptionPreviewLen),
		CitizenName:  complaint.CitizenName,
		CitizenEmail: complaint.CitizenEmail,
		Location:     formatLocation(complaint.Location),
		Status:       complaint.Status,
		StatusLabel:  statusLabel(lang, complaint.Status),
		Urgency:      complaint.Urgency,
		UrgencyLabel: urgencyLabel(lang, complaint.Urgency),
		Department:   complaint.Department(),
		SLADeadline:  a.formatTimestamp(complaint.SLADeadline),
		CreatedAt:    a.formatTimestamp(complaint.CreatedAt),
		UpvoteCount:  complaint.UpvoteCount,
		EditURL:      withQueryParam(pageURL, "edit", complaint.ID),
		ForumURL:     "/forum/" + url.PathEscape(complaint.ID),
	}
}

func buildStatusOptions(lang, selected string) []statusOption {
	options := make([]statusOption, 0, len(backend.Statuses))
	for _, status := range backend.Statuses {
		options = append(options, statusOption{
			Value:    status,
			Label:    statusLabel(lang, status),
			Selected: status == selected,
		})
	}
	return options
}

func sortedDepartmentCounts(counts map[string]int) []departmentCount {
	rows := make([]departmentCount, 0, len(counts))
	for name, count := range counts {
		rows = append(rows, departmentCount{Name: name, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

func (a *App) adminStatusSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	next := adminRedirectTarget(c.PostForm("next"))
	complaintID := strings.TrimSpace(c.Param("id"))
	newStatus := strings.TrimSpace(c.PostForm("new_status"))
	notes := strings.TrimSpace(c.PostForm("notes"))

	if !backend.IsValidStatus(newStatus) {
		redirectWithMessage(c, next, "error", t(lang, "error_invalid_status"))
		return
	}

	previousStatus := a.currentComplaintStatus(c.Request.Context(), complaintID)
	updated, err := a.backend.UpdateComplaintStatus(c.Request.Context(), complaintID, newStatus, notes)
	if err != nil {
		a.log.Warn("status update failed", "complaint_id", complaintID, "err", err)
		redirectWithMessage(c, next, "error", backendErrorMessage(err, lang, "error_status_update_failed"))
		return
	}

	session, _ := getPortalSession(c)
	change := StatusChange{
		ComplaintID:    complaintID,
		AdminEmail:     session.Email,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Notes:          notes,
	}
	if updated != nil && updated.Status != "" {
		change.NewStatus = updated.Status
	}
	if err := a.recordStatusChange(c.Request.Context(), change); err != nil {
		a.log.Error("failed to record status change", "complaint_id", complaintID, "err", err)
	}

	a.log.Info("complaint status updated", "complaint_id", complaintID, "status", newStatus, "admin", session.Email)
	redirectWithMessage(c, next, "notice", tf(lang, "notice_status_updated", complaintID, statusLabel(lang, newStatus)))
}

// currentComplaintStatus reads the status the backend holds right before a
// change. The audit row keeps it empty when the lookup fails.
func (a *App) currentComplaintStatus(ctx context.Context, complaintID string) string {
	current, err := a.backend.GetComplaint(ctx, complaintID)
	if err != nil {
		a.log.Warn("previous status lookup failed", "complaint_id", complaintID, "err", err)
		return ""
	}
	return current.Status
}

func (a *App) adminNotifySubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	next := adminRedirectTarget(c.PostForm("next"))
	result, err := a.backend.SendNotification(c.Request.Context(), c.Param("id"))
	a.redirectWithOperationResult(c, lang, next, result, err, "notice_notification_sent")
}

func (a *App) adminFollowupSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	next := adminRedirectTarget(c.PostForm("next"))
	result, err := a.backend.FollowupComplaint(c.Request.Context(), c.Param("id"))
	a.redirectWithOperationResult(c, lang, next, result, err, "notice_followup_sent")
}

func (a *App) adminRunFollowupsSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	next := adminRedirectTarget(c.PostForm("next"))
	days := a.cfg.FollowupDaysWithoutUpdate
	if raw := strings.TrimSpace(c.PostForm("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			redirectWithMessage(c, next, "error", t(lang, "error_invalid_days"))
			return
		}
		days = parsed
	}
	result, err := a.backend.RunFollowups(c.Request.Context(), days)
	a.redirectWithOperationResult(c, lang, next, result, err, "notice_followups_run")
}

func (a *App) adminRunMonitoringSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	next := adminRedirectTarget(c.PostForm("next"))
	result, err := a.backend.RunMonitoring(c.Request.Context())
	a.redirectWithOperationResult(c, lang, next, result, err, "notice_monitoring_run")
}

func (a *App) redirectWithOperationResult(c *gin.Context, lang, next string, result *backend.OperationResult, err error, noticeKey string) {
	if err != nil {
		redirectWithMessage(c, next, "error", backendErrorMessage(err, lang, "error_operation_failed"))
		return
	}
	message := t(lang, noticeKey)
	if result != nil && strings.TrimSpace(result.Message) != "" {
		message = result.Message
	}
	redirectWithMessage(c, next, "notice", message)
}

// adminRedirectTarget keeps redirects inside the admin area and drops the edit
// parameter so that a finished edit leaves edit mode.
func adminRedirectTarget(raw string) string {
	target := sanitizeRedirectTarget(raw, adminPathPrefix)
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Path != adminPathPrefix && !strings.HasPrefix(parsed.Path, adminPathPrefix+"/")) {
		return adminPathPrefix
	}
	query := parsed.Query()
	query.Del("edit")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func withQueryParam(rawURL, key, value string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func truncateText(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func formatLocation(location backend.Location) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{location.City, location.District, location.State, location.Pincode} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, strings.TrimSpace(part))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func parseDays(raw string) int {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || days < 1 {
		return insightsDefaultDays
	}
	if days > insightsMaxDays {
		return insightsMaxDays
	}
	return days
}
