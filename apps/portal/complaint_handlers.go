package main

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"grievance/libs/backend"

	"github.com/gin-gonic/gin"
)

type homeViewData struct {
	baseViewData
}

type complaintFormViewData struct {
	baseViewData
	Form        complaintForm
	FieldErrors map[string]string
	States      []string
}

type complaintSuccessViewData struct {
	baseViewData
	ComplaintID  string
	Status       string
	Department   string
	Urgency      string
	SLADeadline  string
	CreatedAt    string
	StatusURL    string
	CitizenName  string
	CitizenEmail string
}

type statusViewData struct {
	baseViewData
	QueryID   string
	Complaint *complaintStatusView
}

func (a *App) homePageHandler(c *gin.Context) {
	a.renderTemplate(c, http.StatusOK, templateHomePath, homeViewData{
		baseViewData: a.baseData(c, "page_title_home", "home"),
	})
}

func (a *App) complaintFormPageHandler(c *gin.Context) {
	a.renderComplaintForm(c, http.StatusOK, complaintForm{}, nil, "")
}

func (a *App) complaintSubmitHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)

	var form complaintForm
	if err := c.ShouldBind(&form); err != nil {
		a.renderComplaintForm(c, http.StatusBadRequest, form, nil, t(lang, "error_invalid_form"))
		return
	}
	form.normalize()

	if fieldErrors := validateComplaintForm(a.validate, form); len(fieldErrors) > 0 {
		localized := make(map[string]string, len(fieldErrors))
		for field, key := range fieldErrors {
			localized[field] = t(lang, key)
		}
		a.renderComplaintForm(c, http.StatusUnprocessableEntity, form, localized, t(lang, "error_fix_fields"))
		return
	}

	// Only forms that would reach the backend count against the quota.
	if !a.checkRateLimit("complaint:"+c.ClientIP(), complaintRateLimitRequests, rateLimitWindow, time.Now()) {
		a.renderComplaintForm(c, http.StatusTooManyRequests, form, nil, t(lang, "error_rate_limited"))
		return
	}

	receipt, err := a.backend.CreateComplaint(c.Request.Context(), form.toPayload())
	if err != nil {
		a.log.Warn("complaint submission failed", "err", err)
		a.renderComplaintForm(c, statusForBackendError(err), form, nil, backendErrorMessage(err, lang, "error_network"))
		return
	}
	a.metrics.observeComplaintSubmitted()

	statusPath := "/status?id=" + url.QueryEscape(receipt.ID)
	if a.cfg.SendReceiptEmails {
		a.sendComplaintReceipt(lang, *receipt, form, a.cfg.PublicBaseURL+statusPath)
	}

	a.renderTemplate(c, http.StatusOK, templateComplaintResultPath, complaintSuccessViewData{
		baseViewData: a.baseData(c, "page_title_complaint_success", "complaint"),
		ComplaintID:  receipt.ID,
		Status:       statusLabel(lang, receipt.Status),
		Department:   receipt.AssignedDepartment,
		Urgency:      urgencyLabel(lang, receipt.Urgency),
		SLADeadline:  a.formatTimestamp(receipt.SLADeadline),
		CreatedAt:    a.formatTimestamp(receipt.CreatedAt),
		StatusURL:    statusPath,
		CitizenName:  form.CitizenName,
		CitizenEmail: form.CitizenEmail,
	})
}

func (a *App) renderComplaintForm(c *gin.Context, status int, form complaintForm, fieldErrors map[string]string, message string) {
	base := a.baseData(c, "page_title_complaint", "complaint")
	if message != "" {
		base.ErrorMessage = message
	}
	if fieldErrors == nil {
		fieldErrors = map[string]string{}
	}
	a.renderTemplate(c, status, templateComplaintFormPath, complaintFormViewData{
		baseViewData: base,
		Form:         form,
		FieldErrors:  fieldErrors,
		States:       indianStateNames(),
	})
}

// normalizeComplaintID removes every whitespace character, including ones a
// speech transcript or a paste inserts inside the id.
func normalizeComplaintID(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

func (a *App) statusPageHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	base := a.baseData(c, "page_title_status", "status")
	id := normalizeComplaintID(c.Query("id"))
	data := statusViewData{baseViewData: base, QueryID: id}
	if id == "" {
		a.renderTemplate(c, http.StatusOK, templateStatusPath, data)
		return
	}

	status, err := a.backend.GetComplaint(c.Request.Context(), id)
	if err != nil {
		data.ErrorMessage = backendErrorMessage(err, lang, "error_status_not_found")
		a.renderTemplate(c, statusForBackendError(err), templateStatusPath, data)
		return
	}
	view := a.buildStatusView(lang, status)
	data.Complaint = &view
	a.renderTemplate(c, http.StatusOK, templateStatusPath, data)
}

func (a *App) statusAPIHandler(c *gin.Context) {
	lang := a.languageFromRequest(c)
	id := normalizeComplaintID(c.Param("id"))
	if id == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "missing_id", Message: t(lang, "validation_required")})
		return
	}
	status, err := a.backend.GetComplaint(c.Request.Context(), id)
	if err != nil {
		writeAPIError(c, backendAPIError(err, lang))
		return
	}
	c.JSON(http.StatusOK, a.buildStatusView(lang, status))
}

func backendAPIError(err error, lang string) *apiError {
	code := "backend_error"
	var backendErr *backend.Error
	switch {
	case errors.As(err, &backendErr) && backendErr.Code != "":
		code = backendErr.Code
	case errors.Is(err, backend.ErrUnavailable):
		code = "backend_unavailable"
	}
	return &apiError{
		Status:  statusForBackendError(err),
		Code:    code,
		Message: backendErrorMessage(err, lang, "error_network"),
	}
}
