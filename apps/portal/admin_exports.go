package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"grievance/libs/backend"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
)

const exportRowLimit = 500

func buildComplaintsCSV(complaints []backend.Complaint) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	header := []string{
		"id", "status", "urgency", "department", "escalation_level",
		"state", "district", "city", "pincode",
		"citizen_name", "citizen_email", "citizen_phone",
		"upvotes", "forum_posts", "sla_deadline", "created_at", "updated_at", "description",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, complaint := range complaints {
		row := []string{
			complaint.ID,
			complaint.Status,
			complaint.Urgency,
			complaint.Department(),
			complaint.EscalationLevel,
			complaint.Location.State,
			complaint.Location.District,
			complaint.Location.City,
			complaint.Location.Pincode,
			complaint.CitizenName,
			complaint.CitizenEmail,
			complaint.CitizenPhone,
			strconv.Itoa(complaint.UpvoteCount),
			strconv.Itoa(complaint.ForumPostCount),
			complaint.SLADeadline,
			complaint.CreatedAt,
			complaint.UpdatedAt,
			complaint.Description,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func buildComplaintsPDF(complaints []backend.Complaint, filters adminFilters, generatedAt string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 16)
	pdf.Cell(0, 10, "Grievance complaints summary")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, tr("Generated: "+generatedAt))
	pdf.Ln(7)
	if filters.Status != "" || filters.Department != "" {
		pdf.Cell(0, 8, tr(fmt.Sprintf("Filters: status=%s department=%s", valueOrDash(filters.Status), valueOrDash(filters.Department))))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Total complaints: %d", len(complaints)))
	pdf.Ln(10)

	statusCounts := map[string]int{}
	departmentCounts := map[string]int{}
	for _, complaint := range complaints {
		statusCounts[complaint.Status]++
		departmentCounts[valueOrDash(complaint.Department())]++
	}

	writeDistribution := func(title string, counts map[string]int) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, title)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, entry := range sortedDepartmentCounts(counts) {
			pdf.Cell(0, 6, tr(fmt.Sprintf("- %s: %d", entry.Name, entry.Count)))
			pdf.Ln(6)
		}
		pdf.Ln(4)
	}
	writeDistribution("Status distribution", statusCounts)
	writeDistribution("Department distribution", departmentCounts)

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func valueOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func (a *App) exportComplaints(c *gin.Context) ([]backend.Complaint, adminFilters, bool) {
	lang := a.languageFromRequest(c)
	filters := parseAdminFilters(c)
	complaints, err := a.backend.ListComplaints(c.Request.Context(), backend.ListFilter{
		Limit:      exportRowLimit,
		Status:     filters.Status,
		Department: filters.Department,
	})
	if err != nil {
		a.log.Error("export complaints failed", "err", err)
		redirectWithMessage(c, filters.currentURL(), "error",
			tf(lang, "error_complaints_load_failed", backendErrorMessage(err, lang, "error_network")))
		return nil, filters, false
	}
	sort.SliceStable(complaints, func(i, j int) bool { return complaints[i].CreatedAt > complaints[j].CreatedAt })
	return complaints, filters, true
}

func exportFileName(ext string) string {
	return fmt.Sprintf("complaints-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
}

func (a *App) adminExportCSVHandler(c *gin.Context) {
	complaints, _, ok := a.exportComplaints(c)
	if !ok {
		return
	}
	body, err := buildComplaintsCSV(complaints)
	if err != nil {
		a.log.Error("build csv export failed", "err", err)
		c.String(http.StatusInternalServerError, "export failed")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName("csv")))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

func (a *App) adminExportPDFHandler(c *gin.Context) {
	complaints, filters, ok := a.exportComplaints(c)
	if !ok {
		return
	}
	generatedAt := time.Now().In(a.timeLocation()).Format("02 Jan 2006 15:04 MST")
	body, err := buildComplaintsPDF(complaints, filters, generatedAt)
	if err != nil {
		a.log.Error("build pdf export failed", "err", err)
		c.String(http.StatusInternalServerError, "export failed")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName("pdf")))
	c.Data(http.StatusOK, "application/pdf", body)
}
