package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"portalti-api/services"
)

// ExportPazYSalvos writes the filtered sign-off listing as an XLSX report.
func ExportPazYSalvos(c *gin.Context) {
	result, err := getPazYSalvoService().List(c.Request.Context(), services.DocumentQuery{
		Status:   strings.TrimSpace(c.Query("status")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     1,
		PageSize: 10000, // export is unpaged
	})
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "PazYSalvos"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"ID", "Funcionario", "RUT", "Estado", "Motivo", "Fecha salida",
		"Firmas pendientes", "Firmas registradas", "Firmas requeridas", "Enviado", "Aprobado", "Cerrado"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, item := range result.Items {
		values := []interface{}{
			item.ID,
			item.EmployeeName,
			item.EmployeeRut,
			item.Status,
			item.Reason,
			item.ExitDate.Format("02-01-2006"),
			item.PendingCount,
			item.SignedCount,
			item.RequiredCount,
			formatOptionalDate(item.SentAt),
			formatOptionalDate(item.ApprovedAt),
			formatOptionalDate(item.ClosedAt),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("pazysalvos-%s.xlsx", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate export"})
	}
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02-01-2006 15:04")
}
