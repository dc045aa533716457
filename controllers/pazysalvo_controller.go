package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"portalti-api/config"
	"portalti-api/models"
	"portalti-api/services"
)

var (
	pazYSalvoOnce    sync.Once
	pazYSalvoService *services.PazYSalvoService
)

func getPazYSalvoService() *services.PazYSalvoService {
	pazYSalvoOnce.Do(func() {
		pazYSalvoService = services.NewPazYSalvoService(
			services.NewGormDocumentStore(nil),
			services.NewGormDirectory(nil),
			services.NewNotificationService(nil),
			services.NewActaRenderer(),
			services.NewLocalStorage(""),
		)
	})
	return pazYSalvoService
}

// CreatePazYSalvo opens a new sign-off document for a departing employee.
func CreatePazYSalvo(c *gin.Context) {
	var req services.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	actor := currentActor(c)
	doc, err := getPazYSalvoService().Create(c.Request.Context(), req, actor.UserID)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	writeAudit(c, actor.UserID, "create", doc.ID, gin.H{"employee_id": doc.EmployeeID, "status": doc.Status})
	c.JSON(http.StatusCreated, gin.H{"success": true, "pazysalvo": doc})
}

// ListPazYSalvos returns paged summaries with state filter and free-text
// search over employee name, rut and reason.
func ListPazYSalvos(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := getPazYSalvoService().List(c.Request.Context(), services.DocumentQuery{
		Status:   strings.TrimSpace(c.Query("status")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// GetPazYSalvo returns the full aggregate.
func GetPazYSalvo(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	doc, err := getPazYSalvoService().GetDetail(c.Request.Context(), id)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "pazysalvo": doc})
}

// SignPazYSalvo records a signature on the given role's slot.
func SignPazYSalvo(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	var req struct {
		Role    string `json:"rol" binding:"required"`
		Comment string `json:"comentario"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	actor := currentActor(c)
	doc, err := getPazYSalvoService().Sign(c.Request.Context(), id, req.Role, actor, req.Comment)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	writeAudit(c, actor.UserID, "sign", doc.ID, gin.H{"rol": req.Role, "status": doc.Status})
	c.JSON(http.StatusOK, gin.H{"success": true, "pazysalvo": doc})
}

// RejectPazYSalvo rejects a pending slot and the whole document with it.
func RejectPazYSalvo(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	var req struct {
		Role   string `json:"rol" binding:"required"`
		Reason string `json:"motivo" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	actor := currentActor(c)
	doc, err := getPazYSalvoService().Reject(c.Request.Context(), id, req.Role, actor, req.Reason)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	writeAudit(c, actor.UserID, "reject", doc.ID, gin.H{"rol": req.Role, "motivo": req.Reason})
	c.JSON(http.StatusOK, gin.H{"success": true, "pazysalvo": doc})
}

// ClosePazYSalvo runs the explicit close path: acta rendering, storage and
// final hash.
func ClosePazYSalvo(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	actor := currentActor(c)
	doc, err := getPazYSalvoService().Close(c.Request.Context(), id, actor.UserID)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	writeAudit(c, actor.UserID, "close", doc.ID, gin.H{"pdf_path": doc.PDFPath})
	c.JSON(http.StatusOK, gin.H{"success": true, "pazysalvo": doc})
}

// CreatePazYSalvoException appends an advisory override record.
func CreatePazYSalvoException(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	var req struct {
		Justification string `json:"justificacion" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	actor := currentActor(c)
	doc, err := getPazYSalvoService().CreateException(c.Request.Context(), id, actor.UserID, req.Justification)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	writeAudit(c, actor.UserID, "exception", doc.ID, gin.H{"justificacion": req.Justification})
	c.JSON(http.StatusOK, gin.H{"success": true, "pazysalvo": doc})
}

// VerifyPazYSalvoHash recomputes the final hash and reports validity.
func VerifyPazYSalvoHash(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	result, err := getPazYSalvoService().VerifyHash(c.Request.Context(), id)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "verification": result})
}

// DownloadActa streams the stored closing certificate.
func DownloadActa(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}

	doc, err := getPazYSalvoService().GetDetail(c.Request.Context(), id)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	if doc.PDFPath == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Acta not generated yet"})
		return
	}

	c.FileAttachment(*doc.PDFPath, "acta-pys-"+strconv.Itoa(doc.ID)+".html")
}

func documentID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID"})
		return 0, false
	}
	return id, true
}

func currentActor(c *gin.Context) services.Actor {
	actor := services.Actor{}
	if v, exists := c.Get("userID"); exists {
		actor.UserID, _ = v.(int)
	}
	return actor
}

// respondWorkflowError maps the workflow error taxonomy to HTTP responses,
// keeping enough structure for the SPA to react programmatically.
func respondWorkflowError(c *gin.Context, err error) {
	var notFound *services.NotFoundError
	var invalidState *services.InvalidStateError
	var unauthorized *services.UnauthorizedError
	var validation *services.ValidationError
	var integrity *services.IntegrityError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &invalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error":          invalidState.Error(),
			"current_state":  invalidState.Current,
			"required_state": invalidState.Required,
		})
	case errors.As(err, &unauthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":         unauthorized.Error(),
			"required_role": unauthorized.RequiredRole,
		})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &integrity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": integrity.Error()})
	case errors.Is(err, services.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
	}
}

func writeAudit(c *gin.Context, userID int, action string, entityID int, values gin.H) {
	serialized, _ := json.Marshal(values)
	payload := string(serialized)
	audit := models.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityType: "pazysalvo",
		EntityID:   &entityID,
		NewValues:  &payload,
		IPAddress:  c.ClientIP(),
		CreateAt:   time.Now(),
	}
	if ua := strings.TrimSpace(c.GetHeader("User-Agent")); ua != "" {
		audit.UserAgent = &ua
	}
	// Audit failures never fail the request.
	if err := config.DB.Create(&audit).Error; err != nil {
		log.Printf("audit write failed: %v", err)
	}
}
