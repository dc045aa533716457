package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"portalti-api/config"
	"portalti-api/models"
)

// GetEmployeeAssets lists the active asset assignments of an employee. These
// are the rows frozen into the snapshot when a Paz y Salvo is created.
func GetEmployeeAssets(c *gin.Context) {
	employeeID, err := strconv.Atoi(c.Param("id"))
	if err != nil || employeeID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid employee ID"})
		return
	}

	var assignments []models.AssetAssignment
	if err := config.DB.Preload("Asset").
		Where("employee_id = ? AND returned_at IS NULL", employeeID).
		Order("assignment_id").
		Find(&assignments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch assignments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"assignments": assignments,
		"total":       len(assignments),
	})
}
