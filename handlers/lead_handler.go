package handlers

import (
	"errors"
	"strings"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CreateLeadRequest struct {
	Name      string  `json:"name" validate:"required,min=2,max=255"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     string  `json:"phone" validate:"omitempty,min=10,max=20"`
	Message   string  `json:"message" validate:"max=2000"`
	Source    string  `json:"source" validate:"omitempty,max=50"`
	ListingID *string `json:"listing_id,omitempty" validate:"omitempty,uuid"`
}

type UpdateLeadRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted qualified converted lost"`
}

func CreateLead(c *fiber.Ctx) error {
	var req CreateLeadRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	lead := models.Lead{
		Name:      req.Name,
		Email:     strings.ToLower(req.Email),
		Phone:     req.Phone,
		Message:   req.Message,
		Source:    req.Source,
		Status:    models.LeadNew,
		ListingID: parseOptionalUUID(req.ListingID),
	}
	if lead.Source == "" {
		lead.Source = "website"
	}
	if err := deps.DB.WithContext(c.UserContext()).Create(&lead).Error; err != nil {
		logger.Log.WithError(err).Error("failed to create lead")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to submit inquiry"})
	}

	data := map[string]string{
		"lead_id": lead.ID.String(),
		"name":    lead.Name,
		"email":   lead.Email,
		"phone":   lead.Phone,
	}
	if lead.ListingID != nil {
		data["listing_id"] = lead.ListingID.String()
	}
	if deps.Events != nil {
		ev := services.NewEvent(services.EventLeadCreated, deps.Clock.Now(), data)
		if err := deps.Events.PublishJSON(c.UserContext(), services.EventLeadCreated, ev); err != nil {
			logger.Log.WithError(err).WithField("lead_id", lead.ID).Error("failed to publish event")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Thank you! We will get back to you shortly.", "lead": lead})
}

func ListLeads(c *fiber.Ctx) error {
	query := deps.DB.WithContext(c.UserContext()).Preload("Listing").Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	leads := []models.Lead{}
	if err := query.Find(&leads).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(leads)
}

func UpdateLeadStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid lead ID"})
	}
	var req UpdateLeadRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	var lead models.Lead
	db := deps.DB.WithContext(c.UserContext())
	if err := db.First(&lead, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Lead not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if err := db.Model(&lead).Update("status", req.Status).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update lead"})
	}
	lead.Status = req.Status
	return c.JSON(lead)
}
