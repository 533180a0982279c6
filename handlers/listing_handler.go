package handlers

import (
	"errors"
	"math"
	"strconv"

	"github.com/anjiri1684/estate_portal/logger"
	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ListingRequest struct {
	Title        string  `json:"title" validate:"required,min=3,max=255"`
	Description  string  `json:"description"`
	PropertyType string  `json:"property_type" validate:"required,oneof=plot villa apartment commercial"`
	City         string  `json:"city" validate:"required"`
	Location     string  `json:"location"`
	Price        float64 `json:"price" validate:"required,gt=0"`
	AreaSqFt     float64 `json:"area_sqft" validate:"gte=0"`
	Status       string  `json:"status,omitempty" validate:"omitempty,oneof=available reserved sold"`
	IsFeatured   bool    `json:"is_featured"`
}

func ListListings(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "12"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 12
	}

	query := deps.DB.WithContext(c.UserContext()).Model(&models.Listing{})
	if city := c.Query("city"); city != "" {
		query = query.Where("city = ?", city)
	}
	if pt := c.Query("property_type"); pt != "" {
		query = query.Where("property_type = ?", pt)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if c.Query("featured") == "true" {
		query = query.Where("is_featured = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	listings := []models.Listing{}
	if err := query.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&listings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(fiber.Map{
		"data":       listings,
		"total":      total,
		"page":       page,
		"totalPages": int(math.Ceil(float64(total) / float64(limit))),
	})
}

func GetListing(c *fiber.Ctx) error {
	key := c.Params("idOrSlug")
	query := deps.DB.WithContext(c.UserContext())

	var listing models.Listing
	var err error
	if id, perr := uuid.Parse(key); perr == nil {
		err = query.First(&listing, "id = ?", id).Error
	} else {
		err = query.First(&listing, "slug = ?", key).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Listing not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(listing)
}

func CreateListing(c *fiber.Ctx) error {
	var req ListingRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	listing := models.Listing{
		Title:        req.Title,
		Description:  req.Description,
		PropertyType: req.PropertyType,
		City:         req.City,
		Location:     req.Location,
		Price:        req.Price,
		AreaSqFt:     req.AreaSqFt,
		Status:       req.Status,
		IsFeatured:   req.IsFeatured,
	}
	if listing.Status == "" {
		listing.Status = models.ListingAvailable
	}

	err := deps.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		slug, err := utils.GenerateUniqueSlug(tx, req.Title)
		if err != nil {
			return err
		}
		listing.Slug = slug
		return tx.Create(&listing).Error
	})
	if err != nil {
		logger.Log.WithError(err).Error("failed to create listing")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create listing"})
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

func UpdateListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid listing ID"})
	}
	var req ListingRequest
	if err := bindJSON(c, &req); err != nil {
		return badRequest(c, err)
	}

	var listing models.Listing
	err = deps.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&listing, "id = ?", id).Error; err != nil {
			return err
		}
		if req.Title != listing.Title {
			slug, err := utils.GenerateUniqueSlug(tx, req.Title)
			if err != nil {
				return err
			}
			listing.Slug = slug
		}
		listing.Title = req.Title
		listing.Description = req.Description
		listing.PropertyType = req.PropertyType
		listing.City = req.City
		listing.Location = req.Location
		listing.Price = req.Price
		listing.AreaSqFt = req.AreaSqFt
		listing.IsFeatured = req.IsFeatured
		if req.Status != "" {
			listing.Status = req.Status
		}
		return tx.Save(&listing).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Listing not found"})
	}
	if err != nil {
		logger.Log.WithError(err).WithField("listing_id", id).Error("failed to update listing")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update listing"})
	}
	return c.JSON(listing)
}

func DeleteListing(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid listing ID"})
	}

	var active int64
	if err := deps.DB.WithContext(c.UserContext()).Model(&models.Booking{}).
		Where("listing_id = ? AND status IN ?", id, []models.BookingStatus{models.BookingPending, models.BookingConfirmed}).
		Count(&active).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if active > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Listing has active bookings"})
	}

	res := deps.DB.WithContext(c.UserContext()).Delete(&models.Listing{}, "id = ?", id)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete listing"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Listing not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
