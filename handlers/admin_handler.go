package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/anjiri1684/estate_portal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type DashboardAnalyticsResponse struct {
	TotalCustomers     int64            `json:"total_customers"`
	AvailableListings  int64            `json:"available_listings"`
	TotalRevenue       float64          `json:"total_revenue"`
	BookingsLast30Days int64            `json:"bookings_last_30_days"`
	OpenLeads          int64            `json:"open_leads"`
	RecentBookings     []models.Booking `json:"recent_bookings"`
}

func GetDashboardAnalytics(c *fiber.Ctx) error {
	var response DashboardAnalyticsResponse
	db := deps.DB.WithContext(c.UserContext())

	db.Model(&models.User{}).Where("role = ?", models.RoleCustomer).Count(&response.TotalCustomers)
	db.Model(&models.Listing{}).Where("status = ?", models.ListingAvailable).Count(&response.AvailableListings)
	db.Model(&models.Lead{}).Where("status IN ?", []string{models.LeadNew, models.LeadContacted, models.LeadQualified}).Count(&response.OpenLeads)

	var revenue, refunded float64
	db.Model(&models.Payment{}).Where("status IN ?", []models.PaymentStatus{models.PaymentCompleted, models.PaymentRefunding}).Select("COALESCE(SUM(amount), 0)").Row().Scan(&revenue)
	db.Model(&models.Payment{}).Where("status = ?", models.PaymentRefunded).Select("COALESCE(SUM(amount - COALESCE(refund_amount, 0)), 0)").Row().Scan(&refunded)
	response.TotalRevenue = revenue + refunded

	thirtyDaysAgo := deps.Clock.Now().AddDate(0, 0, -30)
	db.Model(&models.Booking{}).Where("created_at > ?", thirtyDaysAgo).Count(&response.BookingsLast30Days)

	response.RecentBookings = []models.Booking{}
	db.Order("created_at desc").Limit(5).Preload("Listing").Preload("User").Find(&response.RecentBookings)

	return c.JSON(response)
}

func GenerateTransactionReport(c *fiber.Ctx) error {
	now := deps.Clock.Now()
	startDateStr := c.Query("start_date", now.AddDate(0, -1, 0).Format("2006-01-02"))
	endDateStr := c.Query("end_date", now.Format("2006-01-02"))

	startDate, err := time.Parse("2006-01-02", startDateStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid start_date format. Use YYYY-MM-DD."})
	}
	endDate, err := time.Parse("2006-01-02", endDateStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid end_date format. Use YYYY-MM-DD."})
	}
	endDate = endDate.Add(24*time.Hour - time.Second)

	var list []models.Payment
	err = deps.DB.WithContext(c.UserContext()).
		Preload("User").
		Preload("Listing").
		Where("status IN ? AND created_at BETWEEN ? AND ?", []models.PaymentStatus{models.PaymentCompleted, models.PaymentRefunding, models.PaymentRefunded}, startDate, endDate).
		Order("created_at desc").
		Find(&list).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	b := new(bytes.Buffer)
	w := csv.NewWriter(b)

	headers := []string{"Payment ID", "Date", "Customer", "Listing", "Amount", "Currency", "Status", "Method", "Type", "Invoice", "Gateway Payment ID"}
	if err := w.Write(headers); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV header"})
	}

	for _, p := range list {
		var customer, listing, method, invoice, gatewayID string
		if p.User != nil {
			customer = p.User.FullName
		}
		if p.Listing != nil {
			listing = p.Listing.Title
		}
		if p.PaymentMethod != nil {
			method = *p.PaymentMethod
		}
		if p.InvoiceNumber != nil {
			invoice = *p.InvoiceNumber
		}
		if p.RazorpayPaymentID != nil {
			gatewayID = *p.RazorpayPaymentID
		}
		row := []string{
			p.ID.String(),
			p.CreatedAt.Format("2006-01-02 15:04"),
			customer,
			listing,
			fmt.Sprintf("%.2f", p.Amount),
			p.Currency,
			string(p.Status),
			method,
			string(p.PaymentType),
			invoice,
			gatewayID,
		}
		if err := w.Write(row); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to write CSV row"})
		}
	}
	w.Flush()

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"transactions_%s_to_%s.csv\"", startDate.Format("2006-01-02"), endDate.Format("2006-01-02")))

	return c.Send(b.Bytes())
}

func GetAllUsers(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	search := strings.ToLower(strings.TrimSpace(c.Query("search")))

	query := deps.DB.WithContext(c.UserContext()).Model(&models.User{})
	if search != "" {
		searchTerm := "%" + search + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}

	var totalUsers int64
	if err := query.Count(&totalUsers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	users := []models.User{}
	if err := query.Order("created_at desc").Offset((page - 1) * limit).Limit(limit).Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(fiber.Map{
		"data": users,
		"meta": fiber.Map{
			"total_users":  totalUsers,
			"total_pages":  int(math.Ceil(float64(totalUsers) / float64(limit))),
			"current_page": page,
		},
	})
}

func ToggleUserStatus(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID"})
	}
	type Request struct {
		IsActive bool `json:"is_active"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	res := deps.DB.WithContext(c.UserContext()).Model(&models.User{}).Where("id = ?", userID).Update("is_active", req.IsActive)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update user"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	return c.JSON(fiber.Map{"message": "User status updated successfully."})
}
