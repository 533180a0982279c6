package utils

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/anjiri1684/estate_portal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const slugSuffixLength = 5
const letterBytes = "abcdefghijklmnopqrstuvwxyz0123456789"

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and collapses every run of other characters into a dash.
func Slugify(s string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "listing"
	}
	return slug
}

// GenerateUniqueSlug returns the slug of title, suffixed with random
// characters when a listing already uses it.
func GenerateUniqueSlug(tx *gorm.DB, title string) (string, error) {
	base := Slugify(title)
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	candidate := base
	for {
		var count int64
		if err := tx.Model(&models.Listing{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}

		b := make([]byte, slugSuffixLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		candidate = base + "-" + string(b)
	}
}

// ReceiptNumber builds the gateway receipt: rcpt_<unix millis>_<first 8 chars of the user id>.
func ReceiptNumber(now time.Time, userID uuid.UUID) string {
	return fmt.Sprintf("rcpt_%d_%s", now.UnixMilli(), userID.String()[:8])
}

// InvoiceNumber is INV-<unix millis> with a short payment-derived suffix so two
// payments completed in the same millisecond do not collide.
func InvoiceNumber(now time.Time, paymentID uuid.UUID) string {
	return fmt.Sprintf("INV-%d-%s", now.UnixMilli(), strings.ToUpper(paymentID.String()[:6]))
}
