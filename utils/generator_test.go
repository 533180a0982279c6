package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/anjiri1684/estate_portal/models"
	"github.com/anjiri1684/estate_portal/testutil"
	"github.com/google/uuid"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Green Valley Plots, Phase 2": "green-valley-plots-phase-2",
		"  --Villa @ Lake--  ":        "villa-lake",
		"!!!":                         "listing",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateUniqueSlug(t *testing.T) {
	db := testutil.NewTestDB(t)

	slug, err := GenerateUniqueSlug(db, "Sea View Villa")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if slug != "sea-view-villa" {
		t.Fatalf("expected plain slug, got %q", slug)
	}

	if err := db.Create(&models.Listing{Title: "Sea View Villa", Slug: slug, Price: 1}).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	second, err := GenerateUniqueSlug(db, "Sea View Villa")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if second == slug || !strings.HasPrefix(second, "sea-view-villa-") {
		t.Fatalf("expected suffixed slug, got %q", second)
	}
}

func TestReceiptAndInvoiceNumbers(t *testing.T) {
	now := time.UnixMilli(1748736000000)
	id := uuid.MustParse("3f2a9c10-1111-2222-3333-444455556666")

	if got := ReceiptNumber(now, id); got != "rcpt_1748736000000_3f2a9c10" {
		t.Fatalf("unexpected receipt %q", got)
	}
	if got := InvoiceNumber(now, id); got != "INV-1748736000000-3F2A9C" {
		t.Fatalf("unexpected invoice number %q", got)
	}
}
