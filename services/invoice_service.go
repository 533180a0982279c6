package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/anjiri1684/estate_portal/models"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	qrcode "github.com/skip2/go-qrcode"
)

const invoiceFolder = "estate_portal_invoices"

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; color: #222; margin: 40px; }
h1 { font-size: 22px; margin-bottom: 4px; }
table { width: 100%; border-collapse: collapse; margin-top: 24px; }
td { padding: 8px 0; border-bottom: 1px solid #eee; }
td.label { color: #666; width: 40%; }
.qr { margin-top: 32px; text-align: right; }
</style>
</head>
<body>
<h1>Payment Receipt</h1>
<div>Invoice {{.InvoiceNumber}}</div>
<table>
<tr><td class="label">Billed to</td><td>{{.CustomerName}}</td></tr>
<tr><td class="label">Property</td><td>{{.ListingTitle}}</td></tr>
<tr><td class="label">Payment type</td><td>{{.PaymentType}}</td></tr>
<tr><td class="label">Amount</td><td>{{.Currency}} {{.Amount}}</td></tr>
<tr><td class="label">Method</td><td>{{.Method}}</td></tr>
<tr><td class="label">Gateway reference</td><td>{{.GatewayPaymentID}}</td></tr>
<tr><td class="label">Paid on</td><td>{{.PaidOn}}</td></tr>
</table>
<div class="qr"><img src="{{.QRCode}}" width="128" height="128" alt="payment link"></div>
</body>
</html>`))

type invoiceData struct {
	InvoiceNumber    string
	CustomerName     string
	ListingTitle     string
	PaymentType      string
	Amount           string
	Currency         string
	Method           string
	GatewayPaymentID string
	PaidOn           string
	QRCode           template.URL
}

// InvoiceService renders a PDF receipt for a completed payment and stores it
// on Cloudinary.
type InvoiceService struct {
	frontendURL string
	renderPDF   func(ctx context.Context, html string) ([]byte, error)
	upload      func(ctx context.Context, pdf []byte, publicID string) (string, error)
}

func NewInvoiceService(cloudinaryURL, frontendURL string) (*InvoiceService, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	s := &InvoiceService{frontendURL: frontendURL, renderPDF: generatePDFFromHTML}
	s.upload = func(ctx context.Context, pdf []byte, publicID string) (string, error) {
		res, err := cld.Upload.Upload(ctx, bytes.NewReader(pdf), uploader.UploadParams{
			PublicID:     publicID,
			Folder:       invoiceFolder,
			ResourceType: "raw",
		})
		if err != nil {
			return "", err
		}
		if res.Error.Message != "" {
			return "", errors.New(res.Error.Message)
		}
		return res.SecureURL, nil
	}
	return s, nil
}

func (s *InvoiceService) Issue(ctx context.Context, p *models.Payment) (string, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.Issue")
	defer span.End()

	if p.Status != models.PaymentCompleted || p.InvoiceNumber == nil {
		return "", fmt.Errorf("%w: invoice requires a completed payment", ErrConflict)
	}

	html, err := s.RenderHTML(p)
	if err != nil {
		return "", err
	}
	pdf, err := s.renderPDF(ctx, html)
	if err != nil {
		return "", fmt.Errorf("render invoice pdf: %w", err)
	}
	url, err := s.upload(ctx, pdf, *p.InvoiceNumber)
	if err != nil {
		return "", fmt.Errorf("upload invoice: %w", err)
	}
	return url, nil
}

func (s *InvoiceService) RenderHTML(p *models.Payment) (string, error) {
	qr, err := qrcode.Encode(fmt.Sprintf("%s/payments/%s", s.frontendURL, p.ID), qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}

	data := invoiceData{
		PaymentType: string(p.PaymentType),
		Amount:      fmt.Sprintf("%.2f", p.Amount),
		Currency:    p.Currency,
		QRCode:      template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(qr)),
	}
	if p.InvoiceNumber != nil {
		data.InvoiceNumber = *p.InvoiceNumber
	}
	if p.User != nil {
		data.CustomerName = p.User.FullName
	}
	if p.Listing != nil {
		data.ListingTitle = p.Listing.Title
	}
	if p.PaymentMethod != nil {
		data.Method = *p.PaymentMethod
	}
	if p.RazorpayPaymentID != nil {
		data.GatewayPaymentID = *p.RazorpayPaymentID
	}
	if p.CompletedAt != nil {
		data.PaidOn = p.CompletedAt.Format("January 2, 2006")
	} else {
		data.PaidOn = time.Now().Format("January 2, 2006")
	}

	var out bytes.Buffer
	if err := invoiceTemplate.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}

func generatePDFFromHTML(ctx context.Context, htmlContent string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}
