package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/anjiri1684/estate_portal/logger"
)

const whatsAppGraphURL = "https://graph.facebook.com/v21.0"

const (
	TemplateSiteVisitConfirmation = "site_visit_confirmation"
	TemplateVisitReminder         = "site_visit_reminder"
	TemplatePaymentConfirmation   = "payment_confirmation"
	TemplatePaymentFailed         = "payment_failed"
	TemplateInquiryReceived       = "inquiry_received"
)

var nonDigits = regexp.MustCompile(`\D`)

// WhatsAppService sends pre-approved template messages through the Meta
// WhatsApp Cloud API.
type WhatsAppService struct {
	Enabled       bool
	PhoneNumberID string
	AccessToken   string

	baseURL string
	client  *http.Client
}

type whatsAppParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type whatsAppComponent struct {
	Type       string              `json:"type"`
	Parameters []whatsAppParameter `json:"parameters"`
}

type whatsAppTemplate struct {
	Name       string              `json:"name"`
	Language   map[string]string   `json:"language"`
	Components []whatsAppComponent `json:"components,omitempty"`
}

type whatsAppMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         whatsAppTemplate `json:"template"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewWhatsAppService(enabled bool, phoneNumberID, accessToken string) *WhatsAppService {
	return &WhatsAppService{
		Enabled:       enabled,
		PhoneNumberID: phoneNumberID,
		AccessToken:   accessToken,
		baseURL:       whatsAppGraphURL,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// FormatPhone strips everything but digits: "+91 98765 43210" -> "919876543210".
func FormatPhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// SendTemplate returns the message id. A disabled service sends nothing and
// returns an empty id.
func (s *WhatsAppService) SendTemplate(ctx context.Context, to, template string, params []string) (string, error) {
	if s == nil || !s.Enabled {
		logger.Log.WithField("template", template).Debug("WhatsApp notifications disabled")
		return "", nil
	}
	if s.PhoneNumberID == "" || s.AccessToken == "" {
		return "", ErrNotConfigured
	}

	msg := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               FormatPhone(to),
		Type:             "template",
		Template: whatsAppTemplate{
			Name:     template,
			Language: map[string]string{"code": "en"},
		},
	}
	if len(params) > 0 {
		comp := whatsAppComponent{Type: "body"}
		for _, p := range params {
			comp.Parameters = append(comp.Parameters, whatsAppParameter{Type: "text", Text: p})
		}
		msg.Template.Components = []whatsAppComponent{comp}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	var out whatsAppResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= 300 {
		reason := "unknown error"
		if out.Error != nil && out.Error.Message != "" {
			reason = out.Error.Message
		}
		logger.Log.WithField("status", resp.StatusCode).WithField("template", template).Error("WhatsApp API error")
		return "", fmt.Errorf("whatsapp: %s", reason)
	}

	id := ""
	if len(out.Messages) > 0 {
		id = out.Messages[0].ID
	}
	logger.Log.WithField("template", template).WithField("message_id", id).Info("WhatsApp message sent")
	return id, nil
}
