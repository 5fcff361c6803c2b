package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/sashabaranov/go-openai"
)

// AIExtractor asks an OpenAI-compatible chat model to read invoice text.
// It is the fallback when the regex parser scores low.
type AIExtractor struct {
	client *openai.Client
	model  string
	clock  clockwork.Clock
}

func NewAIExtractor(apiKey, baseURL, model string, clock clockwork.Clock) *AIExtractor {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &AIExtractor{
		client: openai.NewClientWithConfig(config),
		model:  model,
		clock:  clock,
	}
}

// Extraction is the model's answer. Unknown fields come back empty.
type Extraction struct {
	CompanyName   string `json:"company_name"`
	InvoiceNumber string `json:"invoice_number"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	DueDate       string `json:"due_date"`
	Bankgiro      string `json:"bankgiro"`
	OCR           string `json:"ocr"`
	Category      string `json:"category"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Website       string `json:"website"`
	RawResponse   string `json:"-"`
}

const extractionPromptTemplate = `You read Swedish and English invoices and extract payment details.

Today is %s.

Rules:
1. due_date is the payment due date (förfallodag) as YYYY-MM-DD.
2. amount is the total to pay, digits with a dot as decimal separator, no currency or spaces.
3. currency is an ISO code such as SEK, EUR or USD.
4. ocr is the OCR or payment reference, digits only.
5. category is one of: %s.
6. Leave any field you cannot find as an empty string. Never guess.`

var extractionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"company_name": {"type": "string", "description": "Name of the company that issued the invoice"},
		"invoice_number": {"type": "string"},
		"amount": {"type": "string", "description": "Total amount to pay, e.g. 1234.50"},
		"currency": {"type": "string"},
		"due_date": {"type": "string", "description": "YYYY-MM-DD"},
		"bankgiro": {"type": "string"},
		"ocr": {"type": "string"},
		"category": {"type": "string"},
		"email": {"type": "string"},
		"phone": {"type": "string"},
		"website": {"type": "string"}
	},
	"required": ["company_name", "invoice_number", "amount", "currency", "due_date", "bankgiro", "ocr", "category", "email", "phone", "website"],
	"additionalProperties": false
}`)

func (e *AIExtractor) systemPrompt() string {
	categories := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		categories[i] = string(c)
	}
	return fmt.Sprintf(extractionPromptTemplate,
		e.clock.Now().Format("2006-01-02 (Monday)"), strings.Join(categories, ", "))
}

// Extract sends the text to the model and returns its structured answer.
func (e *AIExtractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: e.systemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "invoice",
				Schema: extractionSchema,
				Strict: true,
			},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call AI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	content := resp.Choices[0].Message.Content
	extraction := &Extraction{RawResponse: content}

	if err := json.Unmarshal([]byte(content), extraction); err != nil {
		return nil, fmt.Errorf("failed to parse AI response: %w", err)
	}

	return extraction, nil
}

// ExtractDraft runs Extract and converts the answer into bill input.
func (e *AIExtractor) ExtractDraft(ctx context.Context, text string) (models.BillInput, error) {
	extraction, err := e.Extract(ctx, text)
	if err != nil {
		return models.BillInput{}, err
	}
	return extraction.Draft(e.clock.Now())
}

// Parsed maps the answer onto the regex parser's shape.
func (x *Extraction) Parsed() Parsed {
	p := Parsed{
		CompanyName:   strings.TrimSpace(x.CompanyName),
		InvoiceNumber: strings.TrimSpace(x.InvoiceNumber),
		Bankgiro:      strings.TrimSpace(x.Bankgiro),
		OCR:           strings.ReplaceAll(strings.TrimSpace(x.OCR), " ", ""),
		Currency:      strings.ToUpper(strings.TrimSpace(x.Currency)),
	}
	if amount, ok := ParseAmount(x.Amount); ok {
		p.Amount = &amount
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(x.DueDate)); err == nil {
		p.DueDate = strings.TrimSpace(x.DueDate)
	}
	return p
}

func (x *Extraction) Draft(now time.Time) (models.BillInput, error) {
	input, err := x.Parsed().Draft(now)
	if err != nil {
		return input, err
	}

	if c := models.Category(strings.ToLower(strings.TrimSpace(x.Category))); c.Valid() {
		input.Category = c
	}
	contact := models.ContactInformation{
		Email:   strings.TrimSpace(x.Email),
		Phone:   strings.TrimSpace(x.Phone),
		Website: strings.TrimSpace(x.Website),
	}
	if contact != (models.ContactInformation{}) {
		input.ProviderContact = &contact
	}
	return input, nil
}
