// Package extract – the Extractor itself: prefilter, model call, validation.
//
// Extract is purely functional with respect to pipeline state: its only side
// effect is the outbound AI call. Partial data never escapes; any validation
// failure yields a Malformed error instead of a half-populated transaction.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/currency"

	"github.com/mailspend/mailspend/internal/domain"
	"github.com/mailspend/mailspend/internal/mail"
)

const (
	defaultCategory = "Other"
	maxMerchantLen  = 255
	maxCategoryLen  = 64
)

// Dates outside this window are treated as model hallucinations.
var minOccurredAt = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

const maxFutureSkew = 48 * time.Hour

// Extractor produces zero or one structured transaction per message.
type Extractor struct {
	Model Model

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// New builds an Extractor over the given model.
func New(model Model) *Extractor {
	return &Extractor{Model: model, now: time.Now}
}

// payload mirrors the JSON object the prompt demands from the model. Amount
// and confidence are decoded loosely because models occasionally quote
// numbers despite instructions.
type payload struct {
	IsTransaction bool   `json:"is_transaction"`
	Amount        any    `json:"amount"`
	Currency      string `json:"currency"`
	Merchant      string `json:"merchant"`
	Category      string `json:"category"`
	Date          string `json:"date"`
	Confidence    any    `json:"confidence"`
}

// Extract attempts structured extraction for one message.
//
// Returns ErrNotFinancial when the message carries no transaction (not an
// error condition), a classified *Error otherwise, or a fully validated
// transaction candidate ready for ingestion.
func (e *Extractor) Extract(ctx context.Context, msg *mail.RawMessage) (*domain.Transaction, error) {
	tr := otel.Tracer("extract/Extractor")
	ctx, span := tr.Start(ctx, "Extract",
		trace.WithAttributes(attribute.String("message.id", msg.ID)),
	)
	defer span.End()

	// Cheap heuristic gate before spending an AI call. False negatives are
	// acceptable; false positives are corrected by the model itself.
	if !looksFinancial(msg.Subject, msg.Body) {
		return nil, ErrNotFinancial
	}

	out, err := e.Model.Generate(ctx, buildPrompt(msg))
	if err != nil {
		return nil, stampMessageID(err, msg.ID)
	}

	var p payload
	if err := json.Unmarshal([]byte(cleanModelJSON(out)), &p); err != nil {
		return nil, newError(KindMalformed, msg.ID, fmt.Errorf("decode model output: %w", err))
	}

	if !p.IsTransaction {
		return nil, ErrNotFinancial
	}

	return e.validate(msg, &p)
}

// validate normalizes the model payload into a transaction, rejecting
// anything that does not fully parse.
func (e *Extractor) validate(msg *mail.RawMessage, p *payload) (*domain.Transaction, error) {
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, newError(KindMalformed, msg.ID, err)
	}

	code, err := parseCurrency(p.Currency)
	if err != nil {
		return nil, newError(KindMalformed, msg.ID, err)
	}

	occurredAt, err := e.parseDate(p.Date, msg.ReceivedAt)
	if err != nil {
		return nil, newError(KindMalformed, msg.ID, err)
	}

	merchant := strings.TrimSpace(p.Merchant)
	if merchant == "" {
		merchant = msg.Sender
	}
	if len(merchant) > maxMerchantLen {
		merchant = merchant[:maxMerchantLen]
	}

	category := strings.TrimSpace(p.Category)
	if category == "" {
		category = defaultCategory
	}
	if len(category) > maxCategoryLen {
		category = category[:maxCategoryLen]
	}

	return &domain.Transaction{
		SourceMessageID: msg.ID,
		ThreadID:        msg.ThreadID,
		Sender:          msg.Sender,
		Subject:         msg.Subject,
		Amount:          amount,
		Currency:        code,
		Merchant:        merchant,
		Category:        category,
		OccurredAt:      occurredAt,
		Confidence:      parseConfidence(p.Confidence),
	}, nil
}

// parseAmount accepts a JSON number or a numeric string and requires a
// non-zero value: a zero-amount "transaction" is a model misfire.
func parseAmount(v any) (decimal.Decimal, error) {
	var s string
	switch a := v.(type) {
	case nil:
		return decimal.Zero, errors.New("amount missing")
	case float64:
		return nonZero(decimal.NewFromFloat(a))
	case string:
		s = strings.TrimSpace(a)
	case json.Number:
		s = a.String()
	default:
		return decimal.Zero, fmt.Errorf("amount has unexpected type %T", v)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q does not parse: %w", s, err)
	}
	return nonZero(d)
}

func nonZero(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsZero() {
		return decimal.Zero, errors.New("amount is zero")
	}
	return d, nil
}

// parseCurrency validates an ISO 4217 code and returns its canonical form.
func parseCurrency(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", errors.New("currency missing")
	}
	unit, err := currency.ParseISO(s)
	if err != nil {
		return "", fmt.Errorf("currency %q is not a recognized ISO code: %w", s, err)
	}
	return unit.String(), nil
}

// dateLayouts are tried in order when parsing the model's date field.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02 Jan 2006",
	"January 2, 2006",
}

// parseDate parses the transaction date, falling back to the message receipt
// time when the model produced none. Dates before the plausibility floor or
// absurdly in the future are rejected.
func (e *Extractor) parseDate(s string, received time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return received, nil
	}

	var t time.Time
	var err error
	for _, layout := range dateLayouts {
		if t, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q does not parse", s)
	}

	if t.Before(minOccurredAt) {
		return time.Time{}, fmt.Errorf("date %s is implausibly old", t.Format("2006-01-02"))
	}
	if t.After(e.now().Add(maxFutureSkew)) {
		return time.Time{}, fmt.Errorf("date %s is in the future", t.Format("2006-01-02"))
	}
	return t, nil
}

// parseConfidence clamps a loosely typed confidence into [0,1], or drops it.
func parseConfidence(v any) *float64 {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case string:
		if _, err := fmt.Sscanf(strings.TrimSpace(c), "%f", &f); err != nil {
			return nil
		}
	default:
		return nil
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return &f
}

// stampMessageID attaches the message id to classified model errors that
// were created without one; other errors pass through untouched.
func stampMessageID(err error, id string) error {
	var ee *Error
	if errors.As(err, &ee) && ee.MessageID == "" {
		return newError(ee.Kind, id, ee.Err)
	}
	if errors.As(err, &ee) {
		return err
	}
	// A model fake may return plain errors; treat them as transient.
	return newError(KindTransient, id, err)
}

// Monetary patterns that make a message worth an AI call: currency symbols
// next to digits, decimal amounts, or explicit currency codes.
var moneyRE = regexp.MustCompile(
	`[$€£¥₹]\s?\d|\d[.,]\d{2}(\s|$|[^\d])|\b(USD|EUR|GBP|JPY|CHF|CAD|AUD|INR)\b\s?\d*`,
)

// Transactional vocabulary; requires a digit somewhere alongside.
var financeWordRE = regexp.MustCompile(
	`(?i)\b(payment|paid|receipt|invoice|order|charged?|refund|transaction|purchase|billed?|subscription|debit|credit|transfer|statement)\b`,
)

var digitRE = regexp.MustCompile(`\d`)

// looksFinancial is the cheap prefilter: a monetary pattern, or transaction
// vocabulary plus at least one digit.
func looksFinancial(subject, body string) bool {
	text := subject + "\n" + body
	if moneyRE.MatchString(text) {
		return true
	}
	return financeWordRE.MatchString(text) && digitRE.MatchString(text)
}
