// Package extract – prompt construction for the AI extraction call.
package extract

import (
	"fmt"
	"strings"

	"github.com/mailspend/mailspend/internal/mail"
)

// buildPrompt renders the fixed extraction instruction around one message.
// Classification and extraction happen in a single structured call; the
// is_transaction flag carries the classification verdict.
func buildPrompt(msg *mail.RawMessage) string {
	var b strings.Builder

	b.WriteString("TASK: Decide whether the following email contains a financial transaction, " +
		"and if it does, extract the transaction details.\n\n")

	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\n", msg.ReceivedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Body:\n%s\n\n", msg.Body)

	b.WriteString(`CLASSIFICATION GUIDELINES:
Transaction indicators: payment confirmations, receipts, invoices, order
confirmations with prices, subscription charges, bill payments, banking
transaction notifications.
Non-transaction indicators: marketing or promotional emails (even if they
mention prices), shipping notifications without payment details, password
resets, security alerts, newsletters.

EXTRACTION GUIDELINES:
- date: the actual transaction date in ISO format (YYYY-MM-DD), not the email
  date; fall back to the email date only when no transaction date is present.
- amount: a signed number, negative for money spent (debits, purchases,
  charges) and positive for money received (refunds, credits, income).
  Number only, no currency symbol.
- currency: the ISO 4217 code (e.g. "USD", "EUR", "GBP").
- merchant: the merchant or counterparty name, cleaned of reference numbers.
- category: one of Groceries, Dining, Transport, Shopping, Utilities,
  Subscriptions, Entertainment, Travel, Health, Income, Fees, Other.
- confidence: your confidence in the overall result, 0.0 to 1.0.

OUTPUT REQUIREMENTS:
Return STRICT JSON only (no comments, no trailing text, no Markdown, no code
fences) with exactly these fields:
{"is_transaction": bool, "amount": number, "currency": string,
 "merchant": string, "category": string, "date": string,
 "confidence": number}
If the email is not a transaction, set is_transaction to false and leave the
other fields empty or zero.
`)

	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite the instructions, keeping only the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
