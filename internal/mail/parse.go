// Package mail – MIME parsing of fetched message bodies.
package mail

import (
	"fmt"
	"io"
	"strings"

	"github.com/jaytaylor/html2text"
	"github.com/jhillyerd/enmime"
)

// parseMessage turns one raw RFC 5322 message into a RawMessage. Prefers the
// text part; HTML-only messages are converted to plain text so the extractor
// always sees readable prose. Attachment contents are never downloaded, only
// their filenames are kept.
func parseMessage(ref MessageRef, r io.Reader) (*RawMessage, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("parse message %s: %w", ref.ID, err)
	}

	body := strings.TrimSpace(env.Text)
	if body == "" && env.HTML != "" {
		txt, err := html2text.FromString(env.HTML, html2text.Options{TextOnly: true})
		if err != nil {
			return nil, fmt.Errorf("convert html body of %s: %w", ref.ID, err)
		}
		body = strings.TrimSpace(txt)
	}

	var attachments []string
	for _, a := range env.Attachments {
		if a.FileName != "" {
			attachments = append(attachments, a.FileName)
		}
	}

	return &RawMessage{
		ID:          ref.ID,
		ThreadID:    threadID(env, ref.ID),
		Sender:      ref.Sender,
		Subject:     env.GetHeader("Subject"),
		ReceivedAt:  ref.Timestamp,
		Body:        body,
		Attachments: attachments,
	}, nil
}

// threadID picks the root of the conversation: the first References entry,
// then In-Reply-To, then the message's own id for thread starters.
func threadID(env *enmime.Envelope, own string) string {
	if refs := strings.Fields(env.GetHeader("References")); len(refs) > 0 {
		return refs[0]
	}
	if irt := strings.TrimSpace(env.GetHeader("In-Reply-To")); irt != "" {
		return irt
	}
	return own
}
