// Package mail – IMAP implementation of the Client boundary.
//
// IMAPClient keeps one lazily dialed, mutex-guarded connection; the pipeline
// runs a single cycle at a time, so there is no need for a pool. After any
// protocol or network error the connection is dropped and redialed on the
// next call. Login failures map to ErrAuth, everything else on the wire maps
// to TransientError so the scheduler's retry policy can take over.
package mail

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// IMAPConfig holds the connection settings for one mailbox.
type IMAPConfig struct {
	Addr     string // host:port, implicit TLS
	Username string
	Password string
	Folder   string // defaults to INBOX
	Timeout  time.Duration
	// FetchChunk bounds how many envelopes one FETCH requests, so a large
	// SEARCH result is consumed incrementally instead of in one round trip.
	FetchChunk int
}

// IMAPClient implements Client over a single IMAP connection.
type IMAPClient struct {
	cfg IMAPConfig

	mu   sync.Mutex
	conn *client.Client
}

// NewIMAPClient builds a client; no connection is made until first use.
func NewIMAPClient(cfg IMAPConfig) *IMAPClient {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.FetchChunk <= 0 {
		cfg.FetchChunk = 50
	}
	return &IMAPClient{cfg: cfg}
}

// ensure returns a logged-in connection with the folder selected, dialing if
// needed. Callers must hold c.mu.
func (c *IMAPClient) ensure() (*client.Client, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := client.DialTLS(c.cfg.Addr, nil)
	if err != nil {
		return nil, &TransientError{Op: "dial", Err: err}
	}
	if c.cfg.Timeout > 0 {
		conn.Timeout = c.cfg.Timeout
	}

	if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	// Read-only select: the pipeline never mutates the mailbox.
	if _, err := conn.Select(c.cfg.Folder, true); err != nil {
		_ = conn.Logout()
		return nil, &TransientError{Op: "select " + c.cfg.Folder, Err: err}
	}

	c.conn = conn
	return conn, nil
}

// drop discards the connection after an error. Callers must hold c.mu.
func (c *IMAPClient) drop() {
	if c.conn != nil {
		_ = c.conn.Logout()
		c.conn = nil
	}
}

// Close logs out and releases the connection.
func (c *IMAPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	return err
}

// Search lists messages matching q, ordered ascending by envelope date.
// IMAP SEARCH SINCE has day granularity; refs at or before the caller's
// watermark are expected and deduplicated downstream.
func (c *IMAPClient) Search(ctx context.Context, q Query) ([]MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := c.ensure()
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if !q.Since.IsZero() {
		criteria.Since = q.Since
	}
	if q.Sender != "" {
		criteria.Header.Add("From", q.Sender)
	}

	uids, err := conn.UidSearch(criteria)
	if err != nil {
		c.drop()
		return nil, &TransientError{Op: "search", Err: err}
	}
	if len(uids) == 0 {
		return nil, nil
	}

	refs := make([]MessageRef, 0, len(uids))
	for start := 0; start < len(uids); start += c.cfg.FetchChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + c.cfg.FetchChunk
		if end > len(uids) {
			end = len(uids)
		}
		chunk, err := c.fetchEnvelopes(conn, uids[start:end])
		if err != nil {
			c.drop()
			return nil, err
		}
		refs = append(refs, chunk...)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Timestamp.Equal(refs[j].Timestamp) {
			return refs[i].UID < refs[j].UID
		}
		return refs[i].Timestamp.Before(refs[j].Timestamp)
	})
	return refs, nil
}

// fetchEnvelopes requests envelope metadata for one chunk of UIDs.
func (c *IMAPClient) fetchEnvelopes(conn *client.Client, uids []uint32) ([]MessageRef, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- conn.UidFetch(seqSet, items, messages)
	}()

	var refs []MessageRef
	for msg := range messages {
		if msg.Envelope == nil || msg.Envelope.MessageId == "" {
			// Without a Message-ID there is no dedup key; skip.
			continue
		}
		sender := ""
		if len(msg.Envelope.From) > 0 {
			sender = msg.Envelope.From[0].Address()
		}
		refs = append(refs, MessageRef{
			ID:        msg.Envelope.MessageId,
			UID:       msg.Uid,
			Timestamp: msg.Envelope.Date,
			Sender:    sender,
		})
	}

	if err := <-done; err != nil {
		return nil, &TransientError{Op: "fetch envelopes", Err: err}
	}
	return refs, nil
}

// Fetch retrieves the full body for one ref and parses it into a RawMessage.
func (c *IMAPClient) Fetch(ctx context.Context, ref MessageRef) (*RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := c.ensure()
	if err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ref.UID)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		c.drop()
		return nil, &TransientError{Op: "fetch body", Err: err}
	}
	if msg == nil {
		return nil, &TransientError{Op: "fetch body", Err: fmt.Errorf("server returned no message for uid %d", ref.UID)}
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, &TransientError{Op: "fetch body", Err: fmt.Errorf("no body section for uid %d", ref.UID)}
	}

	raw, err := parseMessage(ref, body)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
