// Package email polls an IMAP mailbox and feeds inbound mail into the
// honeypot engine, replying to each message via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/soyeahso/snare/internal/channel"
	"github.com/soyeahso/snare/internal/config"
	"github.com/soyeahso/snare/internal/domain"
	"github.com/soyeahso/snare/internal/honeypot"
	"github.com/soyeahso/snare/internal/logging"
)

// MessageHandler processes one inbound message and returns the reply.
type MessageHandler interface {
	HandleMessage(ctx context.Context, in honeypot.Inbound) (honeypot.Outcome, error)
}

// Channel is an email ingestion channel backed by IMAP polling.
type Channel struct {
	cfg     config.EmailConfig
	handler MessageHandler
	log     *logging.Logger

	mu      sync.Mutex
	running bool
	stop    context.CancelFunc
}

// New creates an email channel. The handler is normally the honeypot engine.
func New(cfg config.EmailConfig, handler MessageHandler, log *logging.Logger) *Channel {
	return &Channel{
		cfg:     cfg,
		handler: handler,
		log:     log.Sub("email"),
	}
}

// ID returns the channel identifier.
func (c *Channel) ID() string { return "email" }

// Status reports whether the poll loop is running.
func (c *Channel) Status() channel.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channel.Status{
		ChannelID: c.ID(),
		Running:   c.running,
		Detail:    c.cfg.Address,
	}
}

// Start runs the poll loop until the context is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.running = true
	c.stop = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	interval := time.Duration(c.cfg.PollSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	c.log.Info().
		Str("address", c.cfg.Address).
		Str("mailbox", c.cfg.Mailbox).
		Dur("interval", interval).
		Msg("email channel starting")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				c.log.Warn().Err(err).Msg("poll failed")
			}
		}
	}
}

// Stop cancels the poll loop.
func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		c.stop()
	}
	return nil
}

// poll fetches unseen messages, routes each through the handler, and sends
// the persona reply back to the sender.
func (c *Channel) poll(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.IMAPHost, c.cfg.IMAPPort)
	cl, err := client.DialTLS(addr, &tls.Config{})
	if err != nil {
		return fmt.Errorf("imap dial: %w", err)
	}
	defer cl.Logout()

	if err := cl.Login(c.cfg.Address, c.cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}

	mailbox := c.cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := cl.Select(mailbox, false); err != nil {
		return fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := cl.Search(criteria)
	if err != nil {
		return fmt.Errorf("searching unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// Fetching the body section without PEEK marks the message seen, so it
	// is not picked up again on the next poll.
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- cl.Fetch(seqset, items, messages)
	}()

	for msg := range messages {
		if err := c.handleMail(ctx, msg, section); err != nil {
			c.log.Warn().Err(err).Msg("failed to handle mail")
		}
	}
	return <-done
}

func (c *Channel) handleMail(ctx context.Context, msg *imap.Message, section *imap.BodySectionName) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return fmt.Errorf("message has no sender")
	}
	from := msg.Envelope.From[0].Address()
	subject := msg.Envelope.Subject

	var body string
	if r := msg.GetBody(section); r != nil {
		m, err := mail.ReadMessage(r)
		if err != nil {
			return fmt.Errorf("reading message: %w", err)
		}
		body, err = extractBody(m)
		if err != nil {
			c.log.Debug().Err(err).Msg("could not extract body, using subject only")
		}
	}

	text := subject
	if body != "" {
		text = subject + "\n\n" + strings.TrimSpace(body)
	}

	out, err := c.handler.HandleMessage(ctx, honeypot.Inbound{
		SessionID: SessionID(from),
		Sender:    domain.SenderScammer,
		Text:      text,
		SentAt:    msg.Envelope.Date,
		Metadata:  domain.Metadata{Channel: "Email"},
	})
	if err != nil {
		return fmt.Errorf("handling message: %w", err)
	}

	c.log.Info().
		Str("from", from).
		Str("phase", string(out.Phase)).
		Msg("email processed")

	return c.sendReply(from, subject, out.Reply)
}

// sendReply sends the persona reply back to the scammer over SMTP.
func (c *Channel) sendReply(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPHost, c.cfg.SMTPPort)
	auth := smtp.PlainAuth("", c.cfg.Address, c.cfg.Password, c.cfg.SMTPHost)

	msg := BuildReply(c.cfg.Address, to, subject, body)
	if err := smtp.SendMail(addr, auth, c.cfg.Address, []string{to}, msg); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	c.log.Debug().Str("to", to).Msg("reply sent")
	return nil
}

// SessionID derives a stable session id from the sender address, so the
// whole mail thread with one scammer maps to one session.
func SessionID(from string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(from))
}

// BuildReply assembles an RFC 5322 reply message.
func BuildReply(from, to, subject, body string) []byte {
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}

// extractBody pulls the first text part out of a mail message, decoding
// quoted-printable bodies.
func extractBody(msg *mail.Message) (string, error) {
	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		// No usable Content-Type header. Read as plain text.
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(msg.Body, params["boundary"])
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}

			partMediaType, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
			if strings.HasPrefix(partMediaType, "text/") {
				body, err := io.ReadAll(p)
				if err != nil {
					continue
				}
				return string(body), nil
			}
		}
		return "", fmt.Errorf("no text part found")
	}

	if strings.HasPrefix(mediaType, "text/") {
		if msg.Header.Get("Content-Transfer-Encoding") == "quoted-printable" {
			body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
			if err != nil {
				return "", err
			}
			return string(body), nil
		}
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return "", err
		}
		return string(body), nil
	}

	return "", fmt.Errorf("unsupported content type: %s", mediaType)
}
