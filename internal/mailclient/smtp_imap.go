package mailclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"mailnexy/internal/apperr"
	"mailnexy/models"
)

// SMTPIMAPClient implements Client over plain SMTP (send) and IMAP
// (inbound/spam), generalizing the teacher's utils/warmup_mailer.go and
// controllers/unibox_controller.go IMAP fetch loop. It serves the "other"
// provider, where creds.Access holds the SMTP/IMAP password directly
// rather than an OAuth2 access token.
type SMTPIMAPClient struct {
	// DialTimeout is set to 30s by the constructors but no call reads it:
	// an SMTP send returns early only when ctx is done, and the IMAP calls
	// take no deadline at all.
	DialTimeout time.Duration
}

func NewSMTPIMAPClient() *SMTPIMAPClient {
	return &SMTPIMAPClient{DialTimeout: 30 * time.Second}
}

func (c *SMTPIMAPClient) Send(ctx context.Context, ep Endpoint, creds models.CredentialBundle, from, to, subject, html string) (SendResult, error) {
	return c.send(ctx, ep, creds, from, to, subject, html, "", "")
}

func (c *SMTPIMAPClient) SendReply(ctx context.Context, ep Endpoint, creds models.CredentialBundle, from, originalThreadID, originalMsgID, subject, html string) (SendResult, error) {
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	return c.send(ctx, ep, creds, from, originalThreadID, subject, html, originalMsgID, originalThreadID)
}

func (c *SMTPIMAPClient) send(ctx context.Context, ep Endpoint, creds models.CredentialBundle, from, to, subject, html, inReplyTo, threadID string) (SendResult, error) {
	dialer := gomail.NewDialer(ep.SMTPHost, ep.SMTPPort, ep.SMTPUsername, creds.Access)
	dialer.TLSConfig = &tls.Config{ServerName: ep.SMTPHost}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)
	m.SetHeader("X-Mailer", "warmupd/1.0")
	m.SetHeader("Auto-Submitted", "auto-generated")

	msgID := fmt.Sprintf("<%s@%s>", uuid.New().String(), ep.SMTPHost)
	m.SetHeader("Message-Id", msgID)
	if inReplyTo != "" {
		m.SetHeader("In-Reply-To", inReplyTo)
		m.SetHeader("References", inReplyTo)
	}

	done := make(chan error, 1)
	go func() { done <- dialer.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return SendResult{}, apperr.New("smtp.send", apperr.KindTransientNetwork, ctx.Err())
	case err := <-done:
		if err != nil {
			return SendResult{}, apperr.New("smtp.send", classifySMTPError(err), err)
		}
	}

	if threadID == "" {
		threadID = msgID
	}
	return SendResult{ProviderMsgID: msgID, ProviderThreadID: threadID}, nil
}

// dialFunc abstracts IMAP connection+auth so the Gmail adapter can reuse
// every search/fetch/flag routine below while swapping in XOAUTH2 auth.
type dialFunc func(ep Endpoint, creds models.CredentialBundle) (*client.Client, error)

func (c *SMTPIMAPClient) dial(ep Endpoint, creds models.CredentialBundle) (*client.Client, error) {
	addr := net.JoinHostPort(ep.IMAPHost, strconv.Itoa(ep.IMAPPort))

	var ic *client.Client
	var err error
	switch strings.ToUpper(ep.IMAPEncryption) {
	case "SSL", "TLS":
		ic, err = client.DialTLS(addr, &tls.Config{ServerName: ep.IMAPHost})
	case "STARTTLS":
		ic, err = client.Dial(addr)
		if err == nil {
			err = ic.StartTLS(&tls.Config{ServerName: ep.IMAPHost})
		}
	default:
		ic, err = client.Dial(addr)
	}
	if err != nil {
		return nil, apperr.New("imap.dial", apperr.KindTransientNetwork, err)
	}

	if err := ic.Login(ep.IMAPUsername, creds.Access); err != nil {
		_ = ic.Logout()
		return nil, apperr.New("imap.login", classifyIMAPAuthError(err), err)
	}
	return ic, nil
}

func (c *SMTPIMAPClient) ListUnreadTo(ctx context.Context, ep Endpoint, creds models.CredentialBundle, since time.Time) ([]InboundMessage, error) {
	return listUnreadTo(ep, creds, since, c.dial)
}

func listUnreadTo(ep Endpoint, creds models.CredentialBundle, since time.Time, dial dialFunc) ([]InboundMessage, error) {
	ic, err := dial(ep, creds)
	if err != nil {
		return nil, err
	}
	defer ic.Logout()

	mailbox := ep.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := ic.Select(mailbox, false); err != nil {
		return nil, apperr.New("imap.select", apperr.KindTransientNetwork, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = since
	ids, err := ic.Search(criteria)
	if err != nil {
		return nil, apperr.New("imap.search", apperr.KindTransientNetwork, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	return fetchMessages(ic, ids)
}

// ListSpamFrom searches the provider's spam/junk folder for messages from
// any of senderAddresses, per spec.md §4.8.
func (c *SMTPIMAPClient) ListSpamFrom(ctx context.Context, ep Endpoint, creds models.CredentialBundle, senderAddresses []string) ([]InboundMessage, error) {
	return listSpamFrom(ep, creds, senderAddresses, c.dial)
}

func listSpamFrom(ep Endpoint, creds models.CredentialBundle, senderAddresses []string, dial dialFunc) ([]InboundMessage, error) {
	ic, err := dial(ep, creds)
	if err != nil {
		return nil, err
	}
	defer ic.Logout()

	spamFolder, err := findSpamFolder(ic)
	if err != nil {
		return nil, apperr.New("imap.spam_folder", apperr.KindTransientNetwork, err)
	}
	if spamFolder == "" {
		return nil, nil
	}
	if _, err := ic.Select(spamFolder, false); err != nil {
		return nil, apperr.New("imap.select_spam", apperr.KindTransientNetwork, err)
	}

	var all []InboundMessage
	for _, addr := range senderAddresses {
		criteria := imap.NewSearchCriteria()
		criteria.Header.Add("From", addr)
		ids, err := ic.Search(criteria)
		if err != nil {
			return nil, apperr.New("imap.search_spam", apperr.KindTransientNetwork, err)
		}
		if len(ids) == 0 {
			continue
		}
		msgs, err := fetchMessages(ic, ids)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}
	return all, nil
}

func fetchMessages(ic *client.Client, ids []uint32) ([]InboundMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- ic.Fetch(seqset, items, messages) }()

	var out []InboundMessage
	for msg := range messages {
		if msg == nil || msg.Envelope == nil {
			continue
		}
		var from string
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}
		out = append(out, InboundMessage{
			ProviderMsgID:    msg.Envelope.MessageId,
			ProviderThreadID: threadIDFromHeaders(msg, section),
			From:             from,
			Subject:          msg.Envelope.Subject,
		})
	}
	if err := <-done; err != nil {
		return nil, apperr.New("imap.fetch", apperr.KindTransientNetwork, err)
	}
	return out, nil
}

// threadIDFromHeaders falls back to References/In-Reply-To when the
// provider doesn't expose a native thread id, per spec.md §4.7's
// provider_thread_id-primary / Subject-fallback matching contract.
func threadIDFromHeaders(msg *imap.Message, section *imap.BodySectionName) string {
	r := msg.GetBody(section)
	if r == nil {
		return msg.Envelope.MessageId
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return msg.Envelope.MessageId
	}
	if refs := mr.Header.Get("References"); refs != "" {
		fields := strings.Fields(refs)
		if len(fields) > 0 {
			return fields[0]
		}
	}
	if inReplyTo := mr.Header.Get("In-Reply-To"); inReplyTo != "" {
		return inReplyTo
	}
	return msg.Envelope.MessageId
}

func findSpamFolder(ic *client.Client) (string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() { done <- ic.List("", "*", mailboxes) }()

	var spam string
	for m := range mailboxes {
		name := strings.ToLower(m.Name)
		if strings.Contains(name, "spam") || strings.Contains(name, "junk") {
			spam = m.Name
		}
	}
	return spam, <-done
}

func (c *SMTPIMAPClient) MarkRead(ctx context.Context, ep Endpoint, creds models.CredentialBundle, providerMsgID string) error {
	return setFlag(ep, creds, providerMsgID, imap.SeenFlag, true, c.dial)
}

func (c *SMTPIMAPClient) MarkImportant(ctx context.Context, ep Endpoint, creds models.CredentialBundle, providerMsgID string) error {
	return setFlag(ep, creds, providerMsgID, imap.FlaggedFlag, true, c.dial)
}

func (c *SMTPIMAPClient) Unspam(ctx context.Context, ep Endpoint, creds models.CredentialBundle, providerMsgID string) error {
	return unspam(ep, creds, providerMsgID, c.dial)
}

func unspam(ep Endpoint, creds models.CredentialBundle, providerMsgID string, dial dialFunc) error {
	ic, err := dial(ep, creds)
	if err != nil {
		return err
	}
	defer ic.Logout()

	spamFolder, err := findSpamFolder(ic)
	if err != nil || spamFolder == "" {
		return apperr.New("imap.unspam", apperr.KindTransientNetwork, err)
	}
	if _, err := ic.Select(spamFolder, false); err != nil {
		return apperr.New("imap.unspam.select", apperr.KindTransientNetwork, err)
	}

	seqnum, err := findByMessageID(ic, providerMsgID)
	if err != nil {
		return err
	}
	if seqnum == 0 {
		return apperr.New("imap.unspam.not_found", apperr.KindTransientNetwork, fmt.Errorf("message %s not found in spam", providerMsgID))
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqnum)

	mailbox := ep.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if err := ic.Move(seqset, mailbox); err != nil {
		item := imap.FormatFlagsOp(imap.RemoveFlags, false)
		if err2 := ic.Store(seqset, item, []interface{}{"\\Junk"}, nil); err2 != nil {
			return apperr.New("imap.unspam.move", apperr.KindTransientNetwork, err)
		}
	}
	return nil
}

func findByMessageID(ic *client.Client, providerMsgID string) (uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-Id", providerMsgID)
	ids, err := ic.Search(criteria)
	if err != nil {
		return 0, apperr.New("imap.search_msgid", apperr.KindTransientNetwork, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

func setFlag(ep Endpoint, creds models.CredentialBundle, providerMsgID string, flag string, add bool, dial dialFunc) error {
	ic, err := dial(ep, creds)
	if err != nil {
		return err
	}
	defer ic.Logout()

	mailbox := ep.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := ic.Select(mailbox, false); err != nil {
		return apperr.New("imap.select", apperr.KindTransientNetwork, err)
	}

	seqnum, err := findByMessageID(ic, providerMsgID)
	if err != nil {
		return err
	}
	if seqnum == 0 {
		return apperr.New("imap.set_flag.not_found", apperr.KindTransientNetwork, fmt.Errorf("message %s not found", providerMsgID))
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqnum)

	op := imap.AddFlags
	if !add {
		op = imap.RemoveFlags
	}
	item := imap.FormatFlagsOp(op, false)
	if err := ic.Store(seqset, item, []interface{}{flag}, nil); err != nil {
		return apperr.New("imap.store_flag", apperr.KindTransientNetwork, err)
	}
	return nil
}

// Refresh is a no-op for the "other" provider: SMTP/IMAP passwords don't
// expire the way OAuth2 access tokens do.
func (c *SMTPIMAPClient) Refresh(ctx context.Context, creds models.CredentialBundle) (models.CredentialBundle, error) {
	return creds, nil
}

func classifySMTPError(err error) apperr.Kind {
	s := strings.ToLower(err.Error())
	for _, perm := range []string{"authentication failed", "invalid credentials", "535"} {
		if strings.Contains(s, perm) {
			return apperr.KindNeedsReauth
		}
	}
	return apperr.KindTransientNetwork
}

func classifyIMAPAuthError(err error) apperr.Kind {
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "invalid credentials") || strings.Contains(s, "authentication") {
		return apperr.KindNeedsReauth
	}
	return apperr.KindTransientNetwork
}
