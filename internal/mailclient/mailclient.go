// Package mailclient defines the external Mail Client and Content
// Generator contracts from spec.md §6. The engine depends only on these
// interfaces; concrete adapters (SMTP/IMAP for "other", OAuth2 for "gmail")
// are swappable per Mailbox.Provider.
package mailclient

import (
	"context"
	"time"

	"mailnexy/models"
)

// SendResult is returned by Send and SendReply.
type SendResult struct {
	ProviderMsgID    string
	ProviderThreadID string
}

// InboundMessage is one message surfaced by ListUnreadTo/ListSpamFrom.
type InboundMessage struct {
	ProviderMsgID    string
	ProviderThreadID string
	From             string
	Subject          string
}

// Endpoint carries the host-level settings a provider adapter needs beyond
// the opaque credential bundle — SMTP/IMAP host, port and mailbox name.
// spec.md treats credentials as the only argument conceptually, but a
// connection also needs to know where to dial; those fields live on
// models.Mailbox and are threaded through here rather than smuggled into
// the credential blob.
type Endpoint struct {
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	IMAPHost       string
	IMAPPort       int
	IMAPUsername   string
	IMAPMailbox    string
	IMAPEncryption string
}

// Client is the contract every provider adapter must satisfy, mirroring
// spec.md §6's Mail Client operations one-to-one.
type Client interface {
	Send(ctx context.Context, ep Endpoint, creds models.CredentialBundle, from, to, subject, html string) (SendResult, error)
	SendReply(ctx context.Context, ep Endpoint, creds models.CredentialBundle, from, originalThreadID, originalMsgID, subject, html string) (SendResult, error)
	ListUnreadTo(ctx context.Context, ep Endpoint, creds models.CredentialBundle, since time.Time) ([]InboundMessage, error)
	MarkRead(ctx context.Context, ep Endpoint, creds models.CredentialBundle, providerMsgID string) error
	MarkImportant(ctx context.Context, ep Endpoint, creds models.CredentialBundle, providerMsgID string) error
	ListSpamFrom(ctx context.Context, ep Endpoint, creds models.CredentialBundle, senderAddresses []string) ([]InboundMessage, error)
	Unspam(ctx context.Context, ep Endpoint, creds models.CredentialBundle, providerMsgID string) error
	Refresh(ctx context.Context, creds models.CredentialBundle) (models.CredentialBundle, error)
}

// ContentGenerator produces subject/body pairs for outbound warmup mail,
// per spec.md §6. The engine treats its output as opaque.
type ContentGenerator interface {
	Generate(ctx context.Context, kind string) (subject, bodyHTML string, err error)
}

// Registry resolves the Client implementation for a Mailbox.Provider.
type Registry struct {
	clients map[models.Provider]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.Provider]Client)}
}

func (r *Registry) Register(p models.Provider, c Client) {
	r.clients[p] = c
}

// For returns the Client for provider, or (nil, false) if no adapter is
// registered — callers must surface apperr.KindUnknownProvider and pause
// the mailbox, per spec.md §7.
func (r *Registry) For(p models.Provider) (Client, bool) {
	c, ok := r.clients[p]
	return c, ok
}
