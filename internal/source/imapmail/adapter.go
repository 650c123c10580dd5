// Package imapmail fetches unseen messages from generic IMAP mailboxes.
package imapmail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/unibox/internal/model"
	"github.com/nhle/unibox/internal/source"
)

// DialFunc opens a connection to an IMAP server.
type DialFunc func(ctx context.Context, addr string) (*imapclient.Client, error)

// DialTLS connects with implicit TLS.
func DialTLS(ctx context.Context, addr string) (*imapclient.Client, error) {
	d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 30 * time.Second}}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return imapclient.New(conn, nil), nil
}

// Adapter implements source.Fetcher for IMAP accounts. Each Fetch uses
// its own connection and always closes it.
type Adapter struct {
	dial DialFunc
	now  func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDialer replaces the TLS dialer.
func WithDialer(d DialFunc) Option {
	return func(a *Adapter) { a.dial = d }
}

// New creates an IMAP adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{dial: DialTLS, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch selects INBOX read-only, searches for unseen messages and
// downloads the last source.MaxBatch of them. Any failure discards the
// batch.
func (a *Adapter) Fetch(ctx context.Context, account *model.Account) ([]source.RawMessage, error) {
	port := account.IMAPPort
	if port == 0 {
		port = model.DefaultIMAPPort
	}
	addr := net.JoinHostPort(account.IMAPHost, strconv.Itoa(port))

	client, err := a.dial(ctx, addr)
	if err != nil {
		return nil, transportErr("connecting to "+addr, err)
	}
	defer client.Close()

	// The client has no context support; closing the connection unblocks
	// any pending command.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	msgs, err := a.fetch(client, account)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, transportErr("fetching", ctxErr)
		}
		return nil, err
	}

	_ = client.Logout().Wait()
	return msgs, nil
}

func (a *Adapter) fetch(client *imapclient.Client, account *model.Account) ([]source.RawMessage, error) {
	if err := client.Login(account.Email, account.IMAPPassword).Wait(); err != nil {
		var imapErr *imap.Error
		if errors.As(err, &imapErr) && imapErr.Type == imap.StatusResponseTypeNo {
			return nil, &source.AuthError{
				Provider: model.ProviderIMAP,
				Message:  fmt.Sprintf("authentication failed for %s", account.Email),
				Err:      err,
			}
		}
		return nil, transportErr("logging in", err)
	}

	selected, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, transportErr("selecting INBOX", err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return nil, transportErr("searching unseen messages", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if len(uids) > source.MaxBatch {
		uids = uids[len(uids)-source.MaxBatch:]
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:     true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msgs := make([]source.RawMessage, 0, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			return nil, transportErr("collecting message data", err)
		}

		msgs = append(msgs, a.toRaw(buf, bodySection, selected.UIDValidity))
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, transportErr("fetching messages", err)
	}

	return msgs, nil
}

func (a *Adapter) toRaw(
	buf *imapclient.FetchMessageBuffer,
	section *imap.FetchItemBodySection,
	uidValidity uint32,
) source.RawMessage {
	raw := source.RawMessage{}

	if env := buf.Envelope; env != nil {
		raw.Subject = env.Subject
		raw.ReceivedAt = env.Date
		if len(env.From) > 0 {
			raw.From = env.From[0].Addr()
		}
		to := make([]string, 0, len(env.To))
		for _, addr := range env.To {
			to = append(to, addr.Addr())
		}
		raw.To = strings.Join(to, ", ")
		raw.ProviderMessageID = strings.Trim(env.MessageID, "<>")
	}

	parsed := parseMessage(buf.FindBodySection(section))
	if raw.ProviderMessageID == "" {
		raw.ProviderMessageID = parsed.messageID
	}
	if raw.ProviderMessageID == "" {
		raw.ProviderMessageID = fmt.Sprintf("uid:%d:%d", uidValidity, buf.UID)
	}
	if raw.From == "" {
		raw.From = parsed.from
	}
	if raw.Subject == "" {
		raw.Subject = parsed.subject
	}
	raw.Body = parsed.body()

	switch {
	case !raw.ReceivedAt.IsZero():
	case !parsed.date.IsZero():
		raw.ReceivedAt = parsed.date
	case !buf.InternalDate.IsZero():
		raw.ReceivedAt = buf.InternalDate
	default:
		raw.ReceivedAt = a.now()
	}
	raw.ReceivedAt = raw.ReceivedAt.UTC()

	return raw
}

func transportErr(op string, err error) error {
	return &source.TransportError{Provider: model.ProviderIMAP, Op: op, Err: err}
}
