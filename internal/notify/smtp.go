package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// SMTPNotifier sends incident alerts through a local mail relay
type SMTPNotifier struct {
	addr string // host:port of the relay
	from string
	to   string
}

// NewSMTPNotifier creates a mail notifier using the relay at addr
func NewSMTPNotifier(addr, from, to string) *SMTPNotifier {
	return &SMTPNotifier{
		addr: addr,
		from: from,
		to:   to,
	}
}

// Notify sends one alert mail for the incident. The relay connection is
// established under ctx, and a ctx deadline bounds the whole exchange so a
// canceled cycle never hangs on a slow relay.
func (n *SMTPNotifier) Notify(ctx context.Context, s Summary) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("failed to reach mail relay: %v", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	host, _, err := net.SplitHostPort(n.addr)
	if err != nil {
		host = n.addr
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mail relay handshake failed: %v", err)
	}
	defer c.Close()

	if err := c.Mail(n.from); err != nil {
		return fmt.Errorf("mail relay rejected sender: %v", err)
	}
	if err := c.Rcpt(n.to); err != nil {
		return fmt.Errorf("mail relay rejected recipient: %v", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to send alert mail: %v", err)
	}
	if _, err := w.Write([]byte(n.message(s))); err != nil {
		return fmt.Errorf("failed to send alert mail: %v", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send alert mail: %v", err)
	}

	return c.Quit()
}

// message renders the alert mail, headers included
func (n *SMTPNotifier) message(s Summary) string {
	var body strings.Builder
	fmt.Fprintf(&body, "To: %s\r\n", n.to)
	fmt.Fprintf(&body, "From: %s\r\n", n.from)
	fmt.Fprintf(&body, "Subject: %s\r\n", s.Subject())
	fmt.Fprintf(&body, "\r\n")
	fmt.Fprintf(&body, "Path: %s\r\n", s.Path)
	fmt.Fprintf(&body, "Mismatch: %s\r\n", s.Kind)
	fmt.Fprintf(&body, "Detected: %s\r\n", s.Timestamp.Format(time.RFC3339))
	if s.ObservedDigest != "" {
		fmt.Fprintf(&body, "Observed digest: %s\r\n", s.ObservedDigest)
	}
	if s.ObservedOwner != "" {
		fmt.Fprintf(&body, "Observed owner/group/permission: %s/%s/%s\r\n",
			s.ObservedOwner, s.ObservedGroup, s.ObservedPermission)
	}
	return body.String()
}
