package rspamd

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Message is a telegram message to scan or learn
type Message struct {
	ID        int
	ChatID    int64
	ChatTitle string
	UserID    int64
	UserName  string
	Text      string
}

// Email renders the message as rfc822 email. Telegram users and chats are mapped to fake
// addresses on example.com, so rspamd rules can match them by From and To.
func Email(msg Message, ip string, now time.Time) []byte {
	date := now.Format(time.RFC1123Z)
	from := msg.UserName
	if from == "" {
		from = fmt.Sprintf("%d", msg.UserID)
	}
	to := msg.ChatTitle
	if to == "" {
		to = fmt.Sprintf("%d", msg.ChatID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Received: from %s (%s) by localhost.localdomain with HTTP; %s\r\n", ip, ip, date)
	fmt.Fprintf(&b, "Date: %s\r\n", date)
	fmt.Fprintf(&b, "From: telegram%s@example.com\r\n", sanitizeAddr(from))
	fmt.Fprintf(&b, "To: telegram%s@example.com\r\n", sanitizeAddr(to))
	b.WriteString("Subject: Telegram message\r\n")
	fmt.Fprintf(&b, "Message-ID: <%d.%d.%d@example.com>\r\n", msg.UserID, msg.ChatID, msg.ID)
	fmt.Fprintf(&b, "X-Telegram-User: %d\r\n", msg.UserID)
	fmt.Fprintf(&b, "X-Telegram-Chat: %d\r\n", msg.ChatID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Text, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// sanitizeAddr keeps only characters allowed in the local part of the address
func sanitizeAddr(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		}
		return -1
	}, s)
}

// localIPv4 returns the first non-loopback ipv4 address of the host, 127.0.0.1 if nothing found
func localIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}
