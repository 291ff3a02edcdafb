// Package siwe parsea y firma mensajes "Sign-In with Ethereum" (EIP-4361).
package siwe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const headerSuffix = " wants you to sign in with your Ethereum account:"

var ErrMalformed = errors.New("malformed siwe message")

// Message es la representación estructurada del desafío firmado.
type Message struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

// Parse convierte el texto firmado en un Message. La dirección se devuelve
// en minúsculas.
func Parse(raw string) (Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return Message{}, malformed("message too short")
	}

	header := lines[0]
	if !strings.HasSuffix(header, headerSuffix) {
		return Message{}, malformed("missing header")
	}
	domain := strings.TrimSuffix(header, headerSuffix)
	if domain == "" || strings.ContainsAny(domain, " \t") {
		return Message{}, malformed("invalid domain")
	}

	address, err := normalizeAddress(lines[1])
	if err != nil {
		return Message{}, err
	}

	msg := Message{Domain: domain, Address: address}

	i := 2
	var statement []string
	for ; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "URI: ") {
			break
		}
		if strings.TrimSpace(lines[i]) != "" {
			statement = append(statement, lines[i])
		}
	}
	if i == len(lines) {
		return Message{}, malformed("missing URI")
	}
	msg.Statement = strings.Join(statement, "\n")

	seen := map[string]bool{}
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" && i == len(lines)-1 {
			break
		}
		if line == "Resources:" {
			for i+1 < len(lines) && strings.HasPrefix(lines[i+1], "- ") {
				i++
				msg.Resources = append(msg.Resources, strings.TrimPrefix(lines[i], "- "))
			}
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok || value == "" {
			return Message{}, malformed(fmt.Sprintf("invalid line %q", line))
		}
		if seen[key] {
			return Message{}, malformed("duplicated field " + key)
		}
		seen[key] = true
		if err := msg.setField(key, value); err != nil {
			return Message{}, err
		}
	}

	for _, required := range []string{"URI", "Version", "Chain ID", "Nonce", "Issued At"} {
		if !seen[required] {
			return Message{}, malformed("missing " + required)
		}
	}
	return msg, nil
}

func (m *Message) setField(key, value string) error {
	switch key {
	case "URI":
		m.URI = value
	case "Version":
		if value != "1" {
			return malformed("unsupported version")
		}
		m.Version = value
	case "Chain ID":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			return malformed("invalid chain id")
		}
		m.ChainID = id
	case "Nonce":
		if !isAlphanumeric(value) {
			return malformed("invalid nonce")
		}
		m.Nonce = value
	case "Issued At":
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return malformed("invalid issued at")
		}
		m.IssuedAt = ts
	case "Expiration Time":
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return malformed("invalid expiration time")
		}
		m.ExpirationTime = &ts
	case "Not Before":
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return malformed("invalid not before")
		}
		m.NotBefore = &ts
	case "Request ID":
		m.RequestID = value
	default:
		return malformed("unknown field " + key)
	}
	return nil
}

// ValidAt indica si el mensaje está dentro de su ventana de validez.
func (m Message) ValidAt(t time.Time) bool {
	if m.ExpirationTime != nil && !t.Before(*m.ExpirationTime) {
		return false
	}
	if m.NotBefore != nil && t.Before(*m.NotBefore) {
		return false
	}
	return true
}

// String renderiza el mensaje en el formato exacto que se firma.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain + headerSuffix + "\n")
	b.WriteString(common.HexToAddress(m.Address).Hex() + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
	}
	b.WriteString("\n")
	version := m.Version
	if version == "" {
		version = "1"
	}
	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(time.RFC3339))
	if m.ExpirationTime != nil {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		fmt.Fprintf(&b, "\nNot Before: %s", m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}
	return b.String()
}

// normalizeAddress acepta direcciones en minúsculas, mayúsculas o con
// checksum EIP-55 válido.
func normalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) || !strings.HasPrefix(s, "0x") {
		return "", malformed("invalid address")
	}
	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if common.HexToAddress(s).Hex() != s {
			return "", malformed("address checksum mismatch")
		}
	}
	return strings.ToLower(s), nil
}

// NormalizeAddress expone la canonicalización para otras capas.
func NormalizeAddress(s string) (string, error) {
	return normalizeAddress(s)
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformed, reason)
}
