package hooks

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/bromq-dev/mqttwire/pkg/connection"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

// AuthHook rejects CONNECT packets with unknown credentials. A rejected
// client receives a refusing CONNACK and the connection is destroyed before
// any CONNECT handler runs.
type AuthHook struct {
	mu          sync.RWMutex
	credentials map[string]string // username -> password
	validator   AuthValidator
}

// AuthValidator is a custom authentication function.
type AuthValidator func(ctx context.Context, username string, password []byte) bool

// AuthConfig configures the auth hook.
type AuthConfig struct {
	// Credentials is a map of username -> password for simple auth.
	Credentials map[string]string

	// Validator is a custom authentication function.
	// If set, Credentials is ignored.
	Validator AuthValidator
}

// NewAuthHook creates a new authentication hook.
func NewAuthHook(cfg AuthConfig) *AuthHook {
	creds := make(map[string]string, len(cfg.Credentials))
	for u, p := range cfg.Credentials {
		creds[u] = p
	}
	return &AuthHook{
		credentials: creds,
		validator:   cfg.Validator,
	}
}

func (h *AuthHook) ID() string { return "auth" }

// OnPacketReceived validates the credentials of a CONNECT.
func (h *AuthHook) OnPacketReceived(ctx context.Context, c *connection.Conn, p packet.Packet) {
	pkt, ok := p.(*packet.Connect)
	if !ok || h.allowed(ctx, pkt) {
		return
	}

	// The CONNECT switched the connection to the client's version.
	reason := packet.ConnackBadUsernameOrPassword
	if c.Version() >= packet.Version5 {
		reason = packet.ReasonBadUserNameOrPassword
	}
	_ = c.Connack(ctx, &packet.Connack{ReasonCode: reason})
	c.Destroy()
}

func (h *AuthHook) OnPacketSent(context.Context, *connection.Conn, packet.Packet, int) {}

func (h *AuthHook) allowed(ctx context.Context, pkt *packet.Connect) bool {
	if h.validator != nil {
		return h.validator(ctx, pkt.Username, pkt.Password)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.credentials) == 0 {
		return true // No auth configured
	}
	expected, ok := h.credentials[pkt.Username]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare(pkt.Password, []byte(expected)) == 1
}

// AddUser adds or updates a user credential.
func (h *AuthHook) AddUser(username, password string) {
	h.mu.Lock()
	h.credentials[username] = password
	h.mu.Unlock()
}

// RemoveUser removes a user credential.
func (h *AuthHook) RemoveUser(username string) {
	h.mu.Lock()
	delete(h.credentials, username)
	h.mu.Unlock()
}
