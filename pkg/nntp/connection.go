// Package nntp implements a pooled, multi-provider NNTP client: one TLS/plain
// socket per connection with a line-oriented request/response state machine,
// a bounded per-provider pool, and ordered-by-priority provider failover.
package nntp

import (
	"crypto/tls"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"nzbengine/pkg/apperrors"
	"nzbengine/pkg/config"
	"nzbengine/pkg/logger"
)

type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
	stateAuthenticating
	stateReady
	stateError
)

const (
	connectTimeout    = 30 * time.Second
	singleLineTimeout = 30 * time.Second
	multilineTimeout  = 300 * time.Second
)

// Connection is a single long-lived NNTP socket with exclusive-use semantics.
// It is not safe for concurrent use by multiple goroutines; the owning Pool
// enforces exclusivity.
type Connection struct {
	cfg   config.NntpServerConfig
	conn  net.Conn
	proto *textproto.Conn
	state state
}

// Dial opens a socket (TLS if configured) to cfg and performs the greeting +
// AUTHINFO handshake. It returns once the connection is `ready`.
func Dial(cfg config.NntpServerConfig) (*Connection, error) {
	c := &Connection{cfg: cfg, state: stateConnecting}
	if err := c.connect(); err != nil {
		c.state = stateError
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	var conn net.Conn
	var err error
	if c.cfg.UseSSL {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: connectTimeout}, "tcp", addr, nil)
	} else {
		conn, err = net.DialTimeout("tcp", addr, connectTimeout)
	}
	if err != nil {
		return &apperrors.ConnectionTimeout{Op: "dial " + addr}
	}

	conn.SetDeadline(time.Now().Add(connectTimeout))
	proto := textproto.NewConn(conn)
	code, msg, err := proto.ReadCodeLine(0)
	if err != nil || (code != 200 && code != 201) {
		proto.Close()
		return &apperrors.ProtocolError{Code: code, Message: "greeting: " + msg}
	}
	conn.SetDeadline(time.Time{})

	c.conn = conn
	c.proto = proto
	c.state = stateConnected

	if c.cfg.Username != "" {
		if err := c.authenticate(); err != nil {
			proto.Close()
			c.state = stateError
			return err
		}
	}
	c.state = stateReady
	return nil
}

func (c *Connection) authenticate() error {
	c.state = stateAuthenticating
	c.setDeadline(singleLineTimeout)

	id, err := c.proto.Cmd("AUTHINFO USER %s", c.cfg.Username)
	if err != nil {
		return &apperrors.ConnectionReset{Op: "AUTHINFO USER"}
	}
	c.proto.StartResponse(id)
	code, msg, err := c.proto.ReadCodeLine(381)
	c.proto.EndResponse(id)
	if err != nil {
		if code == 281 {
			return nil // pre-authed
		}
		return &apperrors.AuthRejected{Reason: msg}
	}

	logger.Debug("nntp authenticate", "user", c.cfg.Username, "pass", "***")

	id, err = c.proto.Cmd("AUTHINFO PASS %s", c.cfg.Password)
	if err != nil {
		return &apperrors.ConnectionReset{Op: "AUTHINFO PASS"}
	}
	c.proto.StartResponse(id)
	_, msg, err = c.proto.ReadCodeLine(281)
	c.proto.EndResponse(id)
	if err != nil {
		return &apperrors.AuthRejected{Reason: msg}
	}
	return nil
}

// Body issues BODY <messageId> and returns the fully read, dot-unstuffed
// payload bytes (terminator stripped).
func (c *Connection) Body(messageID string) ([]byte, error) {
	return c.multilineCmd("BODY", messageID, 222)
}

// Article issues ARTICLE <messageId>.
func (c *Connection) Article(messageID string) ([]byte, error) {
	return c.multilineCmd("ARTICLE", messageID, 220)
}

func (c *Connection) multilineCmd(verb, messageID string, wantCode int) ([]byte, error) {
	if c.state != stateReady {
		return nil, &apperrors.ConnectionReset{Op: verb}
	}
	c.setDeadline(singleLineTimeout)

	id, err := c.proto.Cmd("%s <%s>", verb, messageID)
	if err != nil {
		c.state = stateDisconnected
		return nil, &apperrors.ConnectionReset{Op: verb}
	}
	c.proto.StartResponse(id)
	code, msg, err := c.proto.ReadCodeLine(wantCode)
	if err != nil {
		c.proto.EndResponse(id)
		return nil, classifyError(code, msg, messageID)
	}

	c.setDeadline(multilineTimeout)
	data, rerr := c.readDotBody()
	c.proto.EndResponse(id)
	c.setDeadline(singleLineTimeout)
	if rerr != nil {
		c.state = stateDisconnected
		return nil, &apperrors.ConnectionReset{Op: verb + " body read"}
	}
	return data, nil
}

// readDotBody reads lines until the "\r\n.\r\n" terminator, applying
// dot-unstuffing (a line beginning with ".." is unstuffed to a single
// leading ".") per RFC 3977 §3.1.1 and the resolution of the dot-unstuffing
// open question in DESIGN.md.
func (c *Connection) readDotBody() ([]byte, error) {
	r := c.proto.R
	var out []byte
	first := true
	for {
		line, err := r.ReadSlice('\n')
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimRight(string(line), "\r\n")
		if trimmed == "." {
			return out, nil
		}
		if strings.HasPrefix(trimmed, "..") {
			trimmed = trimmed[1:]
		}
		if !first {
			out = append(out, '\r', '\n')
		}
		out = append(out, trimmed...)
		first = false
	}
}

// Stat issues STAT <messageId> and reports presence via the 223 response.
func (c *Connection) Stat(messageID string) (bool, error) {
	if c.state != stateReady {
		return false, &apperrors.ConnectionReset{Op: "STAT"}
	}
	c.setDeadline(singleLineTimeout)
	id, err := c.proto.Cmd("STAT <%s>", messageID)
	if err != nil {
		c.state = stateDisconnected
		return false, &apperrors.ConnectionReset{Op: "STAT"}
	}
	c.proto.StartResponse(id)
	code, msg, err := c.proto.ReadCodeLine(223)
	c.proto.EndResponse(id)
	if err != nil {
		if code == 430 || code == 423 {
			return false, nil
		}
		return false, classifyError(code, msg, messageID)
	}
	return true, nil
}

// IsReady reports whether the connection completed its handshake and has not
// since failed.
func (c *Connection) IsReady() bool { return c.state == stateReady }

// Close terminates the underlying socket.
func (c *Connection) Close() error {
	c.state = stateDisconnected
	if c.proto != nil {
		return c.proto.Close()
	}
	return nil
}

func (c *Connection) setDeadline(d time.Duration) {
	if c.conn != nil {
		c.conn.SetDeadline(time.Now().Add(d))
	}
}

func classifyError(code int, msg, messageID string) error {
	switch code {
	case 430, 420, 423:
		return &apperrors.ArticleNotFound{MessageID: messageID, Code: code}
	case 400:
		return &apperrors.ServiceUnavailable{Message: msg}
	case 480, 482:
		return &apperrors.AuthRejected{Reason: msg}
	default:
		return &apperrors.ProtocolError{Code: code, Message: msg}
	}
}
