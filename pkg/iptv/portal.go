package iptv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robfig/cron/v3"

	"nzbengine/pkg/apperrors"
	"nzbengine/pkg/logger"
)

const (
	tokenLifetime  = 30 * time.Minute
	tokenRefreshAt = 2 * time.Minute // refresh this long before expiry

	linkCacheTTLHLS   = 30 * time.Second
	linkCacheTTLMedia = 5 * time.Second
)

// Account identifies one Stalker/MAG portal login.
type Account struct {
	Name   string
	Portal string
	Mac    string
}

type session struct {
	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	activeCount int
	watchdogID  cron.EntryID
}

// PortalClient speaks the Stalker/MAG handshake, token refresh, and
// createLink protocol, and runs a per-account watchdog while any stream is
// live.
type PortalClient struct {
	httpClient *http.Client
	stbUA      string
	cron       *cron.Cron

	mu       sync.Mutex
	sessions map[string]*session

	linkCache *expirable.LRU[string, string]
}

// NewPortalClient builds a client sharing one cron scheduler for every
// account's watchdog entry.
func NewPortalClient(stbUA string) *PortalClient {
	c := cron.New()
	c.Start()
	return &PortalClient{
		httpClient: NewHTTPClient(),
		stbUA:      stbUA,
		cron:       c,
		sessions:   make(map[string]*session),
		linkCache:  expirable.NewLRU[string, string](512, nil, linkCacheTTLHLS),
	}
}

func (p *PortalClient) sessionFor(acct Account) *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[acct.Name]
	if !ok {
		s = &session{}
		p.sessions[acct.Name] = s
	}
	return s
}

// Token returns a valid bearer token, handshaking or refreshing as needed.
func (p *PortalClient) Token(ctx context.Context, acct Account) (string, error) {
	s := p.sessionFor(acct)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Until(s.tokenExpiry) > tokenRefreshAt {
		return s.token, nil
	}
	return p.handshakeLocked(ctx, acct, s)
}

func (p *PortalClient) handshakeLocked(ctx context.Context, acct Account, s *session) (string, error) {
	u := fmt.Sprintf("%s/portal.php?type=stb&action=handshake&JsHttpRequest=1-xml", strings.TrimRight(acct.Portal, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	p.setHeaders(req, acct, "")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &apperrors.PortalError{Message: err.Error()}
	}
	defer resp.Body.Close()

	var parsed struct {
		JS struct {
			Token string `json:"token"`
			Error string `json:"error"`
		} `json:"js"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &apperrors.PortalError{Message: "handshake decode: " + err.Error()}
	}
	if parsed.JS.Token == "" || parsed.JS.Error != "" {
		return "", &apperrors.SessionExpired{}
	}

	s.token = parsed.JS.Token
	s.tokenExpiry = time.Now().Add(tokenLifetime)
	return s.token, nil
}

func (p *PortalClient) setHeaders(req *http.Request, acct Account, token string) {
	req.Header.Set("User-Agent", p.stbUA)
	req.Header.Set("X-User-Agent", "Model: MAG250; Link: WiFi")
	req.Header.Set("Cookie", fmt.Sprintf("mac=%s; timezone=UTC; stb_lang=en", url.QueryEscape(acct.Mac)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// isSessionError reports whether a portal JSON error message indicates the
// token needs refreshing.
func isSessionError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "session") || strings.Contains(lower, "token") || strings.Contains(lower, "auth")
}

// StartStream marks one stream live for acct, registering the 5-minute
// watchdog cron entry on the first active stream.
func (p *PortalClient) StartStream(acct Account) {
	s := p.sessionFor(acct)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCount++
	if s.activeCount == 1 && s.watchdogID == 0 {
		id, err := p.cron.AddFunc("@every 5m", func() { p.runWatchdog(acct) })
		if err != nil {
			logger.Error("iptv: failed to register watchdog", "account", acct.Name, "error", err)
			return
		}
		s.watchdogID = id
	}
}

// EndStream marks one stream no longer live; when the count returns to zero
// the watchdog entry is removed.
func (p *PortalClient) EndStream(acct Account) {
	s := p.sessionFor(acct)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeCount > 0 {
		s.activeCount--
	}
	if s.activeCount == 0 && s.watchdogID != 0 {
		p.cron.Remove(s.watchdogID)
		s.watchdogID = 0
	}
}

func (p *PortalClient) runWatchdog(acct Account) {
	s := p.sessionFor(acct)
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return
	}

	u := fmt.Sprintf("%s/portal.php?action=get_events&type=watchdog&JsHttpRequest=1-xml", strings.TrimRight(acct.Portal, "/"))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return
	}
	p.setHeaders(req, acct, token)

	resp, err := p.httpClient.Do(req)
	if err != nil || resp.StatusCode >= 400 {
		logger.Warn("iptv watchdog failed, clearing token", "account", acct.Name)
		s.mu.Lock()
		s.token = ""
		s.mu.Unlock()
		return
	}
	resp.Body.Close()
}

// CreateLink resolves a portal "cmd" value to a playable URL, normalizing
// the ffmpeg-prefixed form into the reference ffrt form, and caches the
// result for 30s (assumed HLS) keyed by the input cmd.
func (p *PortalClient) CreateLink(ctx context.Context, acct Account, cmd string) (string, error) {
	if cached, ok := p.linkCache.Get(cmd); ok {
		return cached, nil
	}

	normalized := normalizeCmd(cmd)

	token, err := p.Token(ctx, acct)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/portal.php?type=itv&action=create_link&cmd=%s&JsHttpRequest=1-xml",
		strings.TrimRight(acct.Portal, "/"), url.QueryEscape(normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	p.setHeaders(req, acct, token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &apperrors.PortalError{Message: err.Error()}
	}
	defer resp.Body.Close()

	var parsed struct {
		JS struct {
			Cmd   string `json:"cmd"`
			Error string `json:"error"`
		} `json:"js"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &apperrors.PortalError{Message: "create_link decode: " + err.Error()}
	}
	if parsed.JS.Error != "" && isSessionError(parsed.JS.Error) {
		return "", &apperrors.SessionExpired{}
	}

	link := extractURLFromCmd(parsed.JS.Cmd)
	p.linkCache.Add(cmd, link)
	return link, nil
}

// normalizeCmd accepts either `ffrt http://...` or `ffmpeg http(s)://...stream=<N>...`
// and synthesizes the reference `ffrt` form.
func normalizeCmd(cmd string) string {
	if strings.HasPrefix(cmd, "ffrt ") {
		return cmd
	}
	if strings.HasPrefix(cmd, "ffmpeg ") {
		if n := extractStreamParam(cmd); n != "" {
			return "ffrt http://localhost/ch/" + n
		}
	}
	return cmd
}

func extractStreamParam(cmd string) string {
	idx := strings.Index(cmd, "stream=")
	if idx == -1 {
		return ""
	}
	rest := cmd[idx+len("stream="):]
	end := strings.IndexAny(rest, "&\"' ")
	if end == -1 {
		end = len(rest)
	}
	n := rest[:end]
	if _, err := strconv.Atoi(n); err != nil {
		return ""
	}
	return n
}

func extractURLFromCmd(cmd string) string {
	idx := strings.Index(cmd, "http")
	if idx == -1 {
		return cmd
	}
	return strings.TrimSpace(cmd[idx:])
}

// Close stops the shared cron scheduler.
func (p *PortalClient) Close() {
	p.cron.Stop()
}
