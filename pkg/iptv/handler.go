package iptv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"nzbengine/pkg/logger"
)

// ChannelResolver maps an account/channel pair to the portal "cmd" to send
// to create_link, and to the Account to authenticate as.
type ChannelResolver interface {
	Resolve(ctx context.Context, account, channel string) (Account, string, error)
}

// Handler exposes the IPTV HLS proxy routes in §6.6.
type Handler struct {
	portal   *PortalClient
	fetcher  *StreamService
	resolver ChannelResolver
}

// NewHandler builds the IPTV proxy handler.
func NewHandler(portal *PortalClient, fetcher *StreamService, resolver ChannelResolver) *Handler {
	return &Handler{portal: portal, fetcher: fetcher, resolver: resolver}
}

// Register wires /api/livetv/stream/* routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/livetv/stream/{account}/{channel}", h.handleRoot)
	mux.HandleFunc("HEAD /api/livetv/stream/{account}/{channel}", h.handleRoot)
	mux.HandleFunc("GET /api/livetv/stream/{account}/{channel}/{path...}", h.handleSegment)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	channel := r.PathValue("channel")
	h.proxy(w, r, account, channel, "")
}

func (h *Handler) handleSegment(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	channel := r.PathValue("channel")
	subPath := r.PathValue("path")
	h.proxy(w, r, account, channel, subPath)
}

func (h *Handler) proxy(w http.ResponseWriter, r *http.Request, account, channel, subPath string) {
	acct, cmd, err := h.resolver.Resolve(r.Context(), account, channel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var targetURL string
	if subPath != "" {
		if decoded, derr := url.QueryUnescape(subPath); derr == nil && strings.HasPrefix(decoded, "http") {
			targetURL = decoded
		}
	}
	if targetURL == "" {
		link, lerr := h.portal.CreateLink(r.Context(), acct, cmd)
		if lerr != nil {
			http.Error(w, lerr.Error(), http.StatusBadGateway)
			return
		}
		targetURL = link
		if subPath != "" {
			targetURL = strings.TrimRight(link, "/") + "/" + subPath
		}
	}

	h.portal.StartStream(acct)
	defer h.portal.EndStream(acct)

	result, err := h.fetcher.Fetch(r.Context(), targetURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer result.Body.Close()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-cache")

	if result.IsHLS {
		manifest, rerr := io.ReadAll(result.Body)
		if rerr != nil {
			http.Error(w, rerr.Error(), http.StatusBadGateway)
			return
		}
		prefix := fmt.Sprintf("/api/livetv/stream/%s/%s", account, channel)
		rewritten := RewriteManifest(string(manifest), targetURL, prefix)
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.WriteString(w, rewritten)
		}
		return
	}

	w.Header().Set("Accept-Ranges", "none")
	for _, key := range []string{"Content-Length", "Content-Type", "Transfer-Encoding", "Date", "Connection"} {
		if v := result.Headers.Get(key); v != "" {
			w.Header().Set(key, v)
		}
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, result.Body); err != nil {
		logger.Warn("iptv proxy copy interrupted", "account", account, "channel", channel, "error", err)
	}
}
