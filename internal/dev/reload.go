package dev

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/devpack/internal/logging"
	"github.com/vango-dev/devpack/internal/metrics"
)

// ReloadPath is where browsers connect for live reload.
const ReloadPath = "/__devpack/reload"

// ReloadMessageType represents the type of reload message.
type ReloadMessageType string

const (
	ReloadTypeConnected ReloadMessageType = "connected"
	ReloadTypeFull      ReloadMessageType = "reload"
	ReloadTypeCSS       ReloadMessageType = "css"
	ReloadTypeError     ReloadMessageType = "error"
	ReloadTypeClear     ReloadMessageType = "clear"
)

// ReloadMessage is sent to browsers via WebSocket.
type ReloadMessage struct {
	Type  ReloadMessageType `json:"type"`
	ID    string            `json:"id,omitempty"`
	Error string            `json:"error,omitempty"`
	File  string            `json:"file,omitempty"`
}

type reloadClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *reloadClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReloadServer manages WebSocket connections for live reload.
type ReloadServer struct {
	clients  map[*reloadClient]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	lastErr  string
	closed   bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewReloadServer creates a new reload server.
func NewReloadServer(logger *slog.Logger, m *metrics.Metrics) *ReloadServer {
	return &ReloadServer{
		clients: make(map[*reloadClient]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
		logger:  logging.OrDefault(logger),
		metrics: m,
	}
}

// HandleWebSocket handles WebSocket upgrade and connection. A client that
// connects while a build error is pending receives it immediately.
func (r *ReloadServer) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	client := &reloadClient{id: uuid.NewString(), conn: conn}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.clients[client] = true
	lastErr := r.lastErr
	r.mu.Unlock()

	r.logger.Debug("reload client connected", slog.String("client", client.id))
	hello, _ := json.Marshal(ReloadMessage{Type: ReloadTypeConnected, ID: client.id})
	_ = client.send(hello)
	if lastErr != "" {
		data, _ := json.Marshal(ReloadMessage{Type: ReloadTypeError, Error: lastErr})
		_ = client.send(data)
	}

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	r.mu.Lock()
	delete(r.clients, client)
	r.mu.Unlock()
	conn.Close()
	r.logger.Debug("reload client disconnected", slog.String("client", client.id))
}

// NotifyReload sends a full page reload message to all clients.
func (r *ReloadServer) NotifyReload() {
	r.setError("")
	r.broadcast(ReloadMessage{Type: ReloadTypeFull})
}

// NotifyCSS sends a CSS-only reload message to all clients.
func (r *ReloadServer) NotifyCSS(file string) {
	r.setError("")
	r.broadcast(ReloadMessage{Type: ReloadTypeCSS, File: file})
}

// NotifyError sends an error message to all clients and remembers it for
// clients that connect later.
func (r *ReloadServer) NotifyError(errMsg string) {
	r.setError(errMsg)
	r.broadcast(ReloadMessage{Type: ReloadTypeError, Error: errMsg})
}

// ClearError clears the error overlay on all clients.
func (r *ReloadServer) ClearError() {
	r.setError("")
	r.broadcast(ReloadMessage{Type: ReloadTypeClear})
}

func (r *ReloadServer) setError(msg string) {
	r.mu.Lock()
	r.lastErr = msg
	r.mu.Unlock()
}

// broadcast sends a message to all connected clients.
func (r *ReloadServer) broadcast(msg ReloadMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	r.metrics.RecordReload(string(msg.Type))

	r.mu.RLock()
	clients := make([]*reloadClient, 0, len(r.clients))
	for client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	for _, client := range clients {
		if err := client.send(data); err != nil {
			r.mu.Lock()
			delete(r.clients, client)
			r.mu.Unlock()
			client.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (r *ReloadServer) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close closes all client connections. Later connections are refused.
func (r *ReloadServer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for client := range r.clients {
		client.mu.Lock()
		_ = client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		client.mu.Unlock()
		client.conn.Close()
		delete(r.clients, client)
	}
}

// DevClientScript is the live-reload client injected into index.html in
// development.
const DevClientScript = `
<script>
(function() {
    'use strict';

    var reconnectDelay = 1000;
    var maxReconnectDelay = 30000;
    var ws = null;
    var wasConnected = false;

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        ws = new WebSocket(protocol + '//' + location.host + '` + ReloadPath + `');

        ws.onopen = function() {
            console.log('[devpack] connected');
            reconnectDelay = 1000;
            clearErrorOverlay();
            if (wasConnected) {
                location.reload();
            }
            wasConnected = true;
        };

        ws.onmessage = function(e) {
            var msg;
            try {
                msg = JSON.parse(e.data);
            } catch (err) {
                return;
            }

            switch (msg.type) {
                case 'reload':
                    console.log('[devpack] reloading...');
                    location.reload();
                    break;

                case 'css':
                    console.log('[devpack] reloading CSS...');
                    clearErrorOverlay();
                    reloadCSS();
                    break;

                case 'error':
                    console.error('[devpack] build error:', msg.error);
                    showErrorOverlay(msg.error);
                    break;

                case 'clear':
                    clearErrorOverlay();
                    break;
            }
        };

        ws.onclose = function() {
            console.log('[devpack] connection lost, reconnecting in', reconnectDelay + 'ms');
            setTimeout(function() {
                reconnectDelay = Math.min(reconnectDelay * 2, maxReconnectDelay);
                connect();
            }, reconnectDelay);
        };

        ws.onerror = function() {
            ws.close();
        };
    }

    function reloadCSS() {
        var links = document.querySelectorAll('link[rel="stylesheet"]');
        links.forEach(function(link) {
            var url = new URL(link.href);
            url.searchParams.set('_reload', Date.now());
            link.href = url.toString();
        });
    }

    function showErrorOverlay(error) {
        clearErrorOverlay();

        var overlay = document.createElement('div');
        overlay.id = 'devpack-error-overlay';
        overlay.style.cssText = 'position:fixed;top:0;left:0;right:0;bottom:0;background:rgba(0,0,0,0.9);color:#fff;font-family:monospace;font-size:14px;padding:20px;overflow:auto;z-index:999999;';

        var content = document.createElement('div');
        content.style.cssText = 'max-width:800px;margin:0 auto;';

        var title = document.createElement('h2');
        title.style.cssText = 'color:#ff5555;margin:0 0 20px;';
        title.textContent = 'Build Error';

        var pre = document.createElement('pre');
        pre.style.cssText = 'white-space:pre-wrap;word-wrap:break-word;background:#1a1a1a;padding:20px;border-radius:8px;border:1px solid #333;';
        pre.textContent = error;

        var hint = document.createElement('p');
        hint.style.cssText = 'margin-top:20px;color:#888;';
        hint.textContent = 'Fix the error and save to reload.';

        content.appendChild(title);
        content.appendChild(pre);
        content.appendChild(hint);
        overlay.appendChild(content);
        document.body.appendChild(overlay);
    }

    function clearErrorOverlay() {
        var overlay = document.getElementById('devpack-error-overlay');
        if (overlay) {
            overlay.remove();
        }
    }

    if (document.readyState === 'loading') {
        document.addEventListener('DOMContentLoaded', connect);
    } else {
        connect();
    }
})();
</script>
`
