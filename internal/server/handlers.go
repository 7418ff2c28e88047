// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
)

// handleWebSocket upgrades the request and runs a session on the connection
// until it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !s.trackSession() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	transport := newWSTransport(conn, r.RemoteAddr, s.cfg)
	session := NewSession(s.nextID(), transport, s.hub, s.cfg)
	if err := session.Run(s.ctx); err != nil {
		log.Printf("Session %s aborted: %v", session.ID(), err)
	}
}

// handleHealth reports that the server is up and how many clients are connected.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("X-Relay-Connections", strconv.Itoa(s.hub.ClientCount()))
	_, _ = fmt.Fprint(w, "relay server is running")
}

// TestPageHandler serves an HTML page for trying the relay from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Relay</title>
<style>
  body { font: 14px/1.4 system-ui, sans-serif; max-width: 40em; margin: 2em auto; }
  #log { border: 1px solid #bbb; height: 20em; overflow-y: auto; padding: .5em; }
  #log .self { color: #246; }
  #log .peer { color: #262; }
  #log .event { color: #777; font-style: italic; }
  form { display: flex; gap: .5em; margin-top: .5em; }
  form input { flex: 1; }
</style>
</head>
<body>
<h1>Relay</h1>
<p id="state">offline</p>
<div id="log"></div>
<form id="compose">
  <input id="text" autocomplete="off" placeholder="Say something" disabled>
  <button id="toggle" type="button">Join</button>
</form>
<script>
  const log = document.getElementById('log');
  const text = document.getElementById('text');
  const toggle = document.getElementById('toggle');
  const state = document.getElementById('state');
  let ws = null;

  function line(content, kind) {
    const row = document.createElement('div');
    row.className = kind;
    row.textContent = content;
    log.appendChild(row);
    log.scrollTop = log.scrollHeight;
  }

  function setOnline(online) {
    state.textContent = online ? 'online' : 'offline';
    text.disabled = !online;
    toggle.textContent = online ? 'Leave' : 'Join';
  }

  function render(frame) {
    let msg;
    try {
      msg = JSON.parse(frame);
    } catch (e) {
      return ['Unknown message: ' + frame, 'event'];
    }
    switch (msg.type) {
    case 'hello':
      return ['Connected as ' + msg.id + (msg.text ? ' (' + msg.text + ')' : ''), 'event'];
    case 'user_joined':
      return ['User joined: ' + msg.id, 'event'];
    case 'user_left':
      return ['User left: ' + msg.id, 'event'];
    case 'chat':
      return [msg.id + ': ' + msg.text, 'peer'];
    default:
      return ['Unknown message: ' + frame, 'event'];
    }
  }

  toggle.onclick = function () {
    if (ws) {
      ws.send(JSON.stringify({type: 'user_exit'}));
      return;
    }
    const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
    ws = new WebSocket(scheme + location.host + '/ws');
    ws.onopen = function () { setOnline(true); };
    ws.onmessage = function (event) { line.apply(null, render(event.data)); };
    ws.onclose = function () {
      line('Connection closed', 'event');
      setOnline(false);
      ws = null;
    };
  };

  document.getElementById('compose').onsubmit = function (event) {
    event.preventDefault();
    const value = text.value.trim();
    if (!value || !ws) {
      return;
    }
    ws.send(JSON.stringify({type: 'chat', text: value}));
    line('You: ' + value, 'self');
    text.value = '';
  };
</script>
</body>
</html>
`
