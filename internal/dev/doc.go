// Package dev provides the development server and live reload.
//
// This package implements:
//   - File watching by polling or native file events
//   - Incremental rebuilds through the bundler's rebuild context
//   - Proxying of configured path prefixes to backend servers
//   - WebSocket-based browser refresh and CSS reload
//   - Error overlay in browser
//
// # Architecture
//
// The development server consists of several components:
//
//   - Watcher: Monitors the project for changes
//   - Compiler: Rebuilds the bundle and keeps the latest good one
//   - Server: Serves the bundle, public files and index.html
//   - ReloadServer: Notifies browsers of changes via WebSocket
//
// # Usage
//
//	srv, err := dev.NewServer(dev.ServerOptions{
//	    Config: cfg,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// # Live Reload Protocol
//
// The browser connects to /__devpack/reload via WebSocket.
// Messages are JSON-encoded:
//
//	{"type": "connected", "id": "..."} // Sent on connect
//	{"type": "reload"}                 // Triggers full page reload
//	{"type": "css", "file": "..."}     // Triggers CSS-only reload
//	{"type": "error", "error": "..."}  // Shows error overlay
//	{"type": "clear"}                  // Clears error overlay
package dev
