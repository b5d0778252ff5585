// Package errors provides structured, actionable error messages for devpack.
//
// Every error carries a stable code (e.g. "E200") that maps to a registered
// template with a short message, a longer explanation and a documentation
// link. Errors can be enriched with a source location, a suggestion and an
// example before they are shown to the user.
//
// # Error Categories
//
//   - config: configuration files, environment overrides and flags
//   - server: dev and preview server binding and proxying
//   - build: bundling, minification and output layout
//   - publish: uploading build output
//   - cli: command-line usage and scaffolding
//
// # Usage
//
//	err := errors.New("E200").
//	    WithDetail("Port 5173 is already in use").
//	    WithSuggestion("Stop the other process or set server.strictPort to false")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E200: Port already in use
//	//
//	//   Port 5173 is already in use
//	//
//	//   Hint: Stop the other process or set server.strictPort to false
//	//
//	//   Learn more: https://devpack.dev/docs/errors/E200
package errors
