// Package preview serves a finished production build locally.
//
// The preview server binds the preview host and port, serves the output
// directory with a single-page-app fallback to index.html, and forwards
// the configured proxy prefixes to their backends. Files under the assets
// directory are served as immutable; everything else is revalidated.
package preview
