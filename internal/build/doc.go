// Package build bundles a frontend project for production and for the dev
// server.
//
// The entry points are read from the project's index.html: module scripts
// and stylesheets that live in the project become bundler entries, and the
// HTML is rewritten to reference the hashed outputs.
//
// # Usage
//
//	builder, err := build.New(cfg, build.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := builder.Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Built in %s\n", result.Duration)
//
// # Output Structure
//
//	dist/
//	├── index.html              # Rewritten entry HTML
//	├── favicon.svg             # Copied from public/
//	├── assets/
//	│   ├── main-3FJ2KQ7M.js    # Bundled scripts
//	│   └── main-VD4H2S3Q.css   # Bundled styles
//	└── .devpack/
//	    └── manifest.json       # Only with build.manifest
//
// # Manifest
//
// The manifest maps each source entry to its outputs:
//
//	{
//	  "buildId": "7d9c3c1e-5f0e-4b8e-9b7e-2f1d3c4b5a69",
//	  "entries": {
//	    "src/main.jsx": {"file": "assets/main-3FJ2KQ7M.js", "css": ["assets/main-VD4H2S3Q.css"]}
//	  }
//	}
package build
