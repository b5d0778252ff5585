// Package config provides the build configuration of a devpack project.
//
// Default returns the built-in record. Load layers a config file
// (devpack.json, devpack.yaml or devpack.yml), DEVPACK_* environment
// variables and command-line overrides on top of it.
//
// # Configuration File Structure
//
//	{
//	  "plugins": [{"name": "react"}],
//	  "server": {
//	    "host": true,
//	    "port": 5173,
//	    "strictPort": true,
//	    "watch": {"usePolling": true},
//	    "proxy": {
//	      "/api": {
//	        "target": "http://localhost:8080",
//	        "changeOrigin": true,
//	        "insecureSkipVerify": true
//	      }
//	    }
//	  },
//	  "build": {
//	    "outDir": "dist",
//	    "sourcemap": false,
//	    "minify": "esbuild"
//	  },
//	  "preview": {
//	    "port": 5173,
//	    "host": true
//	  }
//	}
//
// Host values are true (all interfaces), false (localhost) or an address.
// A proxy value may also be a bare target URL.
//
// # Usage
//
//	cfg, err := config.Load(config.LoadOptions{Dir: "."})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Dev server:", cfg.DevAddress())
package config
