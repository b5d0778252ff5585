package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://devpack.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (E100-E199)
	// ============================================

	"E100": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be read or parsed.",
		DocURL:   docBase + "E100",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Ports must be between 0 and 65535. Use 0 to pick a free port.",
		DocURL:   docBase + "E101",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid proxy rule",
		Detail:   "Proxy keys must start with '/' or '^' and targets must be absolute http(s) or ws(s) URLs.",
		DocURL:   docBase + "E102",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Unknown plugin",
		Detail:   "The plugin is not registered with devpack.",
		DocURL:   docBase + "E103",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid minifier",
		Detail:   "build.minify must be \"esbuild\", \"terser\" or false.",
		DocURL:   docBase + "E104",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A DEVPACK_* environment variable could not be parsed.",
		DocURL:   docBase + "E105",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid host",
		Detail:   "host must be true, false or an address string.",
		DocURL:   docBase + "E106",
	},

	// ============================================
	// Server Errors (E200-E299)
	// ============================================

	"E200": {
		Category: CategoryServer,
		Message:  "Port already in use",
		Detail:   "strictPort is enabled, so the server will not fall back to another port.",
		DocURL:   docBase + "E200",
	},
	"E201": {
		Category: CategoryServer,
		Message:  "Cannot bind address",
		Detail:   "The server could not listen on the configured address.",
		DocURL:   docBase + "E201",
	},
	"E202": {
		Category: CategoryServer,
		Message:  "Build output missing",
		Detail:   "The preview server needs a production build to serve.",
		DocURL:   docBase + "E202",
	},
	"E203": {
		Category: CategoryServer,
		Message:  "Proxy target unreachable",
		Detail:   "The upstream server for a proxy rule did not respond.",
		DocURL:   docBase + "E203",
	},

	// ============================================
	// Build Errors (E300-E399)
	// ============================================

	"E300": {
		Category: CategoryBuild,
		Message:  "Build failed",
		Detail:   "The bundler reported errors.",
		DocURL:   docBase + "E300",
	},
	"E301": {
		Category: CategoryBuild,
		Message:  "Entry HTML not found",
		Detail:   "devpack uses index.html in the project root as the build entry.",
		DocURL:   docBase + "E301",
	},
	"E302": {
		Category: CategoryBuild,
		Message:  "Unsafe output directory",
		Detail:   "The output directory must be inside the project root and must not be the root itself.",
		DocURL:   docBase + "E302",
	},
	"E303": {
		Category: CategoryBuild,
		Message:  "Minifier failed",
		Detail:   "The selected minifier exited with an error.",
		DocURL:   docBase + "E303",
	},

	// ============================================
	// Publish Errors (E400-E499)
	// ============================================

	"E400": {
		Category: CategoryPublish,
		Message:  "Publish failed",
		Detail:   "Uploading the build output failed.",
		DocURL:   docBase + "E400",
	},
	"E401": {
		Category: CategoryPublish,
		Message:  "Publish target not configured",
		Detail:   "Set publish.bucket in the configuration or pass --bucket.",
		DocURL:   docBase + "E401",
	},

	// ============================================
	// CLI Errors (E500-E599)
	// ============================================

	"E500": {
		Category: CategoryCLI,
		Message:  "Project directory already exists",
		Detail:   "devpack create will not overwrite an existing directory.",
		DocURL:   docBase + "E500",
	},
	"E501": {
		Category: CategoryCLI,
		Message:  "Unknown template",
		Detail:   "The requested project template does not exist.",
		DocURL:   docBase + "E501",
	},
}

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
