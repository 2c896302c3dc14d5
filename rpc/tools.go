package rpc

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// toolDefinitions declares the schema for every tool the server
// exposes. Handlers are attached by name in MCPServer.
func toolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("ping",
			mcp.WithDescription("Check that the webgrab service is alive. Returns service name, build and timestamp."),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("set_antidetection",
			mcp.WithDescription("Configure the anti-detection profile used by all fetches: browser header sets, optional custom headers, per-request delay and response size budget."),
			mcp.WithString("profile",
				mcp.Required(),
				mcp.Description("Header profile to apply"),
				mcp.Enum("stealth", "balanced", "none", "custom", "browser_tls"),
			),
			mcp.WithObject("custom_headers",
				mcp.Description("Extra headers overlaid on the profile (custom profile); values must be strings"),
			),
			mcp.WithString("custom_user_agent",
				mcp.Description("Replaces the profile User-Agent"),
			),
			mcp.WithNumber("rate_limit_delay",
				mcp.Description("Seconds to pause before each outbound fetch, 0 disables"),
			),
			mcp.WithNumber("max_response_chars",
				mcp.Description("Inline response budget in characters, 4000 to 4000000"),
			),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("get_content",
			mcp.WithDescription("Fetch a page, extract readable content, and optionally crawl same-host links to a bounded depth. Large results can be stored as a chunked session instead of returned inline."),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("Page to fetch (http or https)"),
			),
			mcp.WithNumber("depth",
				mcp.Description("Crawl depth; 1 fetches only the page itself (clamped to 1-3)"),
			),
			mcp.WithNumber("max_pages_per_level",
				mcp.Description("Link fan-out per depth level (clamped to 1-20)"),
			),
			mcp.WithString("selector",
				mcp.Description("CSS selector scoping extraction to part of the page"),
			),
			mcp.WithBoolean("include_links",
				mcp.Description("Collect hyperlinks (default true)"),
			),
			mcp.WithBoolean("include_images",
				mcp.Description("Collect image references"),
			),
			mcp.WithBoolean("include_meta",
				mcp.Description("Collect meta tags and OpenGraph data"),
			),
			mcp.WithBoolean("filter_noise",
				mcp.Description("Drop navigation, cookie banners and boilerplate text (default true)"),
			),
			mcp.WithBoolean("session",
				mcp.Description("Persist the result as a chunked session and return its envelope"),
			),
			mcp.WithNumber("chunk_size",
				mcp.Description("Session chunk size in characters"),
			),
			mcp.WithNumber("max_bytes",
				mcp.Description("Inline response budget override"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Per-request fetch timeout override"),
			),
			mcp.WithBoolean("parse_results",
				mcp.Description("Run the news parser over the crawl and attach structured stories"),
			),
			mcp.WithString("source_profile_name",
				mcp.Description("News parser profile (default generic)"),
			),
			mcp.WithString("extract_mode",
				mcp.Description("Extraction strategy"),
				mcp.Enum("full", "auto", "readability"),
			),
			mcp.WithString("output_format",
				mcp.Description("Add a markdown rendering of the extracted content"),
				mcp.Enum("text", "markdown"),
			),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("get_structure",
			mcp.WithDescription("Analyze page structure without extracting content: heading outline, link and form inventory, navigation and content area detection."),
			mcp.WithString("url",
				mcp.Required(),
				mcp.Description("Page to analyze (http or https)"),
			),
			mcp.WithString("selector",
				mcp.Description("CSS selector scoping the analysis"),
			),
			mcp.WithBoolean("include_meta",
				mcp.Description("Collect meta tags and OpenGraph data (default true)"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Per-request fetch timeout override"),
			),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("get_session_info",
			mcp.WithDescription("Return metadata for a stored session: source URL, chunk count, sizes and creation time."),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session identifier returned by get_content"),
			),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("get_session_chunk",
			mcp.WithDescription("Return one chunk of a stored session by zero-based index."),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session identifier"),
			),
			mcp.WithNumber("chunk_index",
				mcp.Required(),
				mcp.Description("Zero-based chunk index"),
			),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("get_session",
			mcp.WithDescription("Join and return the full content of a stored session, subject to a size budget."),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session identifier"),
			),
			mcp.WithNumber("max_bytes",
				mcp.Description("Refuse with CONTENT_TOO_LARGE if the joined content exceeds this"),
			),
			mcp.WithNumber("timeout_seconds",
				mcp.Description("Read timeout"),
			),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("get_session_urls",
			mcp.WithDescription("List chunk references for a stored session, either as {session_id, chunk_index} pairs or as ready-to-fetch HTTP URLs."),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session identifier"),
			),
			mcp.WithBoolean("as_json",
				mcp.Description("Return {session_id, chunk_index} pairs (default true); false renders chunk URLs"),
			),
			mcp.WithString("base_url",
				mcp.Description("Base for rendered chunk URLs; defaults to the configured web URL"),
			),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),

		mcp.NewTool("list_sessions",
			mcp.WithDescription("Enumerate stored sessions visible to the caller."),
			mcp.WithString("auth_token",
				mcp.Description("Optional JWT bearer token"),
			),
		),
	}
}
