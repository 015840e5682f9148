// Package service runs the story MCP server over stdio or streamable HTTP.
//
// Tool and resource meaning lives in the domain package; this package owns
// transport selection, the HTTP host guard and bearer/access grant checks.
package service
