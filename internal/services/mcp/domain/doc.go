// Package domain translates MCP tool calls into story session operations.
//
// Every handler works against one Workspace: the open story, its play
// session and save slots. Handlers return structured results so MCP clients
// can render frames, visual state and slot listings without parsing text.
package domain
