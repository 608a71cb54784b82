// Package mcp implements MCP (Model Context Protocol) client support,
// allowing Scribe to hold a tool-calling session against the Coral
// server and expose its remotely-defined tools to the task runner.
//
// MCP uses JSON-RPC 2.0. Scribe speaks the SSE transport: a long-lived
// GET stream delivers server messages, and an endpoint event names the
// URL that client requests are POSTed to. The client discovers tools
// via tools/list and invokes them via tools/call.
//
// This implementation covers the client/host side only — Scribe does
// not act as an MCP server.
package mcp
