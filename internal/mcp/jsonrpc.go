package mcp

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 framing, restricted to the subset the Coral server
// speaks: monotonically-increasing integer request IDs, one response
// per request, and fire-and-forget notifications. Batch messages and
// server-initiated requests are not modeled.

const jsonrpcVersion = "2.0"

// Request is an outbound call that expects a response. The ID is how
// the SSE transport pairs the eventual response back to the caller, so
// IDs must never repeat within a session.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest frames a call to method with the given params.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Response carries either a result payload or an error, never both.
// The result stays raw until the caller knows which shape to decode.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// DecodeResult unmarshals the result payload into v. A response that
// carries neither a result nor an error violates the protocol and is
// reported as such rather than decoded as empty.
func (r *Response) DecodeResult(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return fmt.Errorf("jsonrpc response %d carried no result", r.ID)
	}
	return json.Unmarshal(r.Result, v)
}

// RPCError is the protocol-level error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Notification is a one-way message: no ID, and the server never
// answers it. The transport distinguishes notifications from requests
// by the absent ID.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification frames a one-way message to method.
func NewNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	}
}
