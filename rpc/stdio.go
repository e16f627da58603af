package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// ServeStdio runs a line-delimited JSON-RPC loop over the supplied reader and
// writer, one request per line. The transport trusts its local operator, so
// mutating methods skip bearer authentication. It returns when the reader is
// exhausted or the context is cancelled.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxRequestBytes)
	encoder := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp := s.serveLine(line)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *Server) serveLine(line string) RPCResponse {
	req := &RPCRequest{}
	if err := json.Unmarshal([]byte(line), req); err != nil {
		return RPCResponse{
			JSONRPC: jsonRPCVersion,
			Error:   errObj(codeParseError, "invalid JSON payload", err.Error()),
		}
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return RPCResponse{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Error:   errObj(codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC),
		}
	}
	if req.Method == "" {
		return RPCResponse{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Error:   errObj(codeInvalidRequest, "method required", nil),
		}
	}
	result, rpcErr := s.dispatch(req)
	if rpcErr != nil {
		s.log.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		return RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr}
	}
	return RPCResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}
}
