package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/compose-mcp/mcp-compose-go/internal/jsonrpc"
	"github.com/compose-mcp/mcp-compose-go/internal/logctx"
	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

// ServeMessage handles one JSON-RPC message against the merged
// capability surface and returns the encoded response, or nil for
// notifications. It is the protocol endpoint a transport would feed,
// and the same endpoint proxy mounts call in process, so a composition
// parent exercises exactly the path an external client would.
func (h *Host) ServeMessage(ctx context.Context, session sessions.Session, msg []byte) []byte {
	req, err := jsonrpc.DecodeRequest(msg)
	if err != nil {
		return encodeResponse(h, ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, err.Error(), nil))
	}

	if session != nil {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
			SessionID: session.SessionID(),
			State:     string(sessions.StateOpen),
		})
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String()})
	h.log.DebugContext(ctx, "rpc.recv")

	if req.IsNotification() {
		// The initialized notification is the only one a host expects;
		// all notifications are absorbed without a response.
		return nil
	}

	result, err := h.dispatch(ctx, session, req)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.fail", slog.String("err", err.Error()))
		return encodeResponse(h, ctx, errorResponse(req.ID, err))
	}
	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.encode.fail", slog.String("err", err.Error()))
		return encodeResponse(h, ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil))
	}
	return encodeResponse(h, ctx, res)
}

func (h *Host) dispatch(ctx context.Context, session sessions.Session, req *jsonrpc.Request) (any, error) {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return h.handleInitialize(req.Params)

	case mcp.PingMethod:
		return mcp.EmptyResult{}, nil

	case mcp.ToolsListMethod:
		var params mcp.ListToolsRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		page, err := h.ListTools(ctx, session, wireCursor(params.Cursor))
		if err != nil {
			return nil, err
		}
		res := mcp.ListToolsResult{Tools: page.Items}
		if page.NextCursor != nil {
			res.NextCursor = *page.NextCursor
		}
		return res, nil

	case mcp.ToolsCallMethod:
		var params mcp.CallToolRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.CallTool(ctx, session, &params)

	case mcp.ResourcesListMethod:
		var params mcp.ListResourcesRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		page, err := h.ListResources(ctx, session, wireCursor(params.Cursor))
		if err != nil {
			return nil, err
		}
		res := mcp.ListResourcesResult{Resources: page.Items}
		if page.NextCursor != nil {
			res.NextCursor = *page.NextCursor
		}
		return res, nil

	case mcp.ResourcesTemplatesListMethod:
		var params mcp.ListResourceTemplatesRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		page, err := h.ListResourceTemplates(ctx, session, wireCursor(params.Cursor))
		if err != nil {
			return nil, err
		}
		res := mcp.ListResourceTemplatesResult{ResourceTemplates: page.Items}
		if page.NextCursor != nil {
			res.NextCursor = *page.NextCursor
		}
		return res, nil

	case mcp.ResourcesReadMethod:
		var params mcp.ReadResourceRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		contents, err := h.ReadResource(ctx, session, params.URI)
		if err != nil {
			return nil, err
		}
		return mcp.ReadResourceResult{Contents: contents}, nil

	case mcp.PromptsListMethod:
		var params mcp.ListPromptsRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		page, err := h.ListPrompts(ctx, session, wireCursor(params.Cursor))
		if err != nil {
			return nil, err
		}
		res := mcp.ListPromptsResult{Prompts: page.Items}
		if page.NextCursor != nil {
			res.NextCursor = *page.NextCursor
		}
		return res, nil

	case mcp.PromptsGetMethod:
		var params mcp.GetPromptRequest
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return h.GetPrompt(ctx, session, &params)

	default:
		return nil, &jsonrpc.Error{Code: jsonrpc.ErrorCodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (h *Host) handleInitialize(params json.RawMessage) (any, error) {
	var initReq mcp.InitializeRequest
	if err := decodeParams(params, &initReq); err != nil {
		return nil, err
	}
	listChanged := struct {
		ListChanged bool `json:"listChanged"`
	}{ListChanged: true}
	return mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &listChanged,
			Resources: &listChanged,
			Prompts:   &listChanged,
		},
		ServerInfo: h.info,
	}, nil
}

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func wireCursor(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// errorResponse maps an internal error to a wire error response.
// Decoded wire errors pass through unchanged so nested proxies do not
// re-wrap each hop; unresolved identifiers map to invalid params, the
// code clients receive for unknown tools and prompts.
func errorResponse(id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: rpcErr, ID: id}
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, nf.Error(), nil)
	}
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
}

func encodeResponse(h *Host, ctx context.Context, res *jsonrpc.Response) []byte {
	out, err := json.Marshal(res)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.encode.fail", slog.String("err", err.Error()))
		out, _ = json.Marshal(jsonrpc.NewErrorResponse(res.ID, jsonrpc.ErrorCodeInternalError, "response encoding failed", nil))
	}
	return out
}
