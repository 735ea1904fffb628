package mcphost

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/mcpservice"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

type forecastArgs struct {
	City string `json:"city"`
}

type addArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

// newWeatherHost builds a child host exercising every capability kind.
func newWeatherHost(t *testing.T) *Host {
	t.Helper()
	h := New(
		WithName("weather"),
		WithVersion("1.0.0"),
		WithTools(mcpservice.NewTool[forecastArgs]("get_forecast",
			func(ctx context.Context, s sessions.Session, a forecastArgs) (*mcp.CallToolResult, error) {
				return mcpservice.TextResult("sunny in " + a.City), nil
			})),
		WithResources(mcpservice.NewTextResource(
			"data://cities/supported", "supported-cities", "application/json", `["rome","oslo"]`)),
		WithPrompts(mcpservice.PromptDef{
			Descriptor: mcp.Prompt{Name: "describe_weather"},
			Handler: func(ctx context.Context, s sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
				return &mcp.GetPromptResult{Messages: []mcp.PromptMessage{{
					Role:    mcp.RoleUser,
					Content: mcp.ContentBlock{Type: "text", Text: "Describe the weather."},
				}}}, nil
			},
		}),
	)
	if err := h.Resources().AddTemplate(context.Background(), mcpservice.TemplateDef{
		Descriptor: mcp.ResourceTemplate{URITemplate: "data://cities/{name}", Name: "city"},
		Handler: func(ctx context.Context, s sessions.Session, uri string) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{{URI: uri, MimeType: "text/plain", Text: "city data"}}, nil
		},
	}); err != nil {
		t.Fatalf("add template: %v", err)
	}
	return h
}

func newCalcHost(t *testing.T) *Host {
	t.Helper()
	return New(
		WithName("calculator"),
		WithVersion("1.0.0"),
		WithTools(mcpservice.NewTool[addArgs]("add",
			func(ctx context.Context, s sessions.Session, a addArgs) (*mcp.CallToolResult, error) {
				return mcpservice.TextResult(strconv.Itoa(a.A + a.B)), nil
			})),
		WithPrompts(mcpservice.PromptDef{
			Descriptor: mcp.Prompt{Name: "explain_addition"},
			Handler: func(ctx context.Context, s sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
				return &mcp.GetPromptResult{Messages: []mcp.PromptMessage{{
					Role:    mcp.RoleUser,
					Content: mcp.ContentBlock{Type: "text", Text: "Explain how addition works."},
				}}}, nil
			},
		}),
	)
}

func toolNames(t *testing.T, h *Host) []string {
	t.Helper()
	page, err := h.ListTools(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	names := make([]string, 0, len(page.Items))
	for _, tool := range page.Items {
		names = append(names, tool.Name)
	}
	return names
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func toolNamed(name string) mcpservice.ToolDef {
	return mcpservice.ToolDef{
		Descriptor: mcp.Tool{Name: name},
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcpservice.TextResult(name), nil
		},
	}
}

func waitTick(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("no change notification after %s", what)
	}
}

func drainTicks(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func callText(t *testing.T, h *Host, name, args string) string {
	t.Helper()
	res, err := h.CallTool(context.Background(), nil, &mcp.CallToolRequest{
		Name:      name,
		Arguments: []byte(args),
	})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if res.IsError {
		t.Fatalf("call %s returned error result: %#v", name, res)
	}
	return res.Content[0].Text
}
