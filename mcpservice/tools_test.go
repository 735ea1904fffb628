package mcpservice

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

func TestNewToolReflectsInputSchema(t *testing.T) {
	type args struct {
		City string `json:"city"`
		Days int    `json:"days,omitempty"`
	}
	def := NewTool[args]("get_forecast", func(ctx context.Context, s sessions.Session, a args) (*mcp.CallToolResult, error) {
		return TextResult("sunny in " + a.City), nil
	}, WithToolDescription("Fetch a weather forecast."))

	if def.Descriptor.Name != "get_forecast" {
		t.Fatalf("name = %q", def.Descriptor.Name)
	}
	if def.Descriptor.Description != "Fetch a weather forecast." {
		t.Fatalf("description = %q", def.Descriptor.Description)
	}
	schema := def.Descriptor.InputSchema
	if schema.Type != "object" {
		t.Fatalf("schema type = %q", schema.Type)
	}
	if _, ok := schema.Properties["city"]; !ok {
		t.Fatalf("schema missing city property: %#v", schema.Properties)
	}
	if got := schema.Properties["city"].Type; got != "string" {
		t.Fatalf("city type = %q", got)
	}
	if got := schema.Properties["days"].Type; got != "integer" {
		t.Fatalf("days type = %q", got)
	}
	foundRequired := false
	for _, r := range schema.Required {
		if r == "city" {
			foundRequired = true
		}
		if r == "days" {
			t.Fatalf("days should not be required")
		}
	}
	if !foundRequired {
		t.Fatalf("city should be required, got %v", schema.Required)
	}
}

func TestNewToolDecodesArguments(t *testing.T) {
	type args struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	def := NewTool[args]("add", func(ctx context.Context, s sessions.Session, a args) (*mcp.CallToolResult, error) {
		return TextResult(strconv.Itoa(a.A + a.B)), nil
	})

	res, err := def.Handler(context.Background(), nil, &mcp.CallToolRequest{
		Name:      "add",
		Arguments: json.RawMessage(`{"a":2,"b":3}`),
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %#v", res)
	}
	if res.Content[0].Text != "5" {
		t.Fatalf("sum = %q", res.Content[0].Text)
	}
}

func TestNewToolRejectsUnknownFields(t *testing.T) {
	type args struct {
		A int `json:"a"`
	}
	def := NewTool[args]("strict", func(ctx context.Context, s sessions.Session, a args) (*mcp.CallToolResult, error) {
		return TextResult("ok"), nil
	})

	res, err := def.Handler(context.Background(), nil, &mcp.CallToolRequest{
		Name:      "strict",
		Arguments: json.RawMessage(`{"a":1,"extra":true}`),
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected an error result for unknown field")
	}
}

func TestNewToolAllowsUnknownFieldsWhenConfigured(t *testing.T) {
	type args struct {
		A int `json:"a"`
	}
	def := NewTool[args]("lenient", func(ctx context.Context, s sessions.Session, a args) (*mcp.CallToolResult, error) {
		return TextResult("ok"), nil
	}, WithToolAllowAdditionalProperties(true))

	res, err := def.Handler(context.Background(), nil, &mcp.CallToolRequest{
		Name:      "lenient",
		Arguments: json.RawMessage(`{"a":1,"extra":true}`),
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %#v", res)
	}
}

func TestToolsContainerAddRemove(t *testing.T) {
	ctx := context.Background()
	tc := NewToolsContainer()

	ok := tc.Add(ctx, ToolDef{Descriptor: mcp.Tool{Name: "one"}, Handler: echoTool("one")})
	if !ok {
		t.Fatalf("first add failed")
	}
	if tc.Add(ctx, ToolDef{Descriptor: mcp.Tool{Name: "one"}}) {
		t.Fatalf("duplicate add should fail")
	}
	if !tc.Has("one") {
		t.Fatalf("Has(one) = false")
	}
	if !tc.Remove(ctx, "one") {
		t.Fatalf("remove failed")
	}
	if tc.Remove(ctx, "one") {
		t.Fatalf("double remove should fail")
	}
	if tc.Has("one") {
		t.Fatalf("Has(one) = true after remove")
	}
}

func echoTool(name string) ToolHandler {
	return func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return TextResult(name), nil
	}
}

func TestToolsContainerPagination(t *testing.T) {
	ctx := context.Background()
	tc := NewToolsContainer(
		ToolDef{Descriptor: mcp.Tool{Name: "a"}},
		ToolDef{Descriptor: mcp.Tool{Name: "b"}},
		ToolDef{Descriptor: mcp.Tool{Name: "c"}},
	)
	tc.SetPageSize(2)

	page, err := tc.ListTools(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == nil {
		t.Fatalf("first page = %d items, cursor %v", len(page.Items), page.NextCursor)
	}
	page, err = tc.ListTools(ctx, nil, page.NextCursor)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.NextCursor != nil {
		t.Fatalf("second page = %d items, cursor %v", len(page.Items), page.NextCursor)
	}
	if page.Items[0].Name != "c" {
		t.Fatalf("second page item = %q", page.Items[0].Name)
	}
}

func TestToolsContainerCallUnknown(t *testing.T) {
	tc := NewToolsContainer()
	_, err := tc.CallTool(context.Background(), nil, &mcp.CallToolRequest{Name: "nope"})
	if err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}

func TestToolsContainerNotifiesOnMutation(t *testing.T) {
	ctx := context.Background()
	tc := NewToolsContainer()
	ch := tc.Subscriber()

	tc.Add(ctx, ToolDef{Descriptor: mcp.Tool{Name: "x"}})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("no change notification after add")
	}
}
