package mcpservice

import (
	"context"
	"testing"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

func staticPrompt(name, text string) PromptDef {
	return PromptDef{
		Descriptor: mcp.Prompt{Name: name},
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return &mcp.GetPromptResult{
				Messages: []mcp.PromptMessage{{
					Role:    mcp.RoleUser,
					Content: mcp.ContentBlock{Type: "text", Text: text},
				}},
			}, nil
		},
	}
}

func TestPromptsContainerGet(t *testing.T) {
	ctx := context.Background()
	pc := NewPromptsContainer(staticPrompt("explain_addition", "Explain how addition works."))

	res, err := pc.GetPrompt(ctx, nil, &mcp.GetPromptRequest{Name: "explain_addition"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Messages[0].Content.Text != "Explain how addition works." {
		t.Fatalf("messages = %#v", res.Messages)
	}

	if _, err := pc.GetPrompt(ctx, nil, &mcp.GetPromptRequest{Name: "missing"}); err == nil {
		t.Fatalf("expected error for unknown prompt")
	}
}

func TestPromptsContainerAddRemoveList(t *testing.T) {
	ctx := context.Background()
	pc := NewPromptsContainer()

	if !pc.Add(ctx, staticPrompt("a", "a")) {
		t.Fatalf("add failed")
	}
	if pc.Add(ctx, staticPrompt("a", "a")) {
		t.Fatalf("duplicate add should fail")
	}
	page, err := pc.ListPrompts(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "a" {
		t.Fatalf("prompts = %#v", page.Items)
	}
	if !pc.Remove(ctx, "a") {
		t.Fatalf("remove failed")
	}
	if pc.Has("a") {
		t.Fatalf("Has(a) = true after remove")
	}
}
