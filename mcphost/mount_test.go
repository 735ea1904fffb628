package mcphost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/compose-mcp/mcp-compose-go/mcp"
	"github.com/compose-mcp/mcp-compose-go/mcpservice"
	"github.com/compose-mcp/mcp-compose-go/sessions"
)

func TestMountMergesListingsUnderPrefix(t *testing.T) {
	ctx := context.Background()
	parent := New(WithName("parent"))
	weather := newWeatherHost(t)

	if err := parent.Mount(ctx, "weather", weather); err != nil {
		t.Fatalf("mount: %v", err)
	}

	names := toolNames(t, parent)
	if !containsString(names, "weather_get_forecast") {
		t.Fatalf("merged tools = %v", names)
	}

	res, err := parent.ListResources(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list resources: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].URI != "weather+data://cities/supported" {
		t.Fatalf("merged resources = %#v", res.Items)
	}

	tpls, err := parent.ListResourceTemplates(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list templates: %v", err)
	}
	if len(tpls.Items) != 1 || tpls.Items[0].URITemplate != "weather+data://cities/{name}" {
		t.Fatalf("merged templates = %#v", tpls.Items)
	}

	prompts, err := parent.ListPrompts(ctx, nil, nil)
	if err != nil {
		t.Fatalf("list prompts: %v", err)
	}
	if len(prompts.Items) != 1 || prompts.Items[0].Name != "weather_describe_weather" {
		t.Fatalf("merged prompts = %#v", prompts.Items)
	}
}

func TestMountDelegatesInvocations(t *testing.T) {
	ctx := context.Background()
	parent := New()
	if err := parent.Mount(ctx, "weather", newWeatherHost(t)); err != nil {
		t.Fatalf("mount: %v", err)
	}

	if got := callText(t, parent, "weather_get_forecast", `{"city":"rome"}`); got != "sunny in rome" {
		t.Fatalf("tool result = %q", got)
	}

	contents, err := parent.ReadResource(ctx, nil, "weather+data://cities/supported")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if contents[0].Text != `["rome","oslo"]` {
		t.Fatalf("contents = %#v", contents)
	}

	// Template-backed reads strip the prefix before matching.
	contents, err = parent.ReadResource(ctx, nil, "weather+data://cities/rome")
	if err != nil {
		t.Fatalf("template read: %v", err)
	}
	if contents[0].Text != "city data" {
		t.Fatalf("template contents = %#v", contents)
	}

	prompt, err := parent.GetPrompt(ctx, nil, &mcp.GetPromptRequest{Name: "weather_describe_weather"})
	if err != nil {
		t.Fatalf("get prompt: %v", err)
	}
	if prompt.Messages[0].Content.Text != "Describe the weather." {
		t.Fatalf("prompt = %#v", prompt)
	}
}

func TestMountIsLive(t *testing.T) {
	ctx := context.Background()
	parent := New()
	weather := newWeatherHost(t)
	if err := parent.Mount(ctx, "weather", weather); err != nil {
		t.Fatalf("mount: %v", err)
	}

	weather.Tools().Add(ctx, mcpservice.ToolDef{
		Descriptor: mcp.Tool{Name: "get_alerts"},
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcpservice.TextResult("none"), nil
		},
	})

	names := toolNames(t, parent)
	if !containsString(names, "weather_get_alerts") {
		t.Fatalf("child mutation not visible: %v", names)
	}

	weather.Tools().Remove(ctx, "get_alerts")
	names = toolNames(t, parent)
	if containsString(names, "weather_get_alerts") {
		t.Fatalf("child removal not visible: %v", names)
	}
}

func TestUnmountSeversTheLink(t *testing.T) {
	ctx := context.Background()
	parent := New()
	if err := parent.Mount(ctx, "weather", newWeatherHost(t)); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if err := parent.Unmount(ctx, "weather"); err != nil {
		t.Fatalf("unmount: %v", err)
	}

	if names := toolNames(t, parent); len(names) != 0 {
		t.Fatalf("tools after unmount = %v", names)
	}
	_, err := parent.CallTool(ctx, nil, &mcp.CallToolRequest{Name: "weather_get_forecast"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != KindTool {
		t.Fatalf("expected tool NotFoundError, got %v", err)
	}

	err = parent.Unmount(ctx, "weather")
	if !errors.As(err, &nf) || nf.Kind != KindMount {
		t.Fatalf("expected mount NotFoundError, got %v", err)
	}
}

func TestMountCustomSeparator(t *testing.T) {
	ctx := context.Background()
	parent := New()
	calc := newCalcHost(t)
	if err := parent.Mount(ctx, "api", calc, WithToolSeparator("/")); err != nil {
		t.Fatalf("mount: %v", err)
	}

	names := toolNames(t, parent)
	if !containsString(names, "api/add") {
		t.Fatalf("merged tools = %v", names)
	}
	if got := callText(t, parent, "api/add", `{"a":2,"b":3}`); got != "5" {
		t.Fatalf("result = %q", got)
	}
}

func TestMountRejectsAmbiguousPrefix(t *testing.T) {
	ctx := context.Background()
	parent := New()
	var sepErr *SeparatorError

	err := parent.Mount(ctx, "my_server", newCalcHost(t))
	if !errors.As(err, &sepErr) {
		t.Fatalf("expected SeparatorError, got %v", err)
	}
	err = parent.Mount(ctx, "", newCalcHost(t))
	if !errors.As(err, &sepErr) {
		t.Fatalf("expected SeparatorError for empty prefix, got %v", err)
	}
}

func TestMountRejectsDuplicatePrefix(t *testing.T) {
	ctx := context.Background()
	parent := New()
	if err := parent.Mount(ctx, "calc", newCalcHost(t)); err != nil {
		t.Fatalf("mount: %v", err)
	}
	err := parent.Mount(ctx, "calc", newWeatherHost(t))
	var coll *CollisionError
	if !errors.As(err, &coll) || coll.Kind != KindMount {
		t.Fatalf("expected mount CollisionError, got %v", err)
	}
}

func TestMountRejectsCycles(t *testing.T) {
	ctx := context.Background()
	a := New(WithName("a"))
	b := New(WithName("b"))
	c := New(WithName("c"))

	var cyc *CycleError
	if err := a.Mount(ctx, "self", a); !errors.As(err, &cyc) {
		t.Fatalf("self mount: got %v", err)
	}

	if err := a.Mount(ctx, "b", b); err != nil {
		t.Fatalf("mount a->b: %v", err)
	}
	if err := b.Mount(ctx, "c", c); err != nil {
		t.Fatalf("mount b->c: %v", err)
	}
	if err := b.Mount(ctx, "a", a); !errors.As(err, &cyc) {
		t.Fatalf("direct cycle: got %v", err)
	}
	if err := c.Mount(ctx, "a", a); !errors.As(err, &cyc) {
		t.Fatalf("transitive cycle: got %v", err)
	}
}

func TestLocalDefinitionsShadowMounts(t *testing.T) {
	ctx := context.Background()
	parent := New(WithTools(mcpservice.ToolDef{
		Descriptor: mcp.Tool{Name: "calc_add"},
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcpservice.TextResult("local"), nil
		},
	}))
	if err := parent.Mount(ctx, "calc", newCalcHost(t)); err != nil {
		t.Fatalf("mount: %v", err)
	}

	if got := callText(t, parent, "calc_add", `{"a":2,"b":3}`); got != "local" {
		t.Fatalf("local definition should win, got %q", got)
	}

	names := toolNames(t, parent)
	count := 0
	for _, n := range names {
		if n == "calc_add" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("calc_add listed %d times in %v", count, names)
	}
}

func TestEarlierMountWinsOnOverlap(t *testing.T) {
	ctx := context.Background()
	parent := New()

	first := New(WithTools(mcpservice.ToolDef{
		Descriptor: mcp.Tool{Name: "b_t"},
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcpservice.TextResult("first"), nil
		},
	}))
	second := New(WithTools(mcpservice.ToolDef{
		Descriptor: mcp.Tool{Name: "t"},
		Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcpservice.TextResult("second"), nil
		},
	}))

	// Both links expose a tool named a/b_t at the parent: the first
	// through prefix "a" with a "/" tool separator, the second through
	// prefix "a/b" with the default separator.
	if err := parent.Mount(ctx, "a", first, WithToolSeparator("/")); err != nil {
		t.Fatalf("mount first: %v", err)
	}
	if err := parent.Mount(ctx, "a/b", second); err != nil {
		t.Fatalf("mount second: %v", err)
	}

	if got := callText(t, parent, "a/b_t", `{}`); got != "first" {
		t.Fatalf("mount-order winner = %q", got)
	}

	names := toolNames(t, parent)
	count := 0
	for _, n := range names {
		if n == "a/b_t" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("a/b_t listed %d times in %v", count, names)
	}
}

func TestResolutionFallsThroughToLaterLinks(t *testing.T) {
	ctx := context.Background()
	parent := New()

	first := New(WithName("first"), WithTools(toolNamed("y")))
	second := New(
		WithName("second"),
		WithTools(mcpservice.ToolDef{
			Descriptor: mcp.Tool{Name: "_x"},
			Handler: func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcpservice.TextResult("second"), nil
			},
		}),
		WithResources(mcpservice.NewTextResource("data://x", "x", "text/plain", "second")),
		WithPrompts(mcpservice.PromptDef{
			Descriptor: mcp.Prompt{Name: "_p"},
			Handler: func(ctx context.Context, s sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
				return &mcp.GetPromptResult{Messages: []mcp.PromptMessage{{
					Role:    mcp.RoleUser,
					Content: mcp.ContentBlock{Type: "text", Text: "second"},
				}}}, nil
			},
		}),
	)

	// Both links can strip the identifiers below: the first through
	// prefix "ab" with default separators, the second through prefix
	// "a" with separators starting in "b". Only the second child owns
	// the stripped identifiers, so resolution must pass over the first
	// link's miss instead of committing to it.
	if err := parent.Mount(ctx, "ab", first); err != nil {
		t.Fatalf("mount first: %v", err)
	}
	err := parent.Mount(ctx, "a", second,
		WithToolSeparator("b"), WithResourceSeparator("b+"), WithPromptSeparator("b"))
	if err != nil {
		t.Fatalf("mount second: %v", err)
	}

	if got := callText(t, parent, "ab_x", `{}`); got != "second" {
		t.Fatalf("tool fall-through = %q", got)
	}

	contents, err := parent.ReadResource(ctx, nil, "ab+data://x")
	if err != nil {
		t.Fatalf("resource fall-through: %v", err)
	}
	if contents[0].Text != "second" {
		t.Fatalf("contents = %#v", contents)
	}

	prompt, err := parent.GetPrompt(ctx, nil, &mcp.GetPromptRequest{Name: "ab_p"})
	if err != nil {
		t.Fatalf("prompt fall-through: %v", err)
	}
	if prompt.Messages[0].Content.Text != "second" {
		t.Fatalf("prompt = %#v", prompt)
	}

	var nf *NotFoundError
	if _, err := parent.CallTool(ctx, nil, &mcp.CallToolRequest{Name: "ab_z"}); !errors.As(err, &nf) || nf.Kind != KindTool {
		t.Fatalf("expected tool NotFoundError after exhausting links, got %v", err)
	}
}

func TestConcurrentMountsCannotFormCycles(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		a := New(WithName("a"))
		b := New(WithName("b"))
		errCh := make(chan error, 2)
		start := make(chan struct{})
		go func() {
			<-start
			errCh <- a.Mount(ctx, "b", b)
		}()
		go func() {
			<-start
			errCh <- b.Mount(ctx, "a", a)
		}()
		close(start)
		err1, err2 := <-errCh, <-errCh

		var cyc *CycleError
		switch {
		case err1 == nil && errors.As(err2, &cyc):
		case err2 == nil && errors.As(err1, &cyc):
		default:
			t.Fatalf("iteration %d: mounts returned %v and %v", i, err1, err2)
		}
	}
}

func TestCycleCheckHandlesSharedChildren(t *testing.T) {
	ctx := context.Background()
	a := New(WithName("a"))
	b := New(WithName("b"))
	c := New(WithName("c"))
	d := New(WithName("d"))
	for _, m := range []struct {
		parent *Host
		prefix string
		child  *Host
	}{
		{a, "b", b}, {a, "c", c}, {b, "d", d}, {c, "d", d},
	} {
		if err := m.parent.Mount(ctx, m.prefix, m.child); err != nil {
			t.Fatalf("mount %s: %v", m.prefix, err)
		}
	}

	// d is reachable from a along two paths; the cycle check must still
	// reject the back edge and accept an unrelated mount.
	var cyc *CycleError
	if err := d.Mount(ctx, "a", a); !errors.As(err, &cyc) {
		t.Fatalf("cycle through shared child: got %v", err)
	}
	if err := d.Mount(ctx, "leaf", New()); err != nil {
		t.Fatalf("acyclic mount rejected: %v", err)
	}
}

func TestCloseReleasesSubscribers(t *testing.T) {
	ctx := context.Background()
	parent := New()
	if err := parent.Mount(ctx, "calc", newCalcHost(t)); err != nil {
		t.Fatalf("mount: %v", err)
	}
	hostCh := parent.ToolsSubscriber()
	containerCh := parent.Tools().Subscriber()

	parent.Close(ctx)

	for _, ch := range []<-chan struct{}{hostCh, containerCh} {
		deadline := time.After(time.Second)
		for open := true; open; {
			select {
			case _, ok := <-ch:
				open = ok
			case <-deadline:
				t.Fatalf("subscriber channel not closed after Close")
			}
		}
	}
}

func TestMountNotifiesChanges(t *testing.T) {
	ctx := context.Background()
	parent := New()
	ch := parent.ToolsSubscriber()

	if err := parent.Mount(ctx, "calc", newCalcHost(t)); err != nil {
		t.Fatalf("mount: %v", err)
	}
	waitTick(t, ch, "mount")

	drainTicks(ch)
	if err := parent.Unmount(ctx, "calc"); err != nil {
		t.Fatalf("unmount: %v", err)
	}
	waitTick(t, ch, "unmount")
}

func TestChildMutationsPropagateNotifications(t *testing.T) {
	ctx := context.Background()
	parent := New()
	weather := newWeatherHost(t)
	if err := parent.Mount(ctx, "weather", weather); err != nil {
		t.Fatalf("mount: %v", err)
	}

	ch := parent.ToolsSubscriber()
	drainTicks(ch)

	weather.Tools().Add(ctx, toolNamed("get_alerts"))
	waitTick(t, ch, "child tool add")
}
