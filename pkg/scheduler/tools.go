// Package scheduler exposes the post-scheduling MCP tools and the
// publish pass that pushes due posts to the upstream network. All
// tool handlers resolve their client and storage through the ambient
// accessors, so the same handler code serves any authenticated caller.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/termin/pkg/ambient"
	"github.com/rhuss/termin/pkg/credential"
	"github.com/rhuss/termin/pkg/schedstore"
)

// SchedulePostInput is the input for the schedule_post tool.
type SchedulePostInput struct {
	Text        string `json:"text" jsonschema_description:"The post text to publish"`
	ScheduledAt string `json:"scheduled_at" jsonschema_description:"Publication time in RFC 3339 format"`
}

// CancelPostInput is the input for the cancel_scheduled_post tool.
type CancelPostInput struct {
	ID int64 `json:"id" jsonschema_description:"The scheduled post ID to cancel"`
}

// PostNowInput is the input for the post_now tool.
type PostNowInput struct {
	Text string `json:"text" jsonschema_description:"The post text to publish immediately"`
}

// AddTools registers the scheduling tools on the given MCP server.
func AddTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_post",
		Description: "Schedules a post for later publication",
	}, handleSchedulePost)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_scheduled_posts",
		Description: "Lists your scheduled posts",
	}, handleListPosts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_scheduled_post",
		Description: "Cancels a pending scheduled post",
	}, handleCancelPost)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "post_now",
		Description: "Publishes a post immediately",
	}, handlePostNow)
}

func handleSchedulePost(ctx context.Context, _ *mcp.CallToolRequest, input SchedulePostInput) (*mcp.CallToolResult, struct{}, error) {
	if strings.TrimSpace(input.Text) == "" {
		return toolError("post text must not be empty"), struct{}{}, nil
	}
	at, err := time.Parse(time.RFC3339, input.ScheduledAt)
	if err != nil {
		return toolError(fmt.Sprintf("invalid scheduled_at %q: use RFC 3339, e.g. 2026-09-01T10:00:00Z", input.ScheduledAt)), struct{}{}, nil
	}

	cred, ok := credential.Get(ctx)
	if !ok {
		return nil, struct{}{}, credential.ErrUnauthenticated
	}
	db, err := ambient.CurrentStorage(ctx)
	if err != nil {
		return nil, struct{}{}, err
	}

	id, err := db.Schedule(ctx, cred.Subject, input.Text, at.UTC())
	if err != nil {
		return nil, struct{}{}, fmt.Errorf("scheduling post: %w", err)
	}
	return toolText(fmt.Sprintf("Scheduled post %d for %s", id, at.UTC().Format(time.RFC3339))), struct{}{}, nil
}

func handleListPosts(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
	cred, ok := credential.Get(ctx)
	if !ok {
		return nil, struct{}{}, credential.ErrUnauthenticated
	}
	db, err := ambient.CurrentStorage(ctx)
	if err != nil {
		return nil, struct{}{}, err
	}

	posts, err := db.List(ctx, cred.Subject)
	if err != nil {
		return nil, struct{}{}, fmt.Errorf("listing posts: %w", err)
	}
	if len(posts) == 0 {
		return toolText("No scheduled posts."), struct{}{}, nil
	}

	var b strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&b, "[%d] %s at %s: %s\n",
			p.ID, p.Status, p.ScheduledAt.Format(time.RFC3339), summarize(p.Body))
	}
	return toolText(b.String()), struct{}{}, nil
}

func handleCancelPost(ctx context.Context, _ *mcp.CallToolRequest, input CancelPostInput) (*mcp.CallToolResult, struct{}, error) {
	cred, ok := credential.Get(ctx)
	if !ok {
		return nil, struct{}{}, credential.ErrUnauthenticated
	}
	db, err := ambient.CurrentStorage(ctx)
	if err != nil {
		return nil, struct{}{}, err
	}

	if err := db.Cancel(ctx, cred.Subject, input.ID); err != nil {
		if errors.Is(err, schedstore.ErrNotFound) {
			return toolError(fmt.Sprintf("no pending post with ID %d", input.ID)), struct{}{}, nil
		}
		return nil, struct{}{}, fmt.Errorf("cancelling post: %w", err)
	}
	return toolText(fmt.Sprintf("Cancelled post %d", input.ID)), struct{}{}, nil
}

func handlePostNow(ctx context.Context, _ *mcp.CallToolRequest, input PostNowInput) (*mcp.CallToolResult, struct{}, error) {
	if strings.TrimSpace(input.Text) == "" {
		return toolError("post text must not be empty"), struct{}{}, nil
	}

	client, err := ambient.CurrentClient(ctx)
	if err != nil {
		return nil, struct{}{}, err
	}

	urn, err := client.CreatePost(ctx, input.Text)
	if err != nil {
		return nil, struct{}{}, fmt.Errorf("publishing post: %w", err)
	}
	return toolText(fmt.Sprintf("Published post %s", urn)), struct{}{}, nil
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// summarize shortens a post body for list output.
func summarize(body string) string {
	const max = 60
	body = strings.ReplaceAll(body, "\n", " ")
	if len(body) <= max {
		return body
	}
	return body[:max] + "..."
}
