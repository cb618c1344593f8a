package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/draftr/internal/composer"
	"github.com/kalambet/draftr/internal/drafting"
	"github.com/kalambet/draftr/internal/schedule"
	"github.com/kalambet/draftr/internal/settings"
)

// MCPDrafter abstracts draft generation for the MCP layer.
type MCPDrafter interface {
	Draft(ctx context.Context, req drafting.Request) (drafting.Draft, error)
}

// MCPScheduler abstracts the scheduled post store for the MCP layer.
type MCPScheduler interface {
	Schedule(ctx context.Context, content string, fireAt time.Time) (schedule.Post, error)
	List(ctx context.Context) ([]schedule.Post, error)
	Missed(ctx context.Context) ([]schedule.Post, error)
}

// MCPSettings is the read side of the settings container.
type MCPSettings interface {
	Get() settings.Settings
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Drafter   MCPDrafter
	Scheduler MCPScheduler
	Settings  MCPSettings
	Version   string
}

// NewMCPServer creates an MCP server with all draftr tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"draftr",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("draftr drafts social media replies, post variations and post ideas in the user's voice, and schedules posts for later publication."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("draft",
			mcp.WithDescription("Generate candidate replies, post variations or post ideas, plus brainstorming questions."),
			mcp.WithString("kind", mcp.Description("reply, post or ideas"), mcp.Required(), mcp.Enum("reply", "post", "ideas")),
			mcp.WithString("input", mcp.Description("The post being replied to, the draft to vary, or the topic for ideas"), mcp.Required()),
			mcp.WithNumber("count", mcp.Description("Number of candidates (default from settings)")),
			mcp.WithString("tone", mcp.Description("Optional tone override for this request")),
		),
		mcpDraft(deps),
	)

	s.AddTool(
		mcp.NewTool("schedule_post",
			mcp.WithDescription("Schedule a post to be published at a future time."),
			mcp.WithString("content", mcp.Description("Post text"), mcp.Required()),
			mcp.WithString("scheduled_time", mcp.Description("RFC 3339 timestamp, e.g. 2026-05-01T09:30:00Z"), mcp.Required()),
		),
		mcpSchedulePost(deps),
	)

	s.AddTool(
		mcp.NewTool("list_scheduled_posts",
			mcp.WithDescription("List scheduled posts, optionally filtered by status."),
			mcp.WithString("status", mcp.Description("pending, posted or missed"), mcp.Enum("pending", "posted", "missed")),
		),
		mcpListScheduledPosts(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"settings://current",
			"Drafting Settings",
			mcp.WithResourceDescription("Current drafting settings as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSettings(deps),
	)

	return s
}

func mcpDraft(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := req.RequireString("kind")
		if err != nil {
			return mcpError("kind is required"), nil
		}
		input, err := req.RequireString("input")
		if err != nil {
			return mcpError("input is required"), nil
		}

		draft, err := deps.Drafter.Draft(ctx, drafting.Request{
			Kind:  composer.Kind(kind),
			Input: input,
			Count: req.GetInt("count", 0),
			Tone:  req.GetString("tone", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("draft failed: %v", err)), nil
		}

		b, err := json.Marshal(draft)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal draft: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSchedulePost(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		raw, err := req.RequireString("scheduled_time")
		if err != nil {
			return mcpError("scheduled_time is required"), nil
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcpError(fmt.Sprintf("scheduled_time must be RFC 3339: %v", err)), nil
		}

		post, err := deps.Scheduler.Schedule(ctx, content, at)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to schedule: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Scheduled %s for %s", post.AlarmID, post.ScheduledTime.Format(time.RFC3339))), nil
	}
}

func mcpListScheduledPosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := req.GetString("status", "")

		var (
			posts []schedule.Post
			err   error
		)
		switch status {
		case "missed":
			posts, err = deps.Scheduler.Missed(ctx)
		case "", string(schedule.StatusPending), string(schedule.StatusPosted):
			posts, err = deps.Scheduler.List(ctx)
			posts = filterStatus(posts, schedule.Status(status))
		default:
			return mcpError("status must be pending, posted or missed"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list posts: %v", err)), nil
		}
		if posts == nil {
			posts = []schedule.Post{}
		}

		b, err := json.Marshal(posts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal posts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSettings(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Settings.Get())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal settings: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
