package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/inkframe/internal/gallery"
	"github.com/kalambet/inkframe/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Gallery  *gallery.Gallery
	Displays DisplayLister
	Meta     *storage.Store
}

// DisplayLister abstracts the display store for the MCP layer.
type DisplayLister interface {
	Names() ([]string, error)
}

// NewMCPServer creates an MCP server exposing the gallery to agents.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"inkframe",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("inkframe — photo gallery and render service for e-paper displays."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_images",
			mcp.WithDescription("List the stored images with their titles and tags."),
			mcp.WithString("tags", mcp.Description("Optional comma-separated tag filter (case-insensitive, any match)")),
		),
		mcpListImages(deps),
	)

	s.AddTool(
		mcp.NewTool("list_displays",
			mcp.WithDescription("List the known display profile names."),
		),
		mcpListDisplays(deps),
	)

	s.AddTool(
		mcp.NewTool("select_image",
			mcp.WithDescription("Pick an image using a selection policy: 'random' or 'next'."),
			mcp.WithString("policy", mcp.Description("Selection policy: random or next"), mcp.Required()),
			mcp.WithString("tags", mcp.Description("Optional comma-separated tag filter")),
			mcp.WithNumber("current_index", mcp.Description("Index of the currently shown image; required for 'next', -1 when nothing is shown yet")),
		),
		mcpSelectImage(deps),
	)

	s.AddTool(
		mcp.NewTool("add_tag",
			mcp.WithDescription("Attach a tag to an image."),
			mcp.WithString("filename", mcp.Description("Stored image filename"), mcp.Required()),
			mcp.WithString("tag", mcp.Description("Tag to attach"), mcp.Required()),
		),
		mcpAddTag(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_tag",
			mcp.WithDescription("Detach a tag from an image."),
			mcp.WithString("filename", mcp.Description("Stored image filename"), mcp.Required()),
			mcp.WithString("tag", mcp.Description("Tag to detach"), mcp.Required()),
		),
		mcpRemoveTag(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"gallery://tags",
			"Gallery Tags",
			mcp.WithResourceDescription("All tags with usage counts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTags(deps),
	)

	return s
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func mcpListImages(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		images, err := deps.Gallery.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list images: %v", err)), nil
		}

		images = gallery.Filter(images, splitTags(req.GetString("tags", "")))
		if len(images) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(images)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal images: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListDisplays(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := deps.Displays.Names()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list displays: %v", err)), nil
		}
		b, err := json.Marshal(names)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal names: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSelectImage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		policy, err := req.RequireString("policy")
		if err != nil {
			return mcpError("policy is required"), nil
		}
		tags := splitTags(req.GetString("tags", ""))

		images, err := deps.Gallery.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list images: %v", err)), nil
		}

		var selected storage.ImageMeta
		idx := -1
		switch policy {
		case "random":
			selected, err = gallery.Random(images, tags)
		case "next":
			current, reqErr := req.RequireInt("current_index")
			if reqErr != nil {
				return mcpError("current_index is required for the next policy"), nil
			}
			selected, idx, err = gallery.Next(images, tags, current)
		default:
			return mcpError(fmt.Sprintf("unknown policy %q; use random or next", policy)), nil
		}
		if errors.Is(err, gallery.ErrNoMatch) {
			return mcpError("no matching images"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("selection failed: %v", err)), nil
		}

		result := map[string]any{"filename": selected.Filename, "title": selected.Title, "tags": selected.Tags}
		if idx >= 0 {
			result["index"] = idx
		}
		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal selection: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddTag(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filename, err := req.RequireString("filename")
		if err != nil {
			return mcpError("filename is required"), nil
		}
		tag, err := req.RequireString("tag")
		if err != nil {
			return mcpError("tag is required"), nil
		}

		if err := deps.Meta.AddImageTag(filename, tag); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("image %q not found", filename)), nil
			}
			return mcpError(fmt.Sprintf("failed to add tag: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Tagged %s with %q", filename, tag)), nil
	}
}

func mcpRemoveTag(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filename, err := req.RequireString("filename")
		if err != nil {
			return mcpError("filename is required"), nil
		}
		tag, err := req.RequireString("tag")
		if err != nil {
			return mcpError("tag is required"), nil
		}

		if err := deps.Meta.RemoveImageTag(filename, tag); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("tag %q not found on %s", tag, filename)), nil
			}
			return mcpError(fmt.Sprintf("failed to remove tag: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Removed %q from %s", tag, filename)), nil
	}
}

func mcpResourceTags(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tags, err := deps.Meta.AllTags()
		if err != nil {
			return nil, fmt.Errorf("failed to list tags: %w", err)
		}
		if tags == nil {
			tags = []storage.TagCount{}
		}

		b, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %w", err)
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
