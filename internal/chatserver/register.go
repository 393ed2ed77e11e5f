package chatserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// RegisterTools registers the video Q&A tools on the given MCP server:
// video_initialize, video_chat.
func RegisterTools(server *mcp.Server, s *Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_initialize",
		Description: "Prepare a YouTube video for questions: fetches its English transcript, splits and embeds it, and keeps the index in memory. Accepts a video id or watch URL. Optional; video_chat initializes on first use.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input engine.InitializeInput) (*mcp.CallToolResult, engine.InitializeOutput, error) {
		out, err := s.Initialize(ctx, input)
		if err != nil {
			return nil, engine.InitializeOutput{}, err
		}
		return nil, out, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_chat",
		Description: "Answer a question about a YouTube video using only its transcript. Retrieves the most relevant transcript passages and replies \"I don't know\" when they do not cover the question.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input engine.ChatInput) (*mcp.CallToolResult, engine.ChatOutput, error) {
		out, err := s.Chat(ctx, input)
		if err != nil {
			return nil, engine.ChatOutput{}, err
		}
		return nil, out, nil
	})
}
