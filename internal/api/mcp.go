package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaehwang/sulbi/internal/report"
	"github.com/jaehwang/sulbi/internal/storage"
	"github.com/jaehwang/sulbi/internal/tools"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	TrendSearch tools.Executor
	Aggregator  report.Aggregator
	Saver       DocSaver
}

// NewMCPServer exposes the advisory building blocks over MCP so operators
// and desktop agents can query trends, pull district reports, and feed the
// corpus without going through the HTTP surface.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"sulbi",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("sulbi: 서울 술집 상권 분석 도구. Trend search, district reports, and corpus ingest for Seoul pub districts."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("trend_search",
			mcp.WithDescription("Search the trend-document corpus for recent pub and nightlife trends, reranked by area relevance and recency."),
			mcp.WithString("query", mcp.Description("Search query, e.g. '성수동 와인바'"), mcp.Required()),
			mcp.WithString("area", mcp.Description("Area keyword to bias ranking, e.g. '성수동'")),
		),
		mcpTrendSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("district_report",
			mcp.WithDescription("Fetch the full business-data report for one administrative dong."),
			mcp.WithNumber("districtId", mcp.Description("Dong id in the internal data service"), mcp.Required()),
		),
		mcpDistrictReport(deps),
	)

	s.AddTool(
		mcp.NewTool("add_trend_doc",
			mcp.WithDescription("Store a trend document into the retrieval corpus and queue it for embedding."),
			mcp.WithString("content", mcp.Description("Document text"), mcp.Required()),
			mcp.WithString("source", mcp.Description("Origin label, e.g. 'manual' (default 'mcp')")),
			mcp.WithString("area", mcp.Description("Area keyword the document is about")),
			mcp.WithString("url", mcp.Description("Source URL, if any")),
		),
		mcpAddTrendDoc(deps),
	)

	return s
}

func mcpTrendSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		area := req.GetString("area", "")

		args, err := json.Marshal(map[string]string{"query": query, "area": area})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to build arguments: %v", err)), nil
		}
		hits, err := deps.TrendSearch.Execute(ctx, args, tools.Hints{Question: query, AreaKeyword: area})
		if err != nil {
			return mcpError(fmt.Sprintf("trend search failed: %v", err)), nil
		}

		b, err := json.Marshal(hits)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDistrictReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		districtID := req.GetInt("districtId", 0)
		if districtID <= 0 {
			return mcpError("districtId is required"), nil
		}

		rep, err := deps.Aggregator.DistrictReport(ctx, districtID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load district report: %v", err)), nil
		}
		b, err := json.Marshal(rep)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddTrendDoc(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		source := req.GetString("source", "mcp")

		doc := storage.TrendDoc{
			ID:        uuid.New().String(),
			Source:    source,
			Area:      req.GetString("area", ""),
			URL:       req.GetString("url", ""),
			Content:   content,
			CreatedAt: time.Now().UTC(),
		}
		id, isNew, err := deps.Saver.SaveDoc(doc)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		if !isNew {
			return mcpText(fmt.Sprintf("Trend doc already stored as %s", id)), nil
		}
		return mcpText(fmt.Sprintf("Stored trend doc %s", id)), nil
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
