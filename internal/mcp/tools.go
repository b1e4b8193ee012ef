package mcp

import "github.com/mark3labs/mcp-go/mcp"

// ragQueryTool defines the rag_query MCP tool: an alternate transport over
// the same Retriever+ContextAssembler+LLM engine the HTTP API's
// /rag/query route runs, for agents that talk MCP over stdio instead of
// HTTP.
var ragQueryTool = mcp.NewTool("rag_query",
	mcp.WithDescription("Answer a question about an indexed repository using retrieval-augmented generation. Returns a grounded answer with numbered citations into the repository's source."),
	mcp.WithString("repo_id",
		mcp.Required(),
		mcp.Description("Repository identifier in owner/name form"),
	),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language question about the repository"),
	),
	mcp.WithNumber("top_k",
		mcp.Description("Maximum number of cited excerpts to ground the answer in (default 8)"),
	),
)

// ragIndexStatusTool defines the rag_index_status MCP tool.
var ragIndexStatusTool = mcp.NewTool("rag_index_status",
	mcp.WithDescription("Check the status of a repository indexing job started via the index API."),
	mcp.WithString("job_id",
		mcp.Required(),
		mcp.Description("Job ID returned when the index run was enqueued"),
	),
)
