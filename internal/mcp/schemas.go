package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func pathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func limitProperty(defaultValue, maximum int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of results to return",
		"default":     defaultValue,
		"minimum":     1,
		"maximum":     maximum,
	}
}

func depthProperty(defaultValue int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum traversal depth in hops",
		"default":     defaultValue,
		"minimum":     1,
	}
}

// indexDirectoryTool returns the tool definition for index_directory
func indexDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_directory",
		Description: "Index all supported source files under a directory, skipping unchanged files",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("Directory to index, relative to the project root (default: whole project)"),
				"recursive": map[string]interface{}{
					"type":        "boolean",
					"description": "Descend into subdirectories",
					"default":     true,
				},
			},
		},
	}
}

// indexFileTool returns the tool definition for index_file
func indexFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_file",
		Description: "Index or reindex a single source file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("File path, relative to the project root"),
			},
			Required: []string{"path"},
		},
	}
}

// removeFileTool returns the tool definition for remove_file
func removeFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_file",
		Description: "Remove a file's units, embeddings, and graph edges from the index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty("File path, relative to the project root"),
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed code with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (weighted fusion), semantic (vector only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "semantic", "keyword"},
					"default":     "hybrid",
				},
				"limit": limitProperty(10, 100),
				"semantic_weight": map[string]interface{}{
					"type":        "number",
					"description": "Hybrid fusion weight for the semantic signal (default 0.6; the pair must sum to 1)",
					"minimum":     0.0,
				},
				"keyword_weight": map[string]interface{}{
					"type":        "number",
					"description": "Hybrid fusion weight for the keyword signal (default 0.4; the pair must sum to 1)",
					"minimum":     0.0,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow search",
					"properties": map[string]interface{}{
						"languages": map[string]interface{}{
							"type":        "array",
							"description": "Filter by source language",
							"items": map[string]interface{}{
								"type": "string",
								"enum": []string{"go", "python", "javascript", "typescript"},
							},
						},
						"kinds": map[string]interface{}{
							"type":        "array",
							"description": "Filter by unit kind",
							"items": map[string]interface{}{
								"type": "string",
								"enum": []string{"function", "class"},
							},
						},
						"path_pattern": map[string]interface{}{
							"type":        "string",
							"description": "Glob pattern for file paths (e.g., 'internal/*')",
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// findCallersTool returns the tool definition for find_callers
func findCallersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_callers",
		Description: "Find functions that call the named function, directly or transitively",
		InputSchema: callQuerySchema("Function name (simple or qualified) whose callers to find"),
	}
}

// findCalleesTool returns the tool definition for find_callees
func findCalleesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_callees",
		Description: "Find functions called by the named function, directly or transitively",
		InputSchema: callQuerySchema("Function name (simple or qualified) whose callees to find"),
	}
}

func callQuerySchema(description string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"function": pathProperty(description),
			"include_indirect": map[string]interface{}{
				"type":        "boolean",
				"description": "Include transitive results beyond one hop",
				"default":     false,
			},
			"max_depth": depthProperty(5),
			"limit":     limitProperty(50, 500),
		},
		Required: []string{"function"},
	}
}

// getCallChainTool returns the tool definition for get_call_chain
func getCallChainTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_call_chain",
		Description: "Enumerate call paths from one function to another, shortest first, with the call sites realizing each hop",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"from": pathProperty("Source function name"),
				"to":   pathProperty("Target function name"),
				"max_paths": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of distinct paths to return",
					"default":     5,
					"minimum":     1,
				},
				"max_depth": depthProperty(5),
			},
			Required: []string{"from", "to"},
		},
	}
}

// findImplementationsTool returns the tool definition for find_implementations
func findImplementationsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_implementations",
		Description: "Find types implementing the named interface or abstract base",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"interface": pathProperty("Interface or abstract base name"),
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one language",
					"enum":        []string{"go", "python", "javascript", "typescript"},
				},
				"limit": limitProperty(50, 500),
			},
			Required: []string{"interface"},
		},
	}
}

// getDependenciesTool returns the tool definition for get_dependencies
func getDependenciesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_dependencies",
		Description: "List modules the named file imports, optionally transitively",
		InputSchema: dependencyQuerySchema("File whose imports to list, relative to the project root"),
	}
}

// getDependentsTool returns the tool definition for get_dependents
func getDependentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_dependents",
		Description: "List files that import the named file, optionally transitively",
		InputSchema: dependencyQuerySchema("File whose importers to list, relative to the project root"),
	}
}

func dependencyQuerySchema(description string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"file": pathProperty(description),
			"transitive": map[string]interface{}{
				"type":        "boolean",
				"description": "Follow local import edges beyond one hop",
				"default":     false,
			},
			"max_depth": depthProperty(10),
			"limit":     limitProperty(100, 1000),
		},
		Required: []string{"file"},
	}
}

// findDependencyPathTool returns the tool definition for find_dependency_path
func findDependencyPathTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_dependency_path",
		Description: "Find the shortest import chain from one file to another",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source":    pathProperty("Importing file, relative to the project root"),
				"target":    pathProperty("Imported file, relative to the project root"),
				"max_depth": depthProperty(10),
			},
			Required: []string{"source", "target"},
		},
	}
}

// getDependencyStatsTool returns the tool definition for get_dependency_stats
func getDependencyStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_dependency_stats",
		Description: "Report dependency graph statistics: file and edge counts, circular dependencies, most imported files",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"top": map[string]interface{}{
					"type":        "integer",
					"description": "How many most-imported files to rank",
					"default":     10,
					"minimum":     1,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query indexing status and statistics for the project",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
