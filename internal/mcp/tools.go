package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"codelens/internal/callgraph"
	"codelens/internal/depgraph"
	"codelens/internal/indexer"
	"codelens/internal/searcher"
	"codelens/internal/storage"
	"codelens/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// toolError maps engine errors to MCP error codes
func toolError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, indexer.ErrIndexInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, err.Error(), nil)
	default:
		return newMCPError(ErrorCodeInternalError, err.Error(), nil)
	}
}

func requestArgs(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		if request.Params.Arguments == nil {
			return map[string]interface{}{}, nil
		}
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// handleIndexDirectory handles the index_directory tool invocation
func (s *Server) handleIndexDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	path := getStringDefault(args, "path", ".")
	recursive := getBoolDefault(args, "recursive", true)

	summary, err := s.indexer.IndexDirectory(ctx, path, recursive)
	if err != nil {
		return nil, toolError(err)
	}

	response := map[string]interface{}{
		"files_indexed":   summary.FilesIndexed,
		"files_unchanged": summary.FilesUnchanged,
		"files_skipped":   summary.FilesSkipped,
		"files_failed":    summary.FilesFailed,
		"units_added":     summary.UnitsAdded,
		"units_removed":   summary.UnitsRemoved,
		"duration_ms":     summary.Duration.Milliseconds(),
	}
	if len(summary.Errors) > 0 {
		msgs := summary.Errors
		if len(msgs) > 5 {
			response["error_count"] = len(msgs)
			msgs = msgs[:5]
		}
		response["errors"] = msgs
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexFile handles the index_file tool invocation
func (s *Server) handleIndexFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}

	result, err := s.indexer.IndexFile(ctx, path)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResultText(formatJSON(fileResultMap(result))), nil
}

// handleRemoveFile handles the remove_file tool invocation
func (s *Server) handleRemoveFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}

	result, err := s.indexer.RemoveFile(ctx, path)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"file_path":     result.FilePath,
		"units_removed": result.UnitsRemoved,
	})), nil
}

func fileResultMap(result *indexer.FileResult) map[string]interface{} {
	m := map[string]interface{}{
		"file_path": result.FilePath,
		"status":    string(result.Status),
	}
	if result.Reason != "" {
		m["reason"] = result.Reason
	}
	if result.Status == indexer.StatusIndexed {
		m["units_added"] = result.UnitsAdded
		m["units_removed"] = result.UnitsRemoved
	}
	return m
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	query, err := requireString(args, "query")
	if err != nil {
		return nil, err
	}

	req := searcher.Request{
		Query:          query,
		Mode:           searcher.Mode(getStringDefault(args, "mode", string(searcher.ModeHybrid))),
		Limit:          getIntDefault(args, "limit", 0),
		SemanticWeight: getFloatDefault(args, "semantic_weight", 0),
		KeywordWeight:  getFloatDefault(args, "keyword_weight", 0),
		Filters:        parseFilters(args),
		UseCache:       true,
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, toolError(err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		entry := map[string]interface{}{
			"rank":           r.Rank,
			"score":          r.Score,
			"confidence":     string(r.Confidence),
			"name":           r.Unit.Name,
			"qualified_name": r.Unit.QualifiedName,
			"kind":           string(r.Unit.Kind),
			"file_path":      r.Unit.FilePath,
			"start_line":     r.Unit.StartLine,
			"end_line":       r.Unit.EndLine,
			"language":       string(r.Unit.Language),
			"signature":      r.Unit.Signature,
		}
		if resp.Mode == searcher.ModeHybrid {
			entry["semantic_score"] = r.SemanticScore
			entry["keyword_score"] = r.KeywordScore
		}
		if r.MatchedKeywords != nil {
			entry["matched_keywords"] = r.MatchedKeywords
		}
		results[i] = entry
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"mode":          string(resp.Mode),
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	})), nil
}

func parseFilters(args map[string]interface{}) *storage.SearchFilters {
	raw, ok := args["filters"].(map[string]interface{})
	if !ok {
		return nil
	}
	filters := &storage.SearchFilters{
		Languages:   stringList(raw, "languages"),
		Kinds:       stringList(raw, "kinds"),
		PathPattern: getStringDefault(raw, "path_pattern", ""),
	}
	if len(filters.Languages) == 0 && len(filters.Kinds) == 0 && filters.PathPattern == "" {
		return nil
	}
	return filters
}

func stringList(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// handleFindCallers handles the find_callers tool invocation
func (s *Server) handleFindCallers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, indirect, maxDepth, limit, err := callQueryParams(request)
	if err != nil {
		return nil, err
	}
	result, err := s.callGraph.FindCallers(name, indirect, maxDepth, limit)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"direct":      callEntries(result.Direct),
		"indirect":    callEntries(result.Indirect),
		"total_count": result.TotalCount,
	})), nil
}

// handleFindCallees handles the find_callees tool invocation
func (s *Server) handleFindCallees(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, indirect, maxDepth, limit, err := callQueryParams(request)
	if err != nil {
		return nil, err
	}
	result, err := s.callGraph.FindCallees(name, indirect, maxDepth, limit)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"direct":      callEntries(result.Direct),
		"indirect":    callEntries(result.Indirect),
		"total_count": result.TotalCount,
	})), nil
}

func callQueryParams(request mcp.CallToolRequest) (name string, indirect bool, maxDepth, limit int, err error) {
	args, err := requestArgs(request)
	if err != nil {
		return "", false, 0, 0, err
	}
	name, err = requireString(args, "function")
	if err != nil {
		return "", false, 0, 0, err
	}
	indirect = getBoolDefault(args, "include_indirect", false)
	maxDepth = getIntDefault(args, "max_depth", 0)
	limit = getIntDefault(args, "limit", 0)
	return name, indirect, maxDepth, limit, nil
}

func callEntries(entries []callgraph.CallEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		m := map[string]interface{}{
			"qualified_name": e.QualifiedName,
			"depth":          e.Depth,
			"call_file":      e.Site.CallerFile,
			"call_line":      e.Site.CallerLine,
		}
		if e.Node != nil {
			m["file_path"] = e.Node.FilePath
			m["language"] = string(e.Node.Language)
			m["start_line"] = e.Node.StartLine
		} else {
			m["resolved"] = false
		}
		out[i] = m
	}
	return out
}

// handleGetCallChain handles the get_call_chain tool invocation
func (s *Server) handleGetCallChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	from, err := requireString(args, "from")
	if err != nil {
		return nil, err
	}
	to, err := requireString(args, "to")
	if err != nil {
		return nil, err
	}
	maxPaths := getIntDefault(args, "max_paths", 0)
	maxDepth := getIntDefault(args, "max_depth", 0)

	chains, err := s.callGraph.GetCallChain(from, to, maxPaths, maxDepth)
	if err != nil {
		return nil, toolError(err)
	}

	paths := make([]map[string]interface{}, len(chains))
	for i, chain := range chains {
		sites := make([]map[string]interface{}, len(chain.CallSites))
		for j, site := range chain.CallSites {
			sites[j] = map[string]interface{}{
				"caller": site.CallerQualifiedName,
				"callee": site.CalleeName,
				"file":   site.CallerFile,
				"line":   site.CallerLine,
			}
		}
		paths[i] = map[string]interface{}{
			"path":       chain.Path,
			"call_sites": sites,
		}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"paths":       paths,
		"total_count": len(paths),
	})), nil
}

// handleFindImplementations handles the find_implementations tool invocation
func (s *Server) handleFindImplementations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	iface, err := requireString(args, "interface")
	if err != nil {
		return nil, err
	}
	language := types.Language(getStringDefault(args, "language", ""))
	limit := getIntDefault(args, "limit", 0)

	impls, err := s.callGraph.FindImplementations(iface, language, limit)
	if err != nil {
		return nil, toolError(err)
	}

	results := make([]map[string]interface{}, len(impls))
	for i, impl := range impls {
		results[i] = map[string]interface{}{
			"type_name": impl.TypeName,
			"interface": impl.InterfaceName,
			"file_path": impl.FilePath,
			"language":  string(impl.Language),
			"methods":   impl.Methods,
		}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"implementations": results,
		"total_count":     len(results),
	})), nil
}

// handleGetDependencies handles the get_dependencies tool invocation
func (s *Server) handleGetDependencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, transitive, maxDepth, limit, err := dependencyQueryParams(request)
	if err != nil {
		return nil, err
	}
	deps, err := s.depGraph.GetDependencies(file, transitive, maxDepth, limit)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"dependencies": dependencyEntries(deps),
		"total_count":  len(deps),
	})), nil
}

// handleGetDependents handles the get_dependents tool invocation
func (s *Server) handleGetDependents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, transitive, maxDepth, limit, err := dependencyQueryParams(request)
	if err != nil {
		return nil, err
	}
	deps, err := s.depGraph.GetDependents(file, transitive, maxDepth, limit)
	if err != nil {
		return nil, toolError(err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"dependents":  dependencyEntries(deps),
		"total_count": len(deps),
	})), nil
}

func dependencyQueryParams(request mcp.CallToolRequest) (file string, transitive bool, maxDepth, limit int, err error) {
	args, err := requestArgs(request)
	if err != nil {
		return "", false, 0, 0, err
	}
	file, err = requireString(args, "file")
	if err != nil {
		return "", false, 0, 0, err
	}
	transitive = getBoolDefault(args, "transitive", false)
	maxDepth = getIntDefault(args, "max_depth", 0)
	limit = getIntDefault(args, "limit", 0)
	return file, transitive, maxDepth, limit, nil
}

func dependencyEntries(deps []depgraph.Dependency) []map[string]interface{} {
	out := make([]map[string]interface{}, len(deps))
	for i, d := range deps {
		m := map[string]interface{}{
			"file":        d.FilePath,
			"depth":       d.Depth,
			"import_kind": string(d.ImportKind),
		}
		if len(d.ImportedNames) > 0 {
			m["imported_names"] = d.ImportedNames
		}
		out[i] = m
	}
	return out
}

// handleFindDependencyPath handles the find_dependency_path tool invocation
func (s *Server) handleFindDependencyPath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	source, err := requireString(args, "source")
	if err != nil {
		return nil, err
	}
	target, err := requireString(args, "target")
	if err != nil {
		return nil, err
	}
	maxDepth := getIntDefault(args, "max_depth", 0)

	path, err := s.depGraph.FindPath(source, target, maxDepth)
	if err != nil {
		return nil, toolError(err)
	}

	response := map[string]interface{}{
		"found": len(path) > 0,
	}
	if len(path) > 0 {
		response["path"] = path
		response["hops"] = len(path) - 1
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDependencyStats handles the get_dependency_stats tool invocation
func (s *Server) handleGetDependencyStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := requestArgs(request)
	if err != nil {
		return nil, err
	}
	top := getIntDefault(args, "top", 10)

	stats := s.depGraph.GetStats(top)

	ranked := make([]map[string]interface{}, len(stats.MostImportedFiles))
	for i, r := range stats.MostImportedFiles {
		ranked[i] = map[string]interface{}{
			"file":            r.FilePath,
			"dependent_count": r.DependentCount,
		}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"total_files":           stats.TotalFiles,
		"total_edges":           stats.TotalEdges,
		"circular_dependencies": stats.CircularDependencies,
		"most_imported_files":   ranked,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	units, err := s.store.CountUnits(ctx, s.project.ID)
	if err != nil {
		return nil, toolError(err)
	}
	embeddings, err := s.store.CountEmbeddings(ctx, s.project.ID)
	if err != nil {
		return nil, toolError(err)
	}
	records, err := s.store.ListFileRecords(ctx, s.project.ID)
	if err != nil {
		return nil, toolError(err)
	}

	response := map[string]interface{}{
		"project": map[string]interface{}{
			"name":      s.project.Name,
			"root_path": s.project.RootPath,
		},
		"statistics": map[string]interface{}{
			"files_count":      len(records),
			"units_count":      units,
			"embeddings_count": embeddings,
			"call_nodes":       s.callGraph.NodeCount(),
			"call_edges":       s.callGraph.EdgeCount(),
			"dependency_edges": s.depGraph.EdgeCount(),
		},
		"embedding": map[string]interface{}{
			"provider": s.pool.Provider(),
			"model":    s.pool.Model(),
		},
		"storage": map[string]interface{}{
			"build_mode":       storage.BuildMode,
			"vector_extension": storage.VectorExtensionAvailable,
		},
		"watching": s.watcher != nil,
	}
	if !s.project.LastIndexedAt.IsZero() {
		response["last_indexed_at"] = s.project.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
