package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sahajakrushi/krushi-cli/internal/api"
	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
	"github.com/sahajakrushi/krushi-cli/internal/output"
	"github.com/sahajakrushi/krushi-cli/internal/stages"
)

// MCP Protocol types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPInitializeResult struct {
	ProtocolVersion string        `json:"protocolVersion"`
	ServerInfo      MCPServerInfo `json:"serverInfo"`
	Capabilities    interface{}   `json:"capabilities"`
}

// FarmerParams are the parameters for the list_reports and query_summary tools
type FarmerParams struct {
	Farmer string `json:"farmer"`
}

// ReportProgressParams are the parameters for the report_progress tool
type ReportProgressParams struct {
	ReportID string `json:"report_id"`
}

// mcpServer answers JSON-RPC requests read line by line.
type mcpServer struct {
	api        *api.KrushiAPI
	farmerCode string
	out        io.Writer
	log        zerolog.Logger
}

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI integration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			s := &mcpServer{
				api:        a.api,
				farmerCode: a.cfg.FarmerID,
				out:        a.out,
				log:        core.ComponentLogger(a.log, "mcp"),
			}
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// run serves requests from in until EOF.
func (s *mcpServer) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	// Increase buffer size for large messages
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			// Without an ID a response would carry id: null and confuse clients.
			s.log.Warn().Err(err).Msg("parse error")
			continue
		}

		s.handleRequest(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *mcpServer) handleRequest(ctx context.Context, req *MCPRequest) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "initialized", "notifications/initialized":
		// Notifications don't get responses
		return
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		// Notifications (no ID) are silently ignored per JSON-RPC
		if req.ID != nil {
			s.sendError(req.ID, -32601, "Method not found", req.Method)
		}
	}
}

func (s *mcpServer) handleInitialize(req *MCPRequest) {
	result := MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		ServerInfo: MCPServerInfo{
			Name:    "krushi-cli",
			Version: core.Version,
		},
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
	}
	s.sendResponse(req.ID, result)
}

func farmerSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"farmer": map[string]interface{}{
				"type":        "string",
				"description": "Farmer login code (defaults to the configured farmer)",
			},
		},
	}
}

func (s *mcpServer) handleToolsList(req *MCPRequest) {
	tools := []MCPToolInfo{
		{
			Name:        "list_reports",
			Description: "List a farmer's crop reports with status and progress.\n\nArgs:\n    farmer: Farmer login code (optional)\n\nReturns:\n    The reports and their completion percentage",
			InputSchema: farmerSchema(),
		},
		{
			Name:        "report_progress",
			Description: "Show the stages of a crop report: which are complete, which are locked, the latest photo of each and the next stage to work on.\n\nArgs:\n    report_id: Crop report ID",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"report_id": map[string]interface{}{
						"type":        "string",
						"description": "Crop report ID",
					},
				},
				"required": []string{"report_id"},
			},
		},
		{
			Name:        "query_summary",
			Description: "Count a farmer's advisory queries by status (total, open, answered, closed).\n\nArgs:\n    farmer: Farmer login code (optional)",
			InputSchema: farmerSchema(),
		},
	}

	s.sendResponse(req.ID, map[string]interface{}{"tools": tools})
}

func (s *mcpServer) handleToolsCall(ctx context.Context, req *MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	switch params.Name {
	case "list_reports":
		s.handleListReports(ctx, req.ID, params.Arguments)
	case "report_progress":
		s.handleReportProgress(ctx, req.ID, params.Arguments)
	case "query_summary":
		s.handleQuerySummary(ctx, req.ID, params.Arguments)
	default:
		s.sendError(req.ID, -32602, "Unknown tool", params.Name)
	}
}

func (s *mcpServer) farmer(args FarmerParams) string {
	if args.Farmer != "" {
		return args.Farmer
	}
	return s.farmerCode
}

func (s *mcpServer) handleListReports(ctx context.Context, id interface{}, argsJSON json.RawMessage) {
	var args FarmerParams
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}

	code := s.farmer(args)
	if code == "" {
		s.sendToolError(id, "No farmer given and none configured")
		return
	}
	farmer, err := s.api.FarmerByCode(ctx, code)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	reports, err := s.api.ListReports(ctx, farmer.ID)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}

	items := make([]map[string]interface{}, 0, len(reports))
	for _, r := range reports {
		items = append(items, map[string]interface{}{
			"id":           r.ID,
			"crop_name":    r.CropName,
			"status":       r.Status,
			"progress_pct": stages.Progress(r.Stages),
			"created_at":   core.FormatDate(r.CreatedAt),
		})
	}

	s.sendToolResult(id, map[string]interface{}{
		"farmer":        code,
		"reports_count": len(reports),
		"reports":       items,
	})
}

func (s *mcpServer) handleReportProgress(ctx context.Context, id interface{}, argsJSON json.RawMessage) {
	var args ReportProgressParams
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}
	if args.ReportID == "" {
		s.sendToolError(id, "report_id is required")
		return
	}

	report, err := s.api.FetchReport(ctx, domain.ID(args.ReportID))
	if err != nil {
		s.sendToolResult(id, map[string]interface{}{
			"error":     fmt.Sprintf("Failed to fetch report: %v", err),
			"report_id": args.ReportID,
			"retryable": api.IsRetryable(err),
		})
		return
	}

	s.sendToolResult(id, output.NewProgressDoc(stages.DeriveView(report)))
}

func (s *mcpServer) handleQuerySummary(ctx context.Context, id interface{}, argsJSON json.RawMessage) {
	var args FarmerParams
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}

	code := s.farmer(args)
	if code == "" {
		s.sendToolError(id, "No farmer given and none configured")
		return
	}
	summary, err := s.api.QuerySummary(ctx, code)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	s.sendToolResult(id, summary)
}

func (s *mcpServer) sendResponse(id interface{}, result interface{}) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	data, _ := json.Marshal(resp)
	fmt.Fprintln(s.out, string(data))
}

func (s *mcpServer) sendError(id interface{}, code int, message, data string) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	encoded, _ := json.Marshal(resp)
	fmt.Fprintln(s.out, string(encoded))
}

func (s *mcpServer) sendToolResult(id interface{}, result interface{}) {
	s.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": mustMarshal(result),
			},
		},
	})
}

func (s *mcpServer) sendToolError(id interface{}, message string) {
	s.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": message,
			},
		},
		"isError": true,
	})
}

func mustMarshal(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
