package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sahajakrushi/krushi-cli/internal/api"
	"github.com/sahajakrushi/krushi-cli/internal/cache"
	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
	"github.com/sahajakrushi/krushi-cli/internal/output"
)

func newTestMCPServer(t *testing.T) (*mcpServer, *api.FakeServer, *bytes.Buffer) {
	t.Helper()
	server := api.NewFakeServer(nil)
	t.Cleanup(server.Close)

	store := cache.NewStore(cache.NewMemoryBackend(), core.CacheTTL, nil, zerolog.Nop())
	client := api.NewCachingClient(api.NewClient(server.URL(), "", 2*time.Second, zerolog.Nop()), store, zerolog.Nop())

	var out bytes.Buffer
	return &mcpServer{
		api:        api.NewKrushiAPI(client, nil, zerolog.Nop()),
		farmerCode: "KR-0042",
		out:        &out,
		log:        zerolog.Nop(),
	}, server, &out
}

// responses decodes one JSON-RPC response per output line.
func responses(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var resps []map[string]interface{}
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var resp map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response line %q: %v", scanner.Text(), err)
		}
		resps = append(resps, resp)
	}
	return resps
}

// toolText extracts the text content of a tools/call result.
func toolText(t *testing.T, resp map[string]interface{}) (string, bool) {
	t.Helper()
	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no result: %v", resp)
	}
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	isErr, _ := result["isError"].(bool)
	return text, isErr
}

func TestMCPRequestParsing(t *testing.T) {
	// Test initialize request
	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	var req MCPRequest
	if err := json.Unmarshal([]byte(initReq), &req); err != nil {
		t.Fatalf("Failed to parse initialize request: %v", err)
	}
	if req.Method != "initialize" {
		t.Errorf("Expected method 'initialize', got %s", req.Method)
	}

	// Test tools/call request
	callReq := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"report_progress","arguments":{"report_id":"7"}}}`
	if err := json.Unmarshal([]byte(callReq), &req); err != nil {
		t.Fatalf("Failed to parse tools/call request: %v", err)
	}
	if req.Method != "tools/call" {
		t.Errorf("Expected method 'tools/call', got %s", req.Method)
	}
}

func TestMCPResponseFormat(t *testing.T) {
	errResp := MCPResponse{
		JSONRPC: "2.0",
		ID:      2,
		Error: &MCPError{
			Code:    -32600,
			Message: "Invalid Request",
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		t.Fatalf("Failed to marshal error response: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Failed to parse error response: %v", err)
	}
	if _, ok := parsed["result"]; ok {
		t.Error("Expected no result in error response")
	}
	errorObj := parsed["error"].(map[string]interface{})
	if errorObj["code"].(float64) != -32600 {
		t.Errorf("Expected error code -32600, got %v", errorObj["code"])
	}
}

func TestMCPSession(t *testing.T) {
	s, _, out := newTestMCPServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","method":"unknown/notification"}`,
	}, "\n")
	if err := s.run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("run: %v", err)
	}

	resps := responses(t, out)
	if len(resps) != 3 {
		t.Fatalf("Expected 3 responses, got %d", len(resps))
	}

	info := resps[0]["result"].(map[string]interface{})["serverInfo"].(map[string]interface{})
	if info["name"] != "krushi-cli" {
		t.Errorf("Expected server name 'krushi-cli', got %v", info["name"])
	}

	tools := resps[1]["result"].(map[string]interface{})["tools"].([]interface{})
	var names []string
	for _, tool := range tools {
		names = append(names, tool.(map[string]interface{})["name"].(string))
	}
	if strings.Join(names, ",") != "list_reports,report_progress,query_summary" {
		t.Errorf("Unexpected tools: %v", names)
	}

	if resps[2]["error"].(map[string]interface{})["code"].(float64) != -32601 {
		t.Errorf("Expected method-not-found error, got %v", resps[2])
	}
}

func TestMCPReportProgress(t *testing.T) {
	s, server, out := newTestMCPServer(t)
	report := server.NewReport("42", "Wheat")
	server.AddPhoto(report.Stages[0].ID)
	server.AddPhoto(report.Stages[1].ID)

	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"report_progress","arguments":{"report_id":"` + report.ID.String() + `"}}`),
	}
	s.handleRequest(context.Background(), req)

	text, isErr := toolText(t, responses(t, out)[0])
	if isErr {
		t.Fatalf("unexpected tool error: %s", text)
	}
	var doc output.ProgressDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatalf("invalid progress JSON: %v", err)
	}
	if doc.ProgressPct != 40 {
		t.Errorf("Expected 40%% progress, got %d", doc.ProgressPct)
	}
	var locked []int
	for _, st := range doc.Stages {
		if st.Locked {
			locked = append(locked, st.Order)
		}
	}
	if len(locked) != 2 || locked[0] != 4 || locked[1] != 5 {
		t.Errorf("Expected stages 4 and 5 locked, got %v", locked)
	}
}

func TestMCPReportProgressMissing(t *testing.T) {
	s, _, out := newTestMCPServer(t)

	s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"report_progress","arguments":{"report_id":"nope"}}`),
	})
	s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  json.RawMessage(`{"name":"report_progress"}`),
	})

	resps := responses(t, out)
	text, _ := toolText(t, resps[0])
	if !strings.Contains(text, "Failed to fetch report") || !strings.Contains(text, `"retryable": false`) {
		t.Errorf("unexpected result: %s", text)
	}
	text, isErr := toolText(t, resps[1])
	if !isErr || text != "report_id is required" {
		t.Errorf("expected argument error, got %q", text)
	}
}

func TestMCPListReportsAndSummary(t *testing.T) {
	s, server, out := newTestMCPServer(t)
	server.SeedFarmer(domain.Farmer{ID: "42", FarmerCode: "KR-0042"})
	server.NewReport("42", "Wheat")
	server.SeedQuery("KR-0042", domain.Query{ID: "1", Status: domain.QueryOpen, CreatedAt: time.Now()})
	server.SeedQuery("KR-0042", domain.Query{ID: "2", Status: domain.QueryClosed, CreatedAt: time.Now()})

	ctx := context.Background()
	s.handleRequest(ctx, &MCPRequest{ID: 1, Method: "tools/call", Params: json.RawMessage(`{"name":"list_reports","arguments":{}}`)})
	s.handleRequest(ctx, &MCPRequest{ID: 2, Method: "tools/call", Params: json.RawMessage(`{"name":"query_summary"}`)})
	s.handleRequest(ctx, &MCPRequest{ID: 3, Method: "tools/call", Params: json.RawMessage(`{"name":"list_reports","arguments":{"farmer":"KR-9999"}}`)})
	s.handleRequest(ctx, &MCPRequest{ID: 4, Method: "tools/call", Params: json.RawMessage(`{"name":"fetch_day"}`)})

	resps := responses(t, out)
	if len(resps) != 4 {
		t.Fatalf("Expected 4 responses, got %d", len(resps))
	}

	text, _ := toolText(t, resps[0])
	var listed struct {
		Count   int `json:"reports_count"`
		Reports []struct {
			CropName string `json:"crop_name"`
		} `json:"reports"`
	}
	if err := json.Unmarshal([]byte(text), &listed); err != nil {
		t.Fatalf("invalid list JSON: %v", err)
	}
	if listed.Count != 1 || listed.Reports[0].CropName != "Wheat" {
		t.Errorf("unexpected list result: %s", text)
	}

	text, _ = toolText(t, resps[1])
	var summary domain.QuerySummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		t.Fatalf("invalid summary JSON: %v", err)
	}
	if summary != (domain.QuerySummary{Total: 2, Open: 1, Closed: 1}) {
		t.Errorf("unexpected summary: %+v", summary)
	}

	if _, isErr := toolText(t, resps[2]); !isErr {
		t.Error("Expected tool error for unknown farmer")
	}
	if resps[3]["error"] == nil {
		t.Error("Expected JSON-RPC error for unknown tool")
	}
}
