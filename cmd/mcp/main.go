package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// JSON-RPC structures
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var modeEnum = []string{"lecture", "practice", "lab", "any"}

var noProps = InputSchema{Type: "object", Properties: map[string]Property{}}

func noteIDSchema() InputSchema {
	return InputSchema{
		Type:       "object",
		Properties: map[string]Property{"note_id": {Type: "string", Description: "ID заметки"}},
		Required:   []string{"note_id"},
	}
}

var tools = []Tool{
	{
		Name:        "studentbot_schedule",
		Description: "Расписание группы за период: today, tomorrow, week или month. Текущая пара помечена current=true.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"period": {Type: "string", Description: "Период", Enum: []string{"today", "tomorrow", "week", "month"}},
			},
		},
	},
	{
		Name:        "studentbot_disciplines",
		Description: "Список дисциплин из расписания.",
		InputSchema: noProps,
	},
	{
		Name:        "studentbot_next_lesson",
		Description: "Дата следующей пары по дисциплине. Режим ограничивает тип пары.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"discipline": {Type: "string", Description: "Название дисциплины"},
				"mode":       {Type: "string", Description: "Тип пары", Enum: modeEnum},
			},
			Required: []string{"discipline"},
		},
	},
	{
		Name:        "studentbot_list_notes",
		Description: "Все заметки со сроком действия и статусом (active, due_soon, expired, stale).",
		InputSchema: noProps,
	},
	{
		Name:        "studentbot_expiring_notes",
		Description: "Заметки, срок которых истекает в ближайшие дни.",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"days": {Type: "string", Description: "Количество дней (по умолчанию из настроек)"}},
		},
	},
	{
		Name:        "studentbot_add_note",
		Description: "Добавить заметку к дисциплине. Срок действия до следующей пары выбранного типа.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"discipline": {Type: "string", Description: "Название дисциплины"},
				"mode":       {Type: "string", Description: "До какой пары действует", Enum: modeEnum},
				"text":       {Type: "string", Description: "Текст заметки"},
			},
			Required: []string{"discipline", "text"},
		},
	},
	{
		Name:        "studentbot_edit_note",
		Description: "Изменить текст или режим заметки.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"note_id": {Type: "string", Description: "ID заметки"},
				"text":    {Type: "string", Description: "Новый текст"},
				"mode":    {Type: "string", Description: "Новый режим", Enum: modeEnum},
			},
			Required: []string{"note_id"},
		},
	},
	{
		Name:        "studentbot_extend_note",
		Description: "Продлить заметку до следующей пары по дисциплине.",
		InputSchema: noteIDSchema(),
	},
	{
		Name:        "studentbot_delete_note",
		Description: "Удалить заметку.",
		InputSchema: noteIDSchema(),
	},
	{
		Name:        "studentbot_changes",
		Description: "Последние обнаруженные изменения расписания.",
		InputSchema: noProps,
	},
	{
		Name:        "studentbot_refresh",
		Description: "Загрузить расписание заново и вернуть найденные изменения.",
		InputSchema: noProps,
	},
	{
		Name:        "studentbot_settings",
		Description: "Текущие настройки: группа, уведомления, срок напоминаний, тема.",
		InputSchema: noProps,
	},
}

// MCP Server
type MCPServer struct {
	apiURL      string
	apiUsername string
	apiPassword string
	client      *http.Client
}

func NewMCPServer() *MCPServer {
	apiURL := os.Getenv("STUDENTBOT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	return &MCPServer{
		apiURL:      strings.TrimRight(apiURL, "/"),
		apiUsername: os.Getenv("STUDENTBOT_API_USERNAME"),
		apiPassword: os.Getenv("STUDENTBOT_API_PASSWORD"),
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *MCPServer) Run(in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "Error reading: %v\n", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing JSON: %v\n", err)
			continue
		}

		// Notifications carry no id and get no reply
		if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
			continue
		}

		responseBytes, _ := json.Marshal(s.handleRequest(req))
		fmt.Fprintln(out, string(responseBytes))
	}
}

func (s *MCPServer) handleRequest(req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		result := InitializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities:    map[string]interface{}{"tools": map[string]interface{}{}},
		}
		result.ServerInfo.Name = "studentbot-mcp"
		result.ServerInfo.Version = "1.0.0"
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
	case "initialized":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: nil}
	case "tools/list":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string][]Tool{"tools": tools}}
	case "tools/call":
		return s.handleToolsCall(req)
	default:
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "Method not found"},
		}
	}
}

func (s *MCPServer) handleToolsCall(req JSONRPCRequest) JSONRPCResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32602, Message: "Invalid params"},
		}
	}

	result, isError := s.callTool(params.Name, params.Arguments)

	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func (s *MCPServer) callTool(name string, args map[string]interface{}) (string, bool) {
	arg := func(key string) string {
		if v, ok := args[key]; ok && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return ""
	}
	noteID := url.PathEscape(arg("note_id"))

	switch name {
	case "studentbot_schedule":
		return s.apiRequest(http.MethodGet, "/api/schedule?"+query("period", arg("period")), nil)
	case "studentbot_disciplines":
		return s.apiRequest(http.MethodGet, "/api/disciplines", nil)
	case "studentbot_next_lesson":
		return s.apiRequest(http.MethodGet, "/api/next?"+query("discipline", arg("discipline"), "mode", arg("mode")), nil)
	case "studentbot_list_notes":
		return s.apiRequest(http.MethodGet, "/api/notes", nil)
	case "studentbot_expiring_notes":
		return s.apiRequest(http.MethodGet, "/api/notes/expiring?"+query("days", arg("days")), nil)
	case "studentbot_add_note":
		return s.apiRequest(http.MethodPost, "/api/notes", map[string]string{
			"discipline": arg("discipline"), "mode": arg("mode"), "text": arg("text"),
		})
	case "studentbot_edit_note":
		body := map[string]string{}
		for _, key := range []string{"text", "mode"} {
			if v := arg(key); v != "" {
				body[key] = v
			}
		}
		return s.apiRequest(http.MethodPut, "/api/notes/"+noteID, body)
	case "studentbot_extend_note":
		return s.apiRequest(http.MethodPost, "/api/notes/"+noteID+"/extend", nil)
	case "studentbot_delete_note":
		return s.apiRequest(http.MethodDelete, "/api/notes/"+noteID, nil)
	case "studentbot_changes":
		return s.apiRequest(http.MethodGet, "/api/changes", nil)
	case "studentbot_refresh":
		return s.apiRequest(http.MethodPost, "/api/refresh", nil)
	case "studentbot_settings":
		return s.apiRequest(http.MethodGet, "/api/settings", nil)
	default:
		return "Unknown tool: " + name, true
	}
}

// query builds a query string from key/value pairs, skipping empty values.
func query(pairs ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			v.Set(pairs[i], pairs[i+1])
		}
	}
	return v.Encode()
}

func (s *MCPServer) apiRequest(method, path string, body interface{}) (string, bool) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, s.apiURL+path, reqBody)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}

	if s.apiUsername != "" {
		req.SetBasicAuth(s.apiUsername, s.apiPassword)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var apiResp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return string(respBody), resp.StatusCode >= 400
	}
	if !apiResp.Success {
		return fmt.Sprintf("API Error: %s", apiResp.Error), true
	}
	if len(apiResp.Data) == 0 {
		return "OK", false
	}

	var prettyData bytes.Buffer
	if err := json.Indent(&prettyData, apiResp.Data, "", "  "); err != nil {
		return string(apiResp.Data), false
	}
	return prettyData.String(), false
}

func main() {
	NewMCPServer().Run(os.Stdin, os.Stdout)
}
