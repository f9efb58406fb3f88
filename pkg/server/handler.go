package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
)

const mcpProtocolVersion = "2024-11-05"

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Handler struct {
	Service *Service

	sessionMu sync.RWMutex
	sessions  map[string]*MCPSession
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s, sessions: make(map[string]*MCPSession)}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/mcp", h.MCPHandler)
	api := r.Group("/api")
	{
		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)
		api.GET("/research/:id/search", h.searchLearnings)
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, research.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSearchUnavailable), errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidRequest, key)
	}
	return n, nil
}

func (h *Handler) health(c *gin.Context) {
	if err := h.Service.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.CreateJob(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		abortWithError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		abortWithError(c, err)
		return
	}

	jobs, err := h.Service.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if jobs == nil {
		jobs = []database.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if logs == nil {
		logs = []database.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) searchLearnings(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}
	k, err := queryInt(c, "k")
	if err != nil {
		abortWithError(c, err)
		return
	}

	matches, err := h.Service.SearchLearnings(c.Request.Context(), id, c.Query("q"), k)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")

	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error: &MCPError{
				Code:    -32700,
				Message: "Parse error",
			},
		})
		return
	}

	// Handle initialize request
	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = uuid.New().String()
			c.Header("Mcp-Session-Id", sessionID)

			h.sessionMu.Lock()
			h.sessions[sessionID] = &MCPSession{
				ID:      sessionID,
				Created: time.Now().Unix(),
			}
			h.sessionMu.Unlock()
		}

		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": mcpProtocolVersion,
				"serverInfo": map[string]interface{}{
					"name":    "deep-research-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
			},
		})
		return
	}

	// Validate session for other requests
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Bad Request: No valid session ID provided",
			},
		})
		return
	}

	h.sessionMu.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionMu.RUnlock()

	if !exists {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32000,
				Message: "Invalid session ID",
			},
		})
		return
	}

	switch req.Method {
	case "tools/list":
		h.handleToolsList(c, req)
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		})
	default:
		h.sendError(c, req.ID, -32601, "Method not found")
	}
}

func (h *Handler) handleToolsList(c *gin.Context, req MCPRequest) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": []map[string]interface{}{
				{
					"name":        "start_research",
					"description": "Start a deep research job on a topic. Returns the job id to poll with get_research.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"query": map[string]interface{}{
								"type":        "string",
								"description": "The research topic.",
							},
							"depth": map[string]interface{}{
								"type":        "number",
								"description": "How many levels of follow-up research to run, from 1 up to the server limit (default 5).",
								"default":     DefaultDepth,
							},
							"breadth": map[string]interface{}{
								"type":        "number",
								"description": "How many search queries to run at the first level, from 1 up to the server limit (default 5).",
								"default":     DefaultBreadth,
							},
						},
						"required": []string{"query"},
					},
				},
				{
					"name":        "get_research",
					"description": "Get the status, progress and report of a research job.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id": map[string]interface{}{
								"type":        "string",
								"description": "The job id.",
							},
						},
						"required": []string{"id"},
					},
				},
				{
					"name":        "search_learnings",
					"description": "Semantic search over the learnings of a finished research job.",
					"inputSchema": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id": map[string]interface{}{
								"type":        "string",
								"description": "The job id.",
							},
							"query": map[string]interface{}{
								"type":        "string",
								"description": "The search query.",
							},
							"topK": map[string]interface{}{
								"type":        "number",
								"description": "The number of top results to return.",
								"default":     5,
							},
						},
						"required": []string{"id", "query"},
					},
				},
			},
		},
	})
}

type startResearchArgs struct {
	Query   string `json:"query"`
	Depth   int    `json:"depth"`
	Breadth int    `json:"breadth"`
}

type getResearchArgs struct {
	ID string `json:"id"`
}

type searchLearningsArgs struct {
	ID    string `json:"id"`
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, -32602, "Invalid params")
		return
	}

	ctx := c.Request.Context()
	switch params.Name {
	case "start_research":
		var args startResearchArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		job, err := h.Service.CreateJob(ctx, CreateJobRequest(args))
		if err != nil {
			h.sendToolError(c, req.ID, err)
			return
		}
		h.sendResult(c, req.ID, fmt.Sprintf("Started research job %s for %q (depth %d, breadth %d).", job.ID, job.Query, job.Depth, job.Breadth))

	case "get_research":
		var args getResearchArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		id, err := uuid.Parse(args.ID)
		if err != nil {
			h.sendError(c, req.ID, -32602, "Invalid job id")
			return
		}
		job, err := h.Service.GetJob(ctx, id)
		if err != nil {
			h.sendToolError(c, req.ID, err)
			return
		}
		h.sendResult(c, req.ID, describeJob(job))

	case "search_learnings":
		var args searchLearningsArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, -32602, "Invalid arguments")
			return
		}
		id, err := uuid.Parse(args.ID)
		if err != nil {
			h.sendError(c, req.ID, -32602, "Invalid job id")
			return
		}
		matches, err := h.Service.SearchLearnings(ctx, id, args.Query, args.TopK)
		if err != nil {
			h.sendToolError(c, req.ID, err)
			return
		}
		var b strings.Builder
		for i, m := range matches {
			fmt.Fprintf(&b, "%d. %s (score %.3f)\n", i+1, m.Learning, m.Score)
		}
		if b.Len() == 0 {
			b.WriteString("No matching learnings.")
		}
		h.sendResult(c, req.ID, b.String())

	default:
		h.sendError(c, req.ID, -32601, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

// describeJob renders a job for an MCP client: the report when finished,
// otherwise the status and progress.
func describeJob(job *database.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s: %s\nStatus: %s\n", job.ID, job.Query, job.Status)
	if p := job.Progress; p != nil {
		fmt.Fprintf(&b, "Progress: depth %d/%d, %d/%d queries completed\n",
			p.CurrentDepth, p.TotalDepth, p.CompletedQueries, p.TotalQueries)
	}
	if job.Error != nil {
		fmt.Fprintf(&b, "Error: %s\n", *job.Error)
	}
	if job.Report != nil {
		b.WriteString("\n")
		b.WriteString(*job.Report)
	}
	return b.String()
}

func (h *Handler) sendError(c *gin.Context, id interface{}, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: msg,
		},
	})
}

// sendToolError reports caller mistakes as invalid params and everything
// else as an internal error.
func (h *Handler) sendToolError(c *gin.Context, id interface{}, err error) {
	code := -32603
	if s := statusFor(err); s == http.StatusBadRequest || s == http.StatusNotFound {
		code = -32602
	}
	h.sendError(c, id, code, err.Error())
}

func (h *Handler) sendResult(c *gin.Context, id interface{}, text string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	})
}
