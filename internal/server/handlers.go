package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/user/emrchat/internal/llm"
	"github.com/user/emrchat/internal/llmtypes"
	"github.com/user/emrchat/internal/logging"
	"github.com/user/emrchat/internal/orchestrator"
)

// ChatService answers a chat turn. *orchestrator.Orchestrator implements it.
type ChatService interface {
	Chat(ctx context.Context, history []llm.Message, userMessage string) (*orchestrator.Result, error)
}

// HistoryMessage is one entry of the conversation history on the wire
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Message             string           `json:"message"`
	ConversationHistory []HistoryMessage `json:"conversationHistory"`
}

// ChatResponse is the reply to POST /api/chat
type ChatResponse struct {
	Response            string           `json:"response"`
	ConversationHistory []HistoryMessage `json:"conversationHistory"`
}

// HealthResponse is the reply to GET /health
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  HealthServices `json:"services"`
}

// HealthServices reports component state
type HealthServices struct {
	Backend string `json:"backend"`
	Port    int    `json:"port"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

const chatFailureDetail = "Failed to process chat request"

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
		Services: HealthServices{
			Backend: "running",
			Port:    s.cfg.Port,
		},
	})
}

func (s *Server) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message must not be empty")
	}

	history := make([]llm.Message, 0, len(req.ConversationHistory))
	for i, m := range req.ConversationHistory {
		if m.Role != llmtypes.RoleUser && m.Role != llmtypes.RoleAssistant {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("conversationHistory[%d].role must be %q or %q", i, llmtypes.RoleUser, llmtypes.RoleAssistant))
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	s.logger.Info("Received chat request",
		logging.String("request_id", requestID(c)),
		logging.Int("history_messages", len(history)))

	result, err := s.chatService.Chat(c.Request().Context(), history, req.Message)
	if err != nil {
		s.logger.Error("chat request failed",
			logging.String("request_id", requestID(c)),
			logging.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, chatFailureDetail).SetInternal(err)
	}

	resp := ChatResponse{
		Response:            result.Response,
		ConversationHistory: make([]HistoryMessage, 0, len(result.History)),
	}
	for _, m := range result.History {
		resp.ConversationHistory = append(resp.ConversationHistory, HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return c.JSON(http.StatusOK, resp)
}

// errorHandler renders every error as {"detail": ...}
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	detail := http.StatusText(code)
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(code)
		}
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, errorBody{Detail: detail})
	}
	if writeErr != nil {
		s.logger.Warn("failed to write error response", logging.Error(writeErr))
	}
}
