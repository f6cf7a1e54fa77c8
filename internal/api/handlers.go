package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Agentic-Oracle/internal/agent"
	xerrors "Agentic-Oracle/internal/errors"
	"Agentic-Oracle/internal/feed"
	"Agentic-Oracle/internal/pricefeed"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	maxBodyBytes     = 64 << 10
)

// handleQuery 处理聊天查询。未知意图返回 400，其余失败统一返回 500。
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.responder == nil {
		writeJSON(w, http.StatusServiceUnavailable, agent.ErrorReply(agent.MsgInternalError))
		return
	}

	var q agent.Query
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, agent.ErrorReply("请求体解析失败"))
		return
	}

	reply, err := s.responder.Respond(r.Context(), q)
	if err != nil {
		status := http.StatusInternalServerError
		switch xerrors.CodeOf(err) {
		case xerrors.CodeUnknownIntent, xerrors.CodeInvalidArgument:
			status = http.StatusBadRequest
		default:
			reply = agent.ErrorReply(agent.MsgInternalError)
		}
		writeJSON(w, status, reply)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.responder == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, ""))
		return
	}
	messages, err := s.responder.ListHistory(r.Context(), chi.URLParam(r, "userId"), parseLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

type agentView struct {
	Address    string `json:"address"`
	Registered bool   `json:"registered"`
	Stake      string `json:"stake"`
	Rewards    string `json:"rewards"`
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "未配置预言机合约"))
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "地址格式错误"))
		return
	}
	details, err := s.chain.AgentDetails(r.Context(), common.HexToAddress(raw))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentView{
		Address:    details.Address.Hex(),
		Registered: details.Registered,
		Stake:      details.Stake.String(),
		Rewards:    details.Rewards.String(),
	})
}

type latestPriceView struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

func (s *Server) handleLatestPrice(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "未配置预言机合约"))
		return
	}
	amount, err := s.chain.LatestPrice(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, latestPriceView{
		Symbol: s.symbol,
		Price:  pricefeed.FromFixedPoint(amount, s.decimals).String(),
		Amount: amount.String(),
	})
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		writeJSON(w, http.StatusOK, []feed.Update{})
		return
	}
	updates, err := s.prices.Recent(r.Context(), parseLimit(r))
	if errors.Is(err, feed.ErrUnsupported) {
		writeJSON(w, http.StatusOK, []feed.Update{})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if updates == nil {
		updates = []feed.Update{}
	}
	writeJSON(w, http.StatusOK, updates)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"responder": s.responder != nil,
		"chain":     s.chain != nil,
		"time":      time.Now().UTC().Format(time.RFC3339),
	})
}

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Code: string(xerrors.CodeOf(err)), Message: err.Error()}
	if coded, ok := xerrors.From(err); ok {
		body.Message = coded.Message()
		body.Details = coded.Metadata()
	}
	writeJSON(w, xerrors.HTTPStatusOf(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
