package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/user/chatpilot/internal/pipeline"
	"github.com/user/chatpilot/internal/types"
)

// ===== sync =====

func (s *Server) handleSyncContacts(c *gin.Context) {
	n, err := s.orch.SyncContacts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
}

type limitRequest struct {
	Limit int `json:"limit"`
}

// bindLimit reads an optional {"limit": n} body.
func bindLimit(c *gin.Context, def int) (int, bool) {
	var req limitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid JSON")
			return 0, false
		}
	}
	if req.Limit <= 0 {
		return def, true
	}
	return req.Limit, true
}

func (s *Server) handleSyncMessages(c *gin.Context) {
	limit, ok := bindLimit(c, 100)
	if !ok {
		return
	}
	n, err := s.orch.Ingest(c.Request.Context(), c.Param("chatJid"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": n})
}

func (s *Server) handleAutoPipeline(c *gin.Context) {
	limit, ok := bindLimit(c, 10)
	if !ok {
		return
	}
	items, err := s.orch.RunBatch(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// ===== contacts =====

func (s *Server) handleListContacts(c *gin.Context) {
	filter := types.ContactFilter{
		CustomerType:  c.Query("customer_type"),
		InterestLevel: c.Query("interest_level"),
		Limit:         queryInt(c, "limit", 50),
	}
	if tags := c.Query("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	contacts, err := s.store.ListContacts(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	if contacts == nil {
		contacts = []*types.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

func (s *Server) handleGetContact(c *gin.Context) {
	contact, err := s.store.GetContact(c.Request.Context(), c.Param("jid"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// contactUpdate is the PUT body; absent fields keep their stored value.
type contactUpdate struct {
	PhoneNumber             *string        `json:"phone_number"`
	Name                    *string        `json:"name"`
	CustomerType            *string        `json:"customer_type" binding:"omitempty,oneof=lead prospect active_customer inactive vip"`
	InterestLevel           *string        `json:"interest_level" binding:"omitempty,oneof=high medium low"`
	BuyingStage             *string        `json:"buying_stage"`
	Tags                    []string       `json:"tags"`
	LifetimeValuePrediction *string        `json:"lifetime_value_prediction"`
	ChurnRisk               *string        `json:"churn_risk"`
	Metadata                map[string]any `json:"metadata"`
}

func (u *contactUpdate) apply(c *types.Contact) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.PhoneNumber, u.PhoneNumber)
	set(&c.Name, u.Name)
	set(&c.CustomerType, u.CustomerType)
	set(&c.InterestLevel, u.InterestLevel)
	set(&c.BuyingStage, u.BuyingStage)
	set(&c.LifetimeValuePrediction, u.LifetimeValuePrediction)
	set(&c.ChurnRisk, u.ChurnRisk)
	if u.Tags != nil {
		c.Tags = u.Tags
	}
	if u.Metadata != nil {
		c.Metadata = u.Metadata
	}
}

func (s *Server) handleUpdateContact(c *gin.Context) {
	var req contactUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	jid := c.Param("jid")
	contact, err := s.store.GetContact(ctx, jid)
	if errors.Is(err, types.ErrNotFound) {
		contact, err = &types.Contact{JID: jid}, nil
	}
	if err != nil {
		fail(c, err)
		return
	}

	req.apply(contact)
	saved, err := s.store.UpsertContact(ctx, contact)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// ===== messages =====

func (s *Server) handleGetMessages(c *gin.Context) {
	msgs, err := s.store.GetMessages(c.Request.Context(), c.Param("chatJid"), queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []*types.MessageRecord{}
	}
	c.JSON(http.StatusOK, msgs)
}

type searchRequest struct {
	Query   string `json:"query"`
	Filters struct {
		ChatJID string     `json:"chat_jid"`
		FromMe  *bool      `json:"from_me"`
		After   *time.Time `json:"after"`
		Before  *time.Time `json:"before"`
		Limit   int        `json:"limit"`
	} `json:"filters"`
}

func (s *Server) handleSearchMessages(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON")
		return
	}

	filter := types.MessageFilter{
		ChatID:   req.Filters.ChatJID,
		FromSelf: req.Filters.FromMe,
		Limit:    req.Filters.Limit,
	}
	if req.Filters.After != nil {
		filter.After = *req.Filters.After
	}
	if req.Filters.Before != nil {
		filter.Before = *req.Filters.Before
	}

	msgs, err := s.store.SearchMessages(c.Request.Context(), req.Query, filter)
	if err != nil {
		fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []*types.MessageRecord{}
	}
	c.JSON(http.StatusOK, msgs)
}

// ===== ai =====

func (s *Server) handleAnalyze(c *gin.Context) {
	res, err := s.orch.Analyze(c.Request.Context(), c.Param("contactJid"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSuggest(c *gin.Context) {
	res, err := s.orch.Suggest(c.Request.Context(), c.Param("contactJid"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type sendHumanizedRequest struct {
	RecipientJID   string   `json:"recipient_jid" binding:"required"`
	Intent         string   `json:"intent" binding:"required"`
	SpecificPoints []string `json:"specific_points"`
}

// handleSendHumanized queues the send on the recipient's dispatch lane and
// waits for it. A client that disconnects early does not cancel the send.
func (s *Server) handleSendHumanized(c *gin.Context) {
	var req sendHumanizedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "recipient_jid and intent are required")
		return
	}

	job, err := s.queue.Submit(req.RecipientJID, func(ctx context.Context) (any, error) {
		return s.orch.SendHumanized(ctx, req.RecipientJID, req.Intent, req.SpecificPoints)
	})
	if err != nil {
		fail(c, err)
		return
	}
	out, err := job.Wait(c.Request.Context())
	if err != nil {
		res, _ := out.(*pipeline.SendResult)
		if res != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "chunks_sent": res.ChunksSent})
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type entitiesRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) handleEntities(c *gin.Context) {
	var req entitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message is required")
		return
	}
	ents, err := s.insight.ExtractEntities(c.Request.Context(), req.Message)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ents)
}

// ===== dashboard =====

func (s *Server) handleMetrics(c *gin.Context) {
	m, err := s.store.DashboardMetrics(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handlePipeline(c *gin.Context) {
	entries, err := s.store.GetPipeline(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []*types.PipelineEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleInteractions(c *gin.Context) {
	logs, err := s.store.GetInteractions(c.Request.Context(), c.Param("contactJid"), queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	if logs == nil {
		logs = []*types.InteractionLog{}
	}
	c.JSON(http.StatusOK, logs)
}

// ===== transport =====

func (s *Server) handleListChats(c *gin.Context) {
	chats, err := s.transport.ListChats(c.Request.Context(), queryInt(c, "limit", 20), c.DefaultQuery("sort_by", "last_active"))
	if err != nil {
		fail(c, err)
		return
	}
	if chats == nil {
		chats = []types.ChatHandle{}
	}
	c.JSON(http.StatusOK, chats)
}

type directSendRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// handleDirectSend sends text as-is, without generation or pacing. It shares
// the recipient's dispatch lane so it never lands inside a humanized delivery.
func (s *Server) handleDirectSend(c *gin.Context) {
	var req directSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "recipient and message are required")
		return
	}

	job, err := s.queue.Submit(req.Recipient, func(ctx context.Context) (any, error) {
		return s.transport.Send(ctx, req.Recipient, req.Message)
	})
	if err != nil {
		fail(c, err)
		return
	}
	out, err := job.Wait(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ===== realtime =====

func (s *Server) handleRealtimeStart(c *gin.Context) {
	started := s.orch.Realtime().Start(s.baseCtx)
	if started {
		s.publishState()
	}
	c.JSON(http.StatusOK, gin.H{"status": "started", "already_running": !started})
}

func (s *Server) handleRealtimeStop(c *gin.Context) {
	stopped := s.orch.Realtime().Stop()
	if stopped {
		s.publishState()
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "was_running": stopped})
}

func (s *Server) handleRealtimeStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Realtime().Status())
}

func (s *Server) publishState() {
	if s.hub == nil {
		return
	}
	s.hub.Publish(pipeline.Event{
		Type: pipeline.EventRealtimeState,
		Time: time.Now().UTC(),
		Data: s.orch.Realtime().Status(),
	})
}
