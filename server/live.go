package server

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/model"
)

// PCMInputMIMEType labels binary websocket frames.
const PCMInputMIMEType = "audio/pcm;rate=16000"

const maxLiveAttempts = 10

var (
	errMissingUserID = errors.New("first request must contain user_id")
	errClientGone    = errors.New("client disconnected")
)

// Feedback is the body of POST /feedback.
type Feedback struct {
	Score        float64 `json:"score" binding:"required"`
	Text         string  `json:"text"`
	InvocationID string  `json:"invocation_id"`
	UserID       string  `json:"user_id"`
	SessionID    string  `json:"session_id"`
	LogType      string  `json:"log_type"`
}

func (s *Server) feedbackHandler(c *gin.Context) {
	var fb Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if fb.LogType == "" {
		fb.LogType = "feedback"
	}

	s.opts.Logger.WithFields(logrus.Fields{
		"score":         fb.Score,
		"text":          fb.Text,
		"invocation_id": fb.InvocationID,
		"user_id":       fb.UserID,
		"session_id":    fb.SessionID,
		"log_type":      fb.LogType,
	}).Info("feedback")

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) websocketHandler(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.opts.Logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ls := &liveSession{
		server: s,
		conn:   conn,
		input:  make(chan map[string]json.RawMessage, 64),
		log:    s.opts.Logger.WithField("request_id", c.GetString(requestIDKey)),
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go ls.receiveFromClient(ctx, cancel)

	ls.connectAndRun(ctx)
}

// liveSession bridges one websocket client to live agent runs.
type liveSession struct {
	server *Server
	conn   *websocket.Conn
	input  chan map[string]json.RawMessage
	log    *logrus.Entry

	writeMu   sync.Mutex
	userID    string
	sessionID string
	first     []core.LiveRequest
}

func (ls *liveSession) writeJSON(v any) error {
	ls.writeMu.Lock()
	defer ls.writeMu.Unlock()
	return ls.conn.WriteJSON(v)
}

// receiveFromClient queues client messages until the socket closes. Setup
// messages are logged and dropped; binary frames become audio blobs.
func (ls *liveSession) receiveFromClient(ctx context.Context, cancel context.CancelFunc) {
	defer close(ls.input)

	for {
		mt, data, err := ls.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ls.log.WithError(err).Warn("client closed the connection")
			}
			cancel()
			return
		}

		switch mt {
		case websocket.TextMessage:
			var msg map[string]json.RawMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				ls.log.WithError(err).Error("failed to parse client message")
				cancel()
				return
			}
			if setup, ok := msg["setup"]; ok {
				ls.log.WithField("setup", string(setup)).Info("received setup message (not forwarded to the agent)")
				continue
			}
			if !ls.enqueue(ctx, msg) {
				return
			}
		case websocket.BinaryMessage:
			blob, _ := json.Marshal(core.Blob{Data: data, MIMEType: PCMInputMIMEType})
			if !ls.enqueue(ctx, map[string]json.RawMessage{"blob": blob}) {
				return
			}
		}
	}
}

func (ls *liveSession) enqueue(ctx context.Context, msg map[string]json.RawMessage) bool {
	select {
	case ls.input <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// connectAndRun runs the agent, retrying with exponential backoff when the
// model connection fails.
func (ls *liveSession) connectAndRun(ctx context.Context) {
	b := backoff.WithContext(backoff.WithMaxRetries(ls.server.opts.LiveBackOff(), maxLiveAttempts-1), ctx)

	notify := func(err error, wait time.Duration) {
		ls.log.WithError(err).Warn("live run failed, retrying")
		_ = ls.writeJSON(gin.H{"status": fmt.Sprintf("Model connection error, retrying in %.1f seconds...", wait.Seconds())})
	}

	if err := backoff.RetryNotify(func() error { return ls.runAgent(ctx) }, b, notify); err != nil {
		if errors.Is(err, errClientGone) || errors.Is(err, context.Canceled) {
			return
		}
		ls.log.WithError(err).Error("agent run error")
		_ = ls.writeJSON(gin.H{"error": err.Error()})
	}
}

func (ls *liveSession) runAgent(ctx context.Context) error {
	if err := ls.writeJSON(gin.H{"setupComplete": gin.H{}}); err != nil {
		return backoff.Permanent(errClientGone)
	}

	if ls.userID == "" {
		if err := ls.handshake(ctx); err != nil {
			return backoff.Permanent(err)
		}
	}

	queue := core.NewLiveRequestQueue(0)
	defer queue.Close()

	for _, req := range ls.first {
		_ = queue.Send(req)
	}
	ls.first = nil

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := ls.server.opts.LiveRunner
	_, events, errs, err := r.RunLive(runCtx, ls.userID, ls.sessionID, queue, ls.server.opts.LiveConfig)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		ls.forwardRequests(runCtx, queue)
	}()

	for ev := range events {
		if err := ls.writeJSON(ev); err != nil {
			cancel()
		}
	}

	runErr := <-errs
	cancel()

	// unblock a forwarder stuck on a full queue
	go func() {
		for range queue.Requests() {
		}
	}()
	<-clientGone
	queue.Close()

	if ctx.Err() != nil {
		return backoff.Permanent(errClientGone)
	}
	return runErr
}

// handshake reads the first client message which must name the user. A new
// session is created when it names none.
func (ls *liveSession) handshake(ctx context.Context) error {
	var msg map[string]json.RawMessage
	select {
	case m, ok := <-ls.input:
		if !ok {
			return errClientGone
		}
		msg = m
	case <-ctx.Done():
		return errClientGone
	}

	var hello struct {
		UserID      string          `json:"user_id"`
		SessionID   string          `json:"session_id"`
		LiveRequest json.RawMessage `json:"live_request"`
	}
	raw, _ := json.Marshal(msg)
	if err := json.Unmarshal(raw, &hello); err != nil {
		return fmt.Errorf("invalid first request: %w", err)
	}
	if hello.UserID == "" {
		return errMissingUserID
	}

	ls.userID = hello.UserID
	ls.sessionID = hello.SessionID

	if ls.sessionID == "" {
		sess, err := ls.server.opts.LiveRunner.CreateSession(ctx, ls.userID, "", nil)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		ls.sessionID = sess.ID
	}

	if len(hello.LiveRequest) > 0 {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(hello.LiveRequest, &nested); err == nil {
			ls.first = append(ls.first, decodeLiveRequests(nested)...)
		}
	}
	// The first message may carry input next to user_id.
	ls.first = append(ls.first, decodeLiveRequests(msg)...)

	ls.log.WithFields(logrus.Fields{"user_id": ls.userID, "session_id": ls.sessionID}).Info("live session started")

	return nil
}

func (ls *liveSession) forwardRequests(ctx context.Context, queue *core.LiveRequestQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ls.input:
			if !ok {
				queue.Close()
				return
			}
			for _, req := range decodeLiveRequests(msg) {
				if err := queue.Send(req); err != nil {
					return
				}
			}
		}
	}
}

type clientPart struct {
	Text string `json:"text"`
}

type clientContent struct {
	Role  string       `json:"role"`
	Parts []clientPart `json:"parts"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
	// "base64" (default) or "hex".
	Encoding string `json:"encoding,omitempty"`
}

// decode returns the chunk bytes. Without an explicit encoding base64 wins,
// hex is only tried for data that is not valid base64.
func (c mediaChunk) decode() ([]byte, error) {
	if strings.EqualFold(c.Encoding, "hex") {
		return hex.DecodeString(c.Data)
	}
	data, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil && c.Encoding == "" {
		return hex.DecodeString(c.Data)
	}
	return data, err
}

// decodeLiveRequests maps one client message to live requests. It accepts
// content turns with plain text parts, realtimeInput media chunks (base64,
// or hex when marked), a core blob, and activity/close flags.
func decodeLiveRequests(msg map[string]json.RawMessage) []core.LiveRequest {
	var out []core.LiveRequest

	if raw, ok := msg["content"]; ok {
		var cc clientContent
		if err := json.Unmarshal(raw, &cc); err == nil {
			content := core.Content{Role: cc.Role}
			if content.Role == "" {
				content.Role = "user"
			}
			for _, p := range cc.Parts {
				if p.Text != "" {
					content.Parts = append(content.Parts, core.TextPart{Text: p.Text})
				}
			}
			if len(content.Parts) > 0 {
				out = append(out, core.LiveRequest{Content: &content})
			}
		}
	}

	if raw, ok := msg["realtimeInput"]; ok {
		var ri struct {
			MediaChunks []mediaChunk `json:"mediaChunks"`
		}
		if err := json.Unmarshal(raw, &ri); err == nil {
			for _, chunk := range ri.MediaChunks {
				data, err := chunk.decode()
				if err != nil {
					continue
				}
				mime := chunk.MIMEType
				if mime == "" {
					mime = PCMInputMIMEType
				}
				out = append(out, core.LiveRequest{Blob: &core.Blob{Data: data, MIMEType: mime}})
			}
		}
	}

	if raw, ok := msg["blob"]; ok {
		var blob core.Blob
		if err := json.Unmarshal(raw, &blob); err == nil {
			out = append(out, core.LiveRequest{Blob: &blob})
		}
	}

	if flag(msg, "activity_start") {
		out = append(out, core.LiveRequest{ActivityStart: true})
	}
	if flag(msg, "activity_end") {
		out = append(out, core.LiveRequest{ActivityEnd: true})
	}
	if flag(msg, "close") {
		out = append(out, core.LiveRequest{Close: true})
	}

	return out
}

func flag(msg map[string]json.RawMessage, key string) bool {
	var v bool
	raw, ok := msg[key]
	return ok && json.Unmarshal(raw, &v) == nil && v
}

func defaultLiveConfig() model.LiveConfig {
	return model.LiveConfig{
		ResponseModalities:  []string{model.ModalityAudio},
		InputTranscription:  true,
		OutputTranscription: true,
	}
}
