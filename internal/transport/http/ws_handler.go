package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/logger"
	"github.com/gorilla/websocket"

	"quiz-battle/internal/app"
)

const wsWriteWait = 10 * time.Second

// MessageSubmit is the only inbound message type; replies are SUBMITTED or ERROR events.
const MessageSubmit = "SUBMIT"

const EventSubmitted app.EventType = "SUBMITTED"

var errUnsupportedMessage = errors.New("unsupported message type")

type WSHandler struct {
	service  *app.ContestService
	streams  *app.StreamController
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ContestService, streams *app.StreamController) *WSHandler {
	return &WSHandler{
		service: service,
		streams: streams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServeWS upgrades the request and pushes the contest event stream as one JSON text frame
// per event. Upgrade requests that carry the gateway's user header may submit answers
// over the same socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	contestID := r.URL.Query().Get("contestId")
	userID := r.Header.Get(UserIDHeader)
	if contestID == "" {
		http.Error(w, "missing contestId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warningf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	contest, err := h.streams.Open(r.Context(), contestID)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		_ = conn.WriteJSON(app.ErrorEvent(err))
		closeNormally(conn)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan app.Event, 16)
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	readerDone := make(chan struct{})

	// Single writer: every frame goes through send so writes never race.
	go func() {
		defer close(writerDone)
		write := func(event app.Event) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				logger.V(1).Infof("ws write to contest %s stream: %v", contestID, err)
				cancel()
				return false
			}
			return true
		}
		for {
			select {
			case event := <-send:
				if !write(event) {
					return
				}
			case <-stop:
				for {
					select {
					case event := <-send:
						if !write(event) {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	push := func(event app.Event) error {
		select {
		case send <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				return
			}
			if err := push(h.handleInbound(ctx, contestID, userID, inbound)); err != nil {
				return
			}
		}
	}()

	_ = h.streams.Stream(ctx, contest, app.EmitterFunc(push))
	cancel()

	close(stop)
	<-writerDone
	closeNormally(conn)
	conn.Close()
	<-readerDone
}

func (h *WSHandler) handleInbound(ctx context.Context, contestID, userID string, inbound inboundMessage) app.Event {
	if inbound.Type != MessageSubmit {
		return app.ErrorEvent(errUnsupportedMessage)
	}
	if userID == "" {
		return app.ErrorEvent(errMissingUser)
	}
	var req submitRequest
	if err := json.Unmarshal(inbound.Payload, &req); err != nil || req.QuestionID == "" {
		return app.ErrorEvent(errInvalidPayload)
	}
	submission, err := h.service.Submit(ctx, contestID, userID, req.QuestionID, req.OptionIDs)
	if err != nil {
		return app.ErrorEvent(err)
	}
	return app.Event{Type: EventSubmitted, Payload: submitResponse{QuestionID: submission.QuestionID, Score: submission.Score}}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
