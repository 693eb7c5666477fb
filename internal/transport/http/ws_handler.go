package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"traffic-quiz-service/internal/app"
	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// WSHandler streams reveal frames to the Mini App and accepts AI requests
// over the same connection.
type WSHandler struct {
	metered  *app.MeteredCaller
	reveals  *app.Revealer
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewWSHandler(metered *app.MeteredCaller, log *logger.Logger) *WSHandler {
	return &WSHandler{
		metered: metered,
		reveals: metered.Reveals(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With("component", "ws"),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type cancelPayload struct {
	Slot string `json:"slot"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Slot    string `json:"slot,omitempty"`
}

// ServeWS upgrades the request and wires the caller's reveal stream into it.
// With ?slot= only that slot's frames are forwarded.
func (h *WSHandler) ServeWS(c *gin.Context) {
	caller := callerFrom(c)
	slotFilter := c.Query("slot")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(c.Request.Context())
	defer cancelCtx()

	frames, unsubscribe := h.reveals.Subscribe(caller.UserID)
	defer unsubscribe()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	framesDone := make(chan struct{})

	// single writer: gorilla connections do not allow concurrent writes
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Debug("ws write error", "user_id", caller.UserID, "error", err)
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	go func() {
		defer close(framesDone)
		for {
			select {
			case frame, ok := <-frames:
				if !ok {
					return
				}
				if slotFilter != "" && frame.Slot != slotFilter {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: "frame", Payload: frame}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	slots := newSlotSet(slotFilter)

	ready := gin.H{"userId": caller.UserID}
	if slotFilter != "" {
		if frame, ok := h.reveals.Frame(caller.UserID, slotFilter); ok {
			ready["frame"] = frame
		}
	}
	push(outboundMessage[any]{Type: "ready", Payload: ready})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "explain":
			var payload explainRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
				push(errorMessage("bad_request", "invalid explain payload", ""))
				continue
			}
			slots.add(payload.Slot)
			go h.dispatch(ctx, send, closeSignals, caller.UserID, payload.Slot, func(ctx context.Context) (app.MeteredResult, error) {
				return h.metered.Explain(ctx, caller, payload.call())
			})
		case "advice":
			var payload adviceRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				push(errorMessage("bad_request", "invalid advice payload", ""))
				continue
			}
			slots.add(payload.Slot)
			go h.dispatch(ctx, send, closeSignals, caller.UserID, payload.Slot, func(ctx context.Context) (app.MeteredResult, error) {
				return h.metered.Advise(ctx, caller, payload.call())
			})
		case "cancel":
			var payload cancelPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Slot == "" {
				push(errorMessage("bad_request", "invalid cancel payload", ""))
				continue
			}
			h.reveals.Cancel(caller.UserID, payload.Slot)
		default:
			push(errorMessage("bad_request", "unsupported message type", ""))
		}
	}

	// leaving the screen stops its reveals
	cancelCtx()
	for _, slot := range slots.list() {
		h.reveals.Cancel(caller.UserID, slot)
	}
	close(closeSignals)
	<-framesDone
	<-writerDone
}

// dispatch runs a metered call off the read loop; the answer streams back as
// frames, the final result carries the quota state.
func (h *WSHandler) dispatch(ctx context.Context, send chan<- outboundMessage[any], closed <-chan struct{}, userID int64, slot string, run func(context.Context) (app.MeteredResult, error)) {
	res, err := run(ctx)
	if ctx.Err() != nil && slot != "" {
		// the socket went away while the call was in flight
		h.reveals.Cancel(userID, slot)
	}
	msg := outboundMessage[any]{Type: "result", Payload: gin.H{"slot": slot, "result": res}}
	if err != nil {
		_, body := errorBody(err)
		code, _ := body["error"].(string)
		message, _ := body["message"].(string)
		msg = errorMessage(code, message, slot)
		if q, ok := body["quota"].(domain.QuotaDecision); ok {
			msg.Payload = gin.H{"code": code, "message": message, "slot": slot, "quota": q}
		}
	}
	select {
	case send <- msg:
	case <-closed:
	case <-ctx.Done():
	}
}

// slotSet records the reveal slots a connection touched.
type slotSet struct {
	mu    sync.Mutex
	slots map[string]struct{}
}

func newSlotSet(initial ...string) *slotSet {
	s := &slotSet{slots: make(map[string]struct{})}
	for _, slot := range initial {
		s.add(slot)
	}
	return s
}

func (s *slotSet) add(slot string) {
	if slot == "" {
		return
	}
	s.mu.Lock()
	s.slots[slot] = struct{}{}
	s.mu.Unlock()
}

func (s *slotSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.slots))
	for slot := range s.slots {
		out = append(out, slot)
	}
	return out
}

func errorMessage(code, message, slot string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message, Slot: slot}}
}
