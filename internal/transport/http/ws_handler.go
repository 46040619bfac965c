package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
)

// WSHandler hosts one quiz-taking session per connection. The client reports answers,
// navigation and focus loss; the server pushes session events, including the timer's auto-submit.
// Several connections may attach to one session; the session keeps a single timer.
type WSHandler struct {
	service  *app.SessionService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		log:      log,
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

type answerPayload struct {
	QuestionID int64         `json:"questionId"`
	Value      domain.Answer `json:"value"`
}

type navigatePayload struct {
	Index     *int   `json:"index"`
	Direction string `json:"direction"` // next or previous
}

type answerSaved struct {
	QuestionID int64 `json:"questionId"`
}

type position struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Status: statusOf(err)}}
}

func badRequest(message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message, Status: http.StatusBadRequest}}
}

// ServeWS upgrades the request and drives the session of studentId on quizId.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quizID, err := strconv.ParseInt(q.Get("quizId"), 10, 64)
	studentID := q.Get("studentId")
	name := q.Get("name")
	if err != nil || studentID == "" || name == "" {
		http.Error(w, "missing quizId, studentId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.service.Start(ctx, quizID, studentID, name)
	if err != nil {
		if session != nil {
			// rejected at start: deliver the event so the client can navigate away
			events, stop := session.Subscribe()
			if ev, ok := <-events; ok {
				_ = conn.WriteJSON(outboundMessage[any]{Type: "event", Payload: ev})
			}
			stop()
		}
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	events, unsubscribe := session.Subscribe()
	defer unsubscribe()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		broken := false
		for msg := range send {
			if broken {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				broken = true
				continue
			}
			if ev, ok := msg.Payload.(domain.Event); ok && ev.Status.Terminal() {
				// The session is over; ask the client to close so the read loop ends.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Type)),
					time.Now().Add(time.Second))
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
				case <-closeSignals:
					return
				}
				if ev.Status.Terminal() {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "snapshot", Payload: session.Snapshot()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply, ok := h.handle(ctx, session, inbound); ok {
			send <- reply
		}
	}

	cancel()
	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// handle applies one client message. Failures are reported back and never end the session.
func (h *WSHandler) handle(ctx context.Context, session *app.Session, in inboundMessage) (outboundMessage[any], bool) {
	switch in.Type {
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return badRequest("invalid answer payload"), true
		}
		if err := session.RecordAnswer(ctx, payload.QuestionID, payload.Value); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "answerSaved", Payload: answerSaved{QuestionID: payload.QuestionID}}, true

	case "navigate":
		var payload navigatePayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return badRequest("invalid navigate payload"), true
		}
		var (
			index int
			err   error
		)
		switch {
		case payload.Index != nil:
			index, err = session.GoTo(*payload.Index)
		case payload.Direction == "next":
			index, err = session.Next()
		case payload.Direction == "previous":
			index, err = session.Previous()
		default:
			return badRequest("navigate needs an index or a direction"), true
		}
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{Type: "position", Payload: position{Index: index}}, true

	case "violation":
		// The outcome (warning or termination) arrives as a session event.
		if err := session.RegisterViolation(ctx); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{}, false

	case "submit":
		if _, err := session.Submit(ctx, app.ReasonManual, false); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{}, false

	case "snapshot":
		return outboundMessage[any]{Type: "snapshot", Payload: session.Snapshot()}, true
	}
	return badRequest("unsupported message type"), true
}
