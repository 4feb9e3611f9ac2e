package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"quiz-attempt/internal/app"
	"quiz-attempt/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler exposes one attempt over a websocket: snapshots flow out, student
// actions flow in.
type WSHandler struct {
	controller *app.Controller
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewWSHandler(controller *app.Controller, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		controller: controller,
		logger:     logger,
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
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type navigatePayload struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
}

type questionPayload struct {
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Question domain.Question `json:"question"`
	Answer   string          `json:"answer,omitempty"`
	Answered bool            `json:"answered"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the session until the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.controller.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var inflight sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: update}:
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

	emit := func(typ string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		emit("error", errorPayload{Message: err.Error()})
	}
	emitQuestion := func() {
		view, err := h.controller.Current()
		if err != nil {
			return
		}
		emit("question", toQuestionPayload(view))
	}
	// background reports errors only; results arrive as snapshots
	background := func(fn func(ctx context.Context) error) {
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			if err := fn(context.Background()); err != nil {
				select {
				case send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}:
				case <-writerDone:
				case <-closeSignals:
				}
			}
		}()
	}

	emitQuestion()

	var gate *app.Gate
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid answer payload"))
				continue
			}
			q, ok := h.controller.Quiz().Question(payload.QuestionID)
			if !ok {
				fail(domain.ErrQuestionNotFound)
				continue
			}
			answer, err := domain.DecodeAnswer(q, payload.Answer)
			if err != nil {
				fail(err)
				continue
			}
			if err := h.controller.SetAnswer(q.ID, answer); err != nil {
				fail(err)
				continue
			}
			emitQuestion()
		case "navigate":
			var payload navigatePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				fail(errors.New("invalid navigate payload"))
				continue
			}
			switch payload.Action {
			case "next":
				res, err := h.controller.Next()
				if err != nil {
					fail(err)
					continue
				}
				if res.Gate != nil {
					gate = res.Gate
					emit("gate", gate.Summary())
					continue
				}
			case "previous":
				if _, err := h.controller.Previous(); err != nil {
					fail(err)
					continue
				}
			case "jump":
				if err := h.controller.JumpTo(payload.Index); err != nil {
					fail(err)
					continue
				}
			default:
				fail(errors.New("unsupported navigate action"))
				continue
			}
			emitQuestion()
		case "finish":
			g, err := h.controller.OpenGate()
			if err != nil {
				fail(err)
				continue
			}
			gate = g
			emit("gate", gate.Summary())
		case "confirm":
			if gate == nil {
				fail(errors.New("no confirmation pending"))
				continue
			}
			g := gate
			gate = nil
			background(func(ctx context.Context) error {
				_, err := g.Confirm(ctx)
				return err
			})
		case "dismiss":
			if gate != nil {
				gate.Dismiss()
				gate = nil
			}
		case "retry":
			background(func(ctx context.Context) error {
				_, err := h.controller.Retry(ctx)
				return err
			})
		default:
			fail(errors.New("unsupported message type"))
		}
	}

	close(closeSignals)
	<-updatesDone
	inflight.Wait()
	close(send)
	<-writerDone
}

func toQuestionPayload(view app.QuestionView) questionPayload {
	p := questionPayload{Index: view.Index, Total: view.Total, Question: view.Question}
	if view.Answer != nil {
		p.Answer = view.Answer.Wire()
		p.Answered = true
	}
	return p
}
