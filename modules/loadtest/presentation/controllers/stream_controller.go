package controllers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/modules/loadtest/stream"
	"github.com/unhackeddev/nfury/pkg/application"
	"github.com/unhackeddev/nfury/pkg/ws"
)

// StreamController bridges the in-process metric stream onto WebSocket
// clients. Every connection gets its own stream subscription; the
// subscription's mailbox, not the socket, decides which Metric events a
// slow client misses.
type StreamController struct {
	app  application.Application
	runs *services.RunService
	hub  *ws.Hub
	path string

	mu   sync.Mutex
	subs map[*ws.Connection]string
}

func NewStreamController(app application.Application) application.Controller {
	c := &StreamController{
		app:  app,
		runs: app.Service(services.RunService{}).(*services.RunService),
		path: "/ws/metrics",
		subs: make(map[*ws.Connection]string),
	}
	c.hub = ws.NewHub(&ws.HubOptions{
		Logger:       app.Logger(),
		OnConnect:    c.onConnect,
		OnDisconnect: c.onDisconnect,
	})
	return c
}

func (c *StreamController) Key() string {
	return c.path
}

func (c *StreamController) Register(r *mux.Router) {
	r.Handle(c.path, c.hub).Methods(http.MethodGet)
}

func (c *StreamController) onConnect(r *http.Request, hub *ws.Hub, conn *ws.Connection) error {
	sub := c.runs.Subscribe()
	c.mu.Lock()
	c.subs[conn] = sub.ID()
	c.mu.Unlock()
	go c.pump(sub, conn)
	return nil
}

func (c *StreamController) onDisconnect(conn *ws.Connection) {
	c.mu.Lock()
	id, ok := c.subs[conn]
	if ok {
		delete(c.subs, conn)
	}
	c.mu.Unlock()
	if ok {
		c.runs.Unsubscribe(id)
	}
}

// pump forwards stream events to one socket until either side goes away.
// Unsubscribing on exit closes the subscription so the hub never blocks
// on a dead client.
func (c *StreamController) pump(sub *stream.Subscription, conn *ws.Connection) {
	defer c.runs.Unsubscribe(sub.ID())
	for {
		select {
		case ev := <-sub.Events():
			payload, err := json.Marshal(ev)
			if err != nil {
				c.app.Logger().WithError(err).Error("stream: marshal event")
				continue
			}
			if err := conn.SendMessage(payload); err != nil {
				return
			}
		case <-sub.Done():
			return
		}
	}
}
