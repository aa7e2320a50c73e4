package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/pausr/internal/appstate"
	"github.com/loykin/pausr/internal/engine"
	"github.com/loykin/pausr/internal/host"
)

var upgrader = websocket.Upgrader{
	// the API binds to localhost by default; browser UIs on other ports connect too
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsQueue        = 64
	wsWriteTimeout = 5 * time.Second
)

// Message is one item of the /ws stream.
type Message struct {
	Type  string     `json:"type"` // pause | sticky | running_apps
	AppID uint32     `json:"app_id,omitempty"`
	Value *bool      `json:"value,omitempty"`
	Apps  []host.App `json:"apps,omitempty"`
}

type hub struct {
	eng *engine.Engine
	log *slog.Logger
}

func newHub(eng *engine.Engine, log *slog.Logger) *hub {
	return &hub{eng: eng, log: log}
}

// handle streams pause and sticky changes of every running app plus the
// running list itself until the client disconnects.
func (h *hub) handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s := &wsSession{
		conn: conn,
		eng:  h.eng,
		out:  make(chan Message, wsQueue),
		subs: map[uint32][]appstate.Unsubscribe{},
		log:  h.log,
	}
	s.run()
}

type wsSession struct {
	conn *websocket.Conn
	eng  *engine.Engine
	out  chan Message
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[uint32][]appstate.Unsubscribe
}

func (s *wsSession) run() {
	done := make(chan struct{})
	go s.writeLoop(done)

	unsubRunning := s.eng.SubscribeRunningApps(func(apps []host.App) {
		s.track(apps)
		s.send(Message{Type: "running_apps", Apps: apps})
	})
	apps := s.eng.Apps()
	s.track(apps)
	s.send(Message{Type: "running_apps", Apps: apps})

	// reads only detect the close; clients have nothing to say
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			break
		}
	}
	unsubRunning()
	s.shutdown()
	<-done
	_ = s.conn.Close()
}

// track keeps one pause and one sticky subscription per running app. Ids
// missing from the current running list are skipped: subscribing would
// recreate the record of an app the janitor already dropped.
func (s *wsSession) track(apps []host.App) {
	live := host.IDs(apps)
	running := host.IDs(s.eng.Apps())
	for id := range live {
		if !running[id] {
			delete(live, id)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for id, unsubs := range s.subs {
		if !live[id] {
			for _, u := range unsubs {
				u()
			}
			delete(s.subs, id)
		}
	}
	for id := range live {
		if _, ok := s.subs[id]; ok {
			continue
		}
		s.subs[id] = []appstate.Unsubscribe{
			s.eng.SubscribePause(id, func(v bool) { s.send(Message{Type: "pause", AppID: id, Value: &v}) }),
			s.eng.SubscribeSticky(id, func(v bool) { s.send(Message{Type: "sticky", AppID: id, Value: &v}) }),
		}
	}
}

// send never blocks; a slow client loses messages.
func (s *wsSession) send(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- m:
	default:
		s.log.Warn("websocket client too slow, message dropped", "type", m.Type)
	}
}

func (s *wsSession) shutdown() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.closed = true
	close(s.out)
	s.mu.Unlock()
	for _, unsubs := range subs {
		for _, u := range unsubs {
			u()
		}
	}
}

func (s *wsSession) writeLoop(done chan<- struct{}) {
	defer close(done)
	for m := range s.out {
		_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := s.conn.WriteJSON(m); err != nil {
			s.log.Debug("websocket write failed", "error", err)
			_ = s.conn.Close()
			for range s.out {
			}
			return
		}
	}
}
