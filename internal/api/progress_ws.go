package api

import (
    "net/http"
    "time"

    "github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// ProgressWSHandler streams plan.progress and plan.completed/plan.failed
// events for one plan over a websocket. The stream closes when the client
// disconnects or a terminal event is sent.
func (s *Server) ProgressWSHandler(w http.ResponseWriter, r *http.Request, planID string) {
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    ch := s.Broker.Subscribe(planID)
    defer s.Broker.Unsubscribe(planID, ch)

    conn.SetReadLimit(1 << 20)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

    // Drain client frames so control messages are processed; close on error.
    done := make(chan struct{})
    go func() {
        defer close(done)
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    ping := time.NewTicker(20 * time.Second)
    defer ping.Stop()
    for {
        select {
        case ev, ok := <-ch:
            if !ok {
                return
            }
            if err := conn.WriteJSON(ev); err != nil {
                return
            }
            if ev.Type == "plan.completed" || ev.Type == "plan.failed" {
                return
            }
        case <-ping.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
                return
            }
        case <-done:
            return
        case <-r.Context().Done():
            return
        }
    }
}
