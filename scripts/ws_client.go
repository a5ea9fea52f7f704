// Package main runs a demo WebSocket client for assignment run events.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path, contentType, body string) *http.Response {
	req, _ := http.NewRequest(http.MethodPost, base+path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	return resp
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed minimal datasets
	mileage := "Evaluator,Customer,Round Trip Miles,Cost ($)\nSmith,Acme Power,120,87\nJones,Acme Power,40,29\n"
	resp := post(base, "/v1/datasets/mileage", "text/csv", mileage)
	_ = resp.Body.Close()
	resp = post(base, "/v1/datasets/roster", "application/json", `["Jones"]`)
	_ = resp.Body.Close()
	resp = post(base, "/v1/jobs", "text/csv", "Job #,Customer,Assigned To\nJ-100,Acme Power,\n")
	_ = resp.Body.Close()

	// Connect WS and listen on the tenant channel
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"runId": "tenant:t_demo"})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger a run; the completion event arrives over the socket
	time.Sleep(500 * time.Millisecond)
	resp = post(base, "/v1/assign", "application/json", `{}`)
	var run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&run)
	_ = resp.Body.Close()
	log.Printf("Run %s -> %s", run.ID, run.Status)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
