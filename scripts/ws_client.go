// Package main runs a demo WebSocket client against the operations feed.
// It files a need report, plans missions, then prints the events that
// arrive on /v1/ops/ws.
package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func post(base, path string, body []byte) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("POST %s -> %s", path, resp.Status)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ops/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m map[string]any
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %v: %v", m["type"], m["data"])
		}
	}()

	post(base, "/v1/teams", []byte(`{"id":"team-demo","name":"Demo Team","base":{"lat":29.70,"lng":-95.40}}`))
	post(base, "/v1/needs", []byte(`{"reports":[{"category":"water","severity":3,"location":{"lat":29.76,"lng":-95.36}}]}`))
	post(base, "/v1/dispatch/plan", []byte(`{"algorithm":"greedy"}`))

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
