// Package main runs a demo client for the live dispatch feed: it seeds a
// technician and a job, opens the WebSocket feed, then triggers a route
// optimization and a location update and prints the events it receives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type dispatchEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func post(base, path string, body []byte) (map[string]any, error) {
	req, err := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return out, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}
	return out, nil
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	tech, err := post(base, "/v1/technicians", []byte(`{"name":"Demo Tech","skillLevel":"journeyman","isAvailable":true,"location":{"lat":39.9526,"lng":-75.1652}}`))
	if err != nil {
		log.Fatal(err)
	}
	techID := tech["id"].(string)
	log.Printf("technician: %s", techID)

	job := fmt.Sprintf(`{"title":"Demo outlet repair","status":"scheduled","technicianId":%q,"scheduledDate":"2025-06-02","location":{"lat":39.96,"lng":-75.17}}`, techID)
	if _, err := post(base, "/v1/jobs", []byte(job)); err != nil {
		log.Fatal(err)
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/dispatch/ws", RawQuery: "technicianId=" + techID}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt dispatchEvent
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			b, _ := json.Marshal(evt.Data)
			log.Printf("WS <- %s: %s", evt.Type, b)
		}
	}()

	time.Sleep(500 * time.Millisecond)
	optimize := fmt.Sprintf(`{"technicianId":%q,"date":"2025-06-02","refine":true}`, techID)
	if _, err := post(base, "/v1/routes/optimize", []byte(optimize)); err != nil {
		log.Printf("optimize: %v", err)
	}
	if _, err := post(base, "/v1/technicians/"+techID+"/location", []byte(`{"lat":39.955,"lng":-75.168}`)); err != nil {
		log.Printf("location: %v", err)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
