// Package main runs a demo WebSocket client that watches plan progress.
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

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Upload a small dataset
	dataset := []byte(`{
		"name": "demo",
		"stock": [
			{"depotId": "S1", "materialId": "M1", "qty": 10},
			{"depotId": "S2", "materialId": "M1", "qty": 2}
		],
		"orders": [
			{"orderId": "T1", "depotId": "S1", "priority": 5, "materialId": "M1", "demand": 4},
			{"orderId": "T2", "depotId": "S2", "priority": 3, "materialId": "M1", "demand": 6}
		],
		"transferCosts": [
			{"fromDepotId": "S1", "toDepotId": "S2", "materialId": "M1", "cost": 1.5}
		]
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/datasets", bytes.NewReader(dataset))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var ds struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ds); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Dataset ID: %s", ds.ID)

	// Name the plan up front so we can attach before the run starts
	planID := uuid.New().String()
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/" + planID + "/progress/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	// Kick off the optimization
	go func() {
		body, _ := json.Marshal(map[string]any{"datasetId": ds.ID, "planId": planID, "verbose": true})
		req, _ := http.NewRequest(http.MethodPost, base+"/v1/optimize", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-Id", "t_demo")
		req.Header.Set("X-Role", "admin")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Printf("optimize: %v", err)
			return
		}
		defer func() { _ = resp.Body.Close() }()
		var plan struct {
			Status    string  `json:"status"`
			Objective float64 `json:"objective"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&plan)
		log.Printf("Plan: status=%s objective=%v", plan.Status, plan.Objective)
	}()

	// Stream events until the plan finishes
	deadline := time.Now().Add(60 * time.Second)
	_ = c.SetReadDeadline(deadline)
	for {
		var ev struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		if err := c.ReadJSON(&ev); err != nil {
			log.Printf("stream closed: %v", err)
			return
		}
		log.Printf("event %s: %v", ev.Type, ev.Data)
		if ev.Type == "plan.completed" || ev.Type == "plan.failed" {
			return
		}
	}
}
