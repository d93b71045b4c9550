// mockupstream is a stand-in completion API for local development. It echoes
// a fixed chat-completion-shaped response and can be told to fail via the
// FAIL_STATUS env var, which is handy for exercising the gateway's
// pass-through and breaker behavior.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3001"
	}

	failStatus := 0
	if raw := os.Getenv("FAIL_STATUS"); raw != "" {
		failStatus, _ = strconv.Atoi(raw)
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("Received request: %s %s", r.Method, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		if failStatus >= 400 {
			w.WriteHeader(failStatus)
			fmt.Fprintf(w, `{"error": {"message": "mock upstream failure", "code": %d}}`, failStatus)
			return
		}

		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, hasMeta := body["_meta"]; hasMeta {
			// The gateway must strip this before forwarding.
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error": {"message": "unexpected _meta block in payload"}}`)
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"choices": []map[string]interface{}{
				{
					"index": 0,
					"message": map[string]string{
						"role":    "assistant",
						"content": "Hello from the mock upstream.",
					},
					"finish_reason": "stop",
				},
			},
		})
	})

	log.Printf("Mock upstream starting on :%s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}
