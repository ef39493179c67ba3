// Command echo-backend is a local stand-in for the conversation backend. It
// answers health and voice probes and plays every audio frame straight back.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Audio   string          `json:"audio,omitempty"`
	Delta   string          `json:"delta,omitempty"`
	Session json.RawMessage `json:"session,omitempty"`
	Args    any             `json:"args,omitempty"`
}

var upgrader = websocket.Upgrader{
	Subprotocols: []string{"realtime"},
	CheckOrigin:  func(*http.Request) bool { return true },
}

func main() {
	addr := os.Getenv("ECHO_ADDR")
	if addr == "" {
		addr = "127.0.0.1:8000"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]bool{"ok": true, "tts_up": true, "stt_up": true, "llm_up": true, "voice_cloning_up": false})
	})
	mux.HandleFunc("/v1/voices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]any{
			{
				"name":         "Echo",
				"good":         true,
				"instructions": map[string]string{"type": "smalltalk", "language": "en"},
				"source":       map[string]string{"source_type": "file", "path_on_server": "echo.wav"},
			},
		})
	})
	mux.HandleFunc("/v1/realtime", serveRealtime)

	fmt.Printf("[ECHO] Listening on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func serveRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("[ECHO] Upgrade failed: %v\n", err)
		return
	}
	defer conn.Close()
	fmt.Println("[ECHO] Client connected")

	frames := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("[ECHO] Read error: %v\n", err)
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Printf("[ECHO] Unmarshal error: %v\n", err)
			continue
		}

		switch msg.Type {
		case "session.update":
			fmt.Printf("[ECHO] Session: %s\n", msg.Session)
			send(conn, message{Type: "session.updated"})
			send(conn, message{Type: "response.text.delta", Delta: "Say something and I will repeat it."})
		case "input_audio_buffer.append":
			frames++
			send(conn, message{Type: "response.audio.delta", Delta: msg.Audio})
			if frames%50 == 0 {
				send(conn, message{Type: "unmute.additional_outputs", Args: map[string]any{
					"debug_dict": map[string]int{"frames_echoed": frames},
				}})
			}
		default:
			fmt.Printf("[ECHO] Ignoring message type: %s\n", msg.Type)
		}
	}
}

func send(conn *websocket.Conn, msg message) {
	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Printf("[ECHO] Marshal error: %v\n", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		fmt.Printf("[ECHO] WriteMessage error: %v\n", err)
	}
}
