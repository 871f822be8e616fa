// voicectl streams an audio file into a running voice-web server and prints
// the transcript events that come back. Useful for exercising the capture
// pipeline without a browser.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	gws "github.com/gorilla/websocket"
)

type visitorResponse struct {
	VisitorID string `json:"visitorId"`
	Token     string `json:"token"`
}

type mediaEvent struct {
	Event string `json:"event"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type serverEvent struct {
	Event     string  `json:"event"`
	SessionID string  `json:"sessionId"`
	Payload   string  `json:"payload"`
	Level     float64 `json:"level"`
}

func main() {
	server := flag.String("server", "localhost:3000", "voice-web host:port")
	file := flag.String("file", "", "audio file to stream (webm); empty sends silence")
	cadence := flag.Duration("cadence", 250*time.Millisecond, "chunk emission cadence")
	chunkSize := flag.Int("chunk-bytes", 4096, "bytes per chunk")
	flag.Parse()

	token, err := mintVisitor(*server)
	if err != nil {
		log.Fatalf("mint visitor: %v", err)
	}

	u := url.URL{Scheme: "ws", Host: *server, Path: "/stream", RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := gws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()

	go printEvents(conn)

	if err := conn.WriteJSON(map[string]string{"event": "start"}); err != nil {
		log.Fatalf("send start: %v", err)
	}

	data := loadAudio(*file, *chunkSize)
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	ticker := time.NewTicker(*cadence)
	defer ticker.Stop()

	offset := 0
stream:
	for offset < len(data) {
		select {
		case <-interrupt:
			break stream
		case <-ticker.C:
			end := offset + *chunkSize
			if end > len(data) {
				end = len(data)
			}
			var ev mediaEvent
			ev.Event = "media"
			ev.Media.Payload = base64.StdEncoding.EncodeToString(data[offset:end])
			if err := conn.WriteJSON(ev); err != nil {
				log.Fatalf("send media: %v", err)
			}
			offset = end
		}
	}

	if err := conn.WriteJSON(map[string]string{"event": "stop"}); err != nil {
		log.Printf("send stop: %v", err)
	}
	// Give the final flush a moment to deliver its transcript.
	time.Sleep(3 * time.Second)
}

func mintVisitor(server string) (string, error) {
	resp, err := http.Post("http://"+server+"/visitors", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	var vr visitorResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return "", err
	}
	return vr.Token, nil
}

func loadAudio(path string, chunkSize int) []byte {
	if path == "" {
		// A minute of zeroes keeps the pipeline ticking in dummy mode.
		return make([]byte, chunkSize*240)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return data
}

func printEvents(conn *gws.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		switch ev.Event {
		case "transcript":
			fmt.Printf("\rtranscript: %s\n", ev.Payload)
		case "rate_limited":
			fmt.Println("! transcription service is rate limiting, backing off")
		case "audio":
			fmt.Printf("audio chunk (%d b64 chars)\n", len(ev.Payload))
		case "mark":
			fmt.Println("-- end of utterance --")
		}
	}
}
