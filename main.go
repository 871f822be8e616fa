package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/mrsingh-rishi/voice-web/auth"
	"github.com/mrsingh-rishi/voice-web/config"
	"github.com/mrsingh-rishi/voice-web/conversation"
	"github.com/mrsingh-rishi/voice-web/store"
)

type visitorResponse struct {
	VisitorID string `json:"visitorId"`
	Token     string `json:"token"`
}

type transcriptResponse struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

func main() {
	cfg := config.Load()

	if cfg.OpenAIAPIKey == "" {
		log.Println("OPEN_AI_API_KEY not set, transcription runs in dummy mode")
	}
	if cfg.ElevenLabsAPIKey == "" {
		log.Println("ELEVEN_LABS_API_KEY not set, response pipeline disabled")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("store open: %v", err)
	}
	defer st.Close()
	if !st.IsAvailable() {
		log.Println("Store degraded to in-memory mode; nothing will persist")
	}

	tokens := auth.NewVisitorTokens(cfg.JWTSecret)

	app := fiber.New()

	// POST /visitors — mints a visitor identity for a new browser.
	app.Post("/visitors", func(c *fiber.Ctx) error {
		visitorID, token, err := tokens.Mint()
		if err != nil {
			log.Printf("visitor mint error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to mint visitor"})
		}
		return c.JSON(visitorResponse{VisitorID: visitorID, Token: token})
	})

	// GET /sessions/:id/transcript — latest persisted transcript.
	app.Get("/sessions/:id/transcript", func(c *fiber.Ctx) error {
		sessionID := c.Params("id")
		tr, err := st.LatestTranscript(sessionID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no transcript for session"})
		}
		return c.JSON(transcriptResponse{
			SessionID: tr.SessionID,
			Text:      tr.Text,
			CreatedAt: tr.CreatedAt.UnixMilli(),
		})
	})

	// Require WebSocket upgrade and a valid visitor token on /stream.
	app.Use("/stream", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		visitorID, err := tokens.Verify(c.Query("token"))
		if err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals("visitorId", visitorID)
		return c.Next()
	})

	// WebSocket handler for browser media streams.
	app.Get("/stream", websocket.New(func(ws *websocket.Conn) {
		visitorID, _ := ws.Locals("visitorId").(string)
		log.Printf("WebSocket /stream connected (visitor=%s)", visitorID)

		conv, err := conversation.New(ws, cfg, st, visitorID)
		if err != nil {
			log.Printf("conversation setup error: %v", err)
			ws.Close()
			return
		}
		conv.Run()
	}))

	log.Printf("voice-web listening on %s", cfg.Addr)
	log.Fatal(app.Listen(cfg.Addr))
}
