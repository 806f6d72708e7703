package main

import (
	"log"

	"github.com/MrSnakeDoc/folio/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ folio failed to initialize: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ folio failed to start: %v", err)
	}
}
