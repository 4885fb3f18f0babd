package main

import (
	"os"
	"strconv"

	"factorsim/api"
	"factorsim/internal/logger"
)

func main() {
	log := logger.New()

	port := 3009
	if p := os.Getenv("PORT"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			log.Fatalf("bad PORT %q: %v", p, err)
		}
		port = parsed
	}

	handler := api.ApiHandler{Log: log}
	log.Infow("starting api", "port", port)
	if err := handler.StartApi(port); err != nil {
		log.Fatal(err)
	}
}
