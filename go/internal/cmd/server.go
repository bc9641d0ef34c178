package main

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/liveauction/go/internal/config"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	router := mux.NewRouter()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Origins(),
		AllowedHeaders: []string{"*"},
	})

	// Register services
	services.Gateway.RegisterRoutes(router)

	// Wrap with CORS
	handler := c.Handler(router)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
