package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-reel-lookup/pkg/app"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/config"
	"github.com/wadjakorntonsri/go-reel-lookup/pkg/logger"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	zl, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}

	// Note: On Vercel, db.sqlite is ephemeral unless using a remote libSQL/Postgres URL in DATABASE_URL
	application, err := app.New(cfg, zl)
	if err != nil {
		panic(err)
	}
	mux = application.Handler
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
