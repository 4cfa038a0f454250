package main

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/vaultsync/pkg/log"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.Warn().Err(err).Msg("failed to write JSON response")
	}
}
