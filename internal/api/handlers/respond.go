package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/junwei-liu/docgate/internal/i18n"
)

// Responses use a uniform envelope:
//
//	{"status":"success","data":...,"metadata":...}
//	{"status":"error","error":"<code>","details":"<localized message>"}

type successEnvelope struct {
	Status   string `json:"status"`
	Data     any    `json:"data"`
	Metadata any    `json:"metadata,omitempty"`
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details"`
}

func writeSuccess(w http.ResponseWriter, status int, data, metadata any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(successEnvelope{Status: "success", Data: data, Metadata: metadata}); err != nil {
		log.Printf("WARN: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, language string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Status:  "error",
		Error:   code,
		Details: i18n.Message(code, language),
	})
}
