package handlers

import "net/http"

func NewRouter(v1Handler *V1Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthCheck)
	mux.HandleFunc("POST /v1/{kind}/{id}/video", v1Handler.UploadVideo)
	mux.HandleFunc("POST /v1/{kind}/{id}/thumbnail", v1Handler.UploadThumbnail)
	mux.HandleFunc("GET /v1/{kind}/{id}/stream", v1Handler.StreamContent)
	mux.HandleFunc("GET /v1/{kind}/{id}/progress", v1Handler.TranscodeProgress)
	return mux
}
