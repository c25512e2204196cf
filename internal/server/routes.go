package server

import (
	"net/http"
)

func SetupRoutes(analysisHandler *AnalysisService) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /analyses", analysisHandler.CreateAnalysis)
	mux.HandleFunc("GET /analyses/{id}", analysisHandler.GetAnalysis)
	mux.HandleFunc("POST /analyses/{id}/confirm", analysisHandler.ConfirmAnalysis)
	mux.HandleFunc("GET /health", analysisHandler.Health)

	return mux
}
