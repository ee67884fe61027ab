package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/hericmr/geosantos-sub000/internal/geosantos"
	"github.com/hericmr/geosantos-sub000/internal/session"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse maps each checked dependency to its status.
type HealthResponse map[string]struct {
	Status    string `json:"status" enum:"ok,error"`
	LatencyMs int64  `json:"latencyMs"`
}

type sessionPath struct {
	ID string `path:"id" format:"uuid"`
}

type clickOperation struct {
	ID string `path:"id" format:"uuid"`
	ClickRequest
}

type leaderboardQuery struct {
	Mode  geosantos.Mode `query:"mode" enum:"regions,landmarks"`
	Limit int            `query:"limit" minimum:"1" maximum:"100"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Geosantos API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Round coordination backend for the Santos geography quiz.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/regions
	getRegions, _ := r.NewOperationContext(http.MethodGet, "/api/regions")
	getRegions.SetSummary("List regions")
	getRegions.SetDescription("Returns every neighbourhood boundary as a GeoJSON FeatureCollection.")
	getRegions.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("application/geo+json"))
	_ = r.AddOperation(getRegions)

	// GET /api/landmarks
	getLandmarks, _ := r.NewOperationContext(http.MethodGet, "/api/landmarks")
	getLandmarks.SetSummary("List landmarks")
	getLandmarks.AddRespStructure([]LandmarkResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getLandmarks)

	// GET /api/leaderboard
	getLeaderboard, _ := r.NewOperationContext(http.MethodGet, "/api/leaderboard")
	getLeaderboard.SetSummary("Leaderboard")
	getLeaderboard.SetDescription("Best finished games, highest score first.")
	getLeaderboard.AddReqStructure(leaderboardQuery{})
	getLeaderboard.AddRespStructure([]geosantos.LeaderboardEntry{}, openapi.WithHTTPStatus(http.StatusOK))
	getLeaderboard.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getLeaderboard)

	// POST /api/sessions
	postSession, _ := r.NewOperationContext(http.MethodPost, "/api/sessions")
	postSession.SetSummary("Start a session")
	postSession.SetDescription("Creates a session and opens round one. Mode defaults to regions.")
	postSession.AddReqStructure(CreateSessionRequest{})
	postSession.AddRespStructure(session.State{}, openapi.WithHTTPStatus(http.StatusCreated))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(postSession)

	// GET /api/sessions/{id}
	getSession, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}")
	getSession.SetSummary("Session state")
	getSession.SetDescription("Phase, round, running score, current target and time left.")
	getSession.AddReqStructure(sessionPath{})
	getSession.AddRespStructure(session.State{}, openapi.WithHTTPStatus(http.StatusOK))
	getSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getSession)

	// DELETE /api/sessions/{id}
	deleteSession, _ := r.NewOperationContext(http.MethodDelete, "/api/sessions/{id}")
	deleteSession.SetSummary("End a session")
	deleteSession.AddReqStructure(sessionPath{})
	deleteSession.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deleteSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteSession)

	// POST /api/sessions/{id}/click
	postClick, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/click")
	postClick.SetSummary("Submit a click")
	postClick.SetDescription("Validates and scores a map click. Clicks outside the waiting phase are dropped with 409.")
	postClick.AddReqStructure(clickOperation{})
	postClick.AddRespStructure(ClickResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postClick.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postClick.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postClick.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postClick.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postClick)

	// POST /api/sessions/{id}/pause
	postPause, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/pause")
	postPause.SetSummary("Pause")
	postPause.SetDescription("Cancels every pending timer and parks the session in idle.")
	postPause.AddReqStructure(sessionPath{})
	postPause.AddRespStructure(session.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postPause.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postPause)

	// POST /api/sessions/{id}/restart
	postRestart, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/restart")
	postRestart.SetSummary("Restart")
	postRestart.SetDescription("Starts a fresh game from round one.")
	postRestart.AddReqStructure(sessionPath{})
	postRestart.AddRespStructure(session.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postRestart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postRestart)

	// GET /api/sessions/{id}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of engine events. The event name is the engine event type.")
	getEvents.AddReqStructure(sessionPath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/sessions/{id}/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/ws")
	getWS.SetSummary("Session WebSocket")
	getWS.SetDescription("Upgrades to a WebSocket carrying engine events out and click, pause, restart and state messages in.")
	getWS.AddReqStructure(sessionPath{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
