package server

import (
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"encoding/json"
	"net/http"
)

// MonitoringServer exposes the relay counters over gRPC and as JSON on /api/monitoring.
type MonitoringServer struct {
	stats   func() runtime.Stats
	monitor *observability.MonitoringManager
}

// NewMonitoringServer takes the live stats source. monitor may be nil.
func NewMonitoringServer(stats func() runtime.Stats, monitor *observability.MonitoringManager) *MonitoringServer {
	return &MonitoringServer{stats: stats, monitor: monitor}
}

func (s *MonitoringServer) GetStats(_ context.Context, _ *api.GetStatsRequest) (*api.StatsResponse, error) {
	return s.snapshot()
}

func (s *MonitoringServer) snapshot() (*api.StatsResponse, error) {
	stats := s.stats()
	response := &api.StatsResponse{
		Sessions:        stats.Sessions,
		OnlineUsers:     stats.OnlineUsers,
		ActiveRooms:     stats.ActiveRooms,
		PendingPresence: stats.PendingPresence,
		Counters:        stats.Counters,
	}
	if s.monitor != nil {
		raw, err := json.Marshal(s.monitor.GetLatest())
		if err != nil {
			return nil, err
		}
		response.Monitoring = raw
	}
	return response, nil
}

// ServeHTTP renders the same snapshot for the debug server.
func (s *MonitoringServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snapshot, err := s.snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}
