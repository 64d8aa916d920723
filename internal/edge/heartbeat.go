package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/retailpulse/eventpipeline/internal/edgeconfig"
)

const heartbeatInterval = 10 * time.Second
const heartbeatTimeout = 5 * time.Second

type heartbeatRequest struct {
	OrgID      string   `json:"org_id"`
	StoreID    string   `json:"store_id"`
	CameraIDs  []string `json:"camera_ids"`
	Ts         string   `json:"ts"`
}

type heartbeatResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	CamerasCount  int    `json:"cameras_count"`
}

// RunHeartbeat posts {org_id, store_id, camera_ids, ts} to the ingestion
// service every heartbeatInterval until ctx is cancelled.
func RunHeartbeat(ctx context.Context, cfg *edgeconfig.Config, cameraIDs []string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{Timeout: heartbeatTimeout}
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	send := func() {
		body, err := json.Marshal(heartbeatRequest{
			OrgID:     cfg.OrgID,
			StoreID:   cfg.StoreID,
			CameraIDs: cameraIDs,
			Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			logger.Error("heartbeat marshal failed", "error", err)
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.APIBase+"/v1/ingest/heartbeat", bytes.NewReader(body))
		if err != nil {
			logger.Error("heartbeat request build failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

		resp, err := client.Do(req)
		if err != nil {
			logger.Warn("heartbeat failed", "error", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			logger.Warn("heartbeat returned non-2xx", "status", resp.StatusCode)
			return
		}
		var parsed heartbeatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			logger.Warn("heartbeat response decode failed", "error", err)
		}
	}

	send()
	for {
		select {
		case <-ticker.C:
			send()
		case <-ctx.Done():
			return
		}
	}
}
