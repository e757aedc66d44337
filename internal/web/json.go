package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/moragues/pump-controller/internal/engine"
	"github.com/moragues/pump-controller/internal/history"
)

// StatusJSON is the JSON representation of the engine status.
type StatusJSON struct {
	State          string        `json:"state"`
	Maneuver       *ManeuverJSON `json:"maneuver,omitempty"`
	LastStart      string        `json:"last_start,omitempty"`
	Tanks          TanksJSON     `json:"tanks"`
	Connected      bool          `json:"mqtt_connected"`
	RejectedStarts int           `json:"rejected_starts"`
	LastRelayError string        `json:"last_relay_error,omitempty"`
	LastHistoryErr string        `json:"last_history_error,omitempty"`
	Timestamp      string        `json:"timestamp"`
}

// TanksJSON reports both tank readings and their freshness.
type TanksJSON struct {
	Low  TankJSON `json:"low"`
	High TankJSON `json:"high"`
}

// TankJSON is one tank reading.
type TankJSON struct {
	Percentage *float64 `json:"percentage"`
	ObservedAt string   `json:"observed_at,omitempty"`
	Fresh      bool     `json:"fresh"`
}

// ManeuverJSON is the JSON representation of one maneuver, open or closed.
// Field order mirrors the stable history column order.
type ManeuverJSON struct {
	ID         string   `json:"id"`
	StartedAt  string   `json:"started_at"`
	EndedAt    string   `json:"ended_at,omitempty"`
	Trigger    string   `json:"trigger_type"`
	LowStart   *float64 `json:"low_start"`
	HighStart  *float64 `json:"high_start"`
	LowEnd     *float64 `json:"low_end"`
	HighEnd    *float64 `json:"high_end"`
	StopReason string   `json:"stop_reason,omitempty"`
}

func statusJSON(st engine.Status) StatusJSON {
	out := StatusJSON{
		State:          string(st.State),
		Connected:      st.Telemetry.Connected,
		RejectedStarts: st.RejectedStarts,
		LastRelayError: st.LastRelayError,
		LastHistoryErr: st.LastHistoryErr,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Tanks: TanksJSON{
			Low:  tankJSON(st.Telemetry.Low.Percentage, st.Telemetry.Low.ObservedAt, st.Telemetry.LowFresh),
			High: tankJSON(st.Telemetry.High.Percentage, st.Telemetry.High.ObservedAt, st.Telemetry.HighFresh),
		},
	}
	if !st.LastStart.IsZero() {
		out.LastStart = st.LastStart.UTC().Format(time.RFC3339)
	}
	if st.Current != nil {
		m := maneuverJSON(*st.Current)
		out.Maneuver = &m
	}
	return out
}

func tankJSON(pct float64, observedAt time.Time, fresh bool) TankJSON {
	t := TankJSON{Fresh: fresh}
	if !observedAt.IsZero() {
		t.Percentage = &pct
		t.ObservedAt = observedAt.UTC().Format(time.RFC3339)
	}
	return t
}

func maneuverJSON(m history.Maneuver) ManeuverJSON {
	out := ManeuverJSON{
		ID:         m.ID,
		StartedAt:  m.StartedAt.UTC().Format(time.RFC3339),
		Trigger:    string(m.Trigger),
		LowStart:   m.StartLevels.Low,
		HighStart:  m.StartLevels.High,
		LowEnd:     m.EndLevels.Low,
		HighEnd:    m.EndLevels.High,
		StopReason: string(m.StopReason),
	}
	if m.EndedAt != nil {
		out.EndedAt = m.EndedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func historyJSON(records []history.Maneuver) []ManeuverJSON {
	out := make([]ManeuverJSON, 0, len(records))
	for _, m := range records {
		out = append(out, maneuverJSON(m))
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
