package models

import (
	"fmt"
	"strings"
	"time"
)

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // event.discovered, cutout.requested, cutout.completed
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// SolarEvent is a feature detection returned by the HEK search provider.
// EventID is the SOL standard identifier with ':' replaced by '-' so it can
// be embedded in file paths.
type SolarEvent struct {
	EventID     string    `json:"event_id"`
	SOLStandard string    `json:"sol_standard"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`

	CoordUnit string  `json:"coord_unit"`
	XMin      float64 `json:"x_min"`
	XMax      float64 `json:"x_max"`
	YMin      float64 `json:"y_min"`
	YMax      float64 `json:"y_max"`

	HPCX float64 `json:"hpc_x"`
	HPCY float64 `json:"hpc_y"`
	HGCX float64 `json:"hgc_x"`
	HGCY float64 `json:"hgc_y"`

	FRMIdentifier string `json:"frm_identifier"`
	SearchFRMName string `json:"search_frm_name"`
	Description   string `json:"description"`
	Source        string `json:"source"`

	Raw map[string]interface{} `json:"raw,omitempty"`
}

// SolarEventFromHEK maps one entry of the provider's `result` array onto a
// SolarEvent. timeFormat is the HEK timestamp layout from configuration.
func SolarEventFromHEK(h map[string]interface{}, timeFormat, source string) (SolarEvent, error) {
	sol, ok := h["SOL_standard"].(string)
	if !ok || sol == "" {
		return SolarEvent{}, fmt.Errorf("event record missing SOL_standard")
	}

	start, err := time.Parse(timeFormat, stringField(h, "event_starttime"))
	if err != nil {
		return SolarEvent{}, fmt.Errorf("parsing event_starttime for %s: %w", sol, err)
	}
	end, err := time.Parse(timeFormat, stringField(h, "event_endtime"))
	if err != nil {
		return SolarEvent{}, fmt.Errorf("parsing event_endtime for %s: %w", sol, err)
	}

	return SolarEvent{
		EventID:       strings.ReplaceAll(sol, ":", "-"),
		SOLStandard:   sol,
		StartTime:     start,
		EndTime:       end,
		CoordUnit:     stringField(h, "event_coordunit"),
		XMin:          floatField(h, "boundbox_c1ll"),
		XMax:          floatField(h, "boundbox_c1ur"),
		YMin:          floatField(h, "boundbox_c2ll"),
		YMax:          floatField(h, "boundbox_c2ur"),
		HPCX:          floatField(h, "hpc_x"),
		HPCY:          floatField(h, "hpc_y"),
		HGCX:          floatField(h, "hgc_x"),
		HGCY:          floatField(h, "hgc_y"),
		FRMIdentifier: stringField(h, "frm_identifier"),
		SearchFRMName: stringField(h, "search_frm_name"),
		Description:   stringField(h, "event_description"),
		Source:        source,
		Raw:           h,
	}, nil
}

// FitsFile is one data product produced by a cutout job. SourceURL is the
// natural key: two records with the same source URL refer to the same file.
type FitsFile struct {
	ID             uint   `json:"id,omitempty"`
	EventID        string `json:"event_id,omitempty"`
	CutoutJobID    string `json:"cutout_job_id"`
	ServerFileName string `json:"server_file_name"`
	SourceURL      string `json:"source_url"`
	FilePath       string `json:"file_path"`
}

func stringField(h map[string]interface{}, key string) string {
	if v, ok := h[key].(string); ok {
		return v
	}
	return ""
}

func floatField(h map[string]interface{}, key string) float64 {
	switch v := h[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64
		fmt.Sscanf(v, "%g", &f)
		return f
	}
	return 0
}
