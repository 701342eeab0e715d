package storage

import (
	"encoding/json"
	"fmt"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// Converters between GORM models and domain types. Kept separate so the
// domain never sees persistence tags.

func toJobModel(j *domain.IngestionJob) JobModel {
	return JobModel{
		ID:             j.ID,
		Kind:           j.Kind,
		Status:         j.Status,
		Phase:          j.Phase,
		StartedAt:      j.StartedAt,
		EndedAt:        j.EndedAt,
		Heartbeat:      j.Heartbeat,
		Error:          j.Error,
		ItemsProcessed: j.ItemsProcessed,
		ItemsAdded:     j.ItemsAdded,
		ItemsUpdated:   j.ItemsUpdated,
		ItemsUnchanged: j.ItemsUnchanged,
		ItemsErrored:   j.ItemsErrored,
		TotalExpected:  j.TotalExpected,
	}
}

func toJobDomain(m *JobModel) domain.IngestionJob {
	return domain.IngestionJob{
		ID:             m.ID,
		Kind:           m.Kind,
		Status:         m.Status,
		Phase:          m.Phase,
		StartedAt:      m.StartedAt,
		EndedAt:        m.EndedAt,
		Heartbeat:      m.Heartbeat,
		Error:          m.Error,
		ItemsProcessed: m.ItemsProcessed,
		ItemsAdded:     m.ItemsAdded,
		ItemsUpdated:   m.ItemsUpdated,
		ItemsUnchanged: m.ItemsUnchanged,
		ItemsErrored:   m.ItemsErrored,
		TotalExpected:  m.TotalExpected,
	}
}

func toLogModel(e *domain.JobLogEntry) JobLogModel {
	meta := ""
	if len(e.Metadata) > 0 {
		data, _ := json.Marshal(e.Metadata)
		meta = string(data)
	}
	return JobLogModel{
		ID:       e.ID,
		JobID:    e.JobID,
		Time:     e.Time,
		Level:    e.Level,
		Message:  e.Message,
		Metadata: meta,
	}
}

func toLogDomain(m *JobLogModel) domain.JobLogEntry {
	entry := domain.JobLogEntry{
		ID:      m.ID,
		JobID:   m.JobID,
		Time:    m.Time,
		Level:   m.Level,
		Message: m.Message,
	}
	if m.Metadata != "" {
		json.Unmarshal([]byte(m.Metadata), &entry.Metadata)
	}
	return entry
}

func toWatchlistModel(w *domain.Watchlist) (WatchlistModel, error) {
	query, err := json.Marshal(&w.Query)
	if err != nil {
		return WatchlistModel{}, fmt.Errorf("failed to marshal watchlist query: %w", err)
	}
	return WatchlistModel{
		ID:         w.ID,
		Name:       w.Name,
		Query:      string(query),
		Enabled:    w.Enabled,
		CreatedAt:  w.CreatedAt,
		LastRun:    w.LastRun,
		MatchCount: w.MatchCount,
	}, nil
}

func toWatchlistDomain(m *WatchlistModel) (*domain.Watchlist, error) {
	w := &domain.Watchlist{
		ID:         m.ID,
		Name:       m.Name,
		Enabled:    m.Enabled,
		CreatedAt:  m.CreatedAt,
		LastRun:    m.LastRun,
		MatchCount: m.MatchCount,
	}
	if m.Query != "" {
		if err := json.Unmarshal([]byte(m.Query), &w.Query); err != nil {
			return nil, fmt.Errorf("failed to unmarshal watchlist query: %w", err)
		}
	}
	return w, nil
}

func toAlertModel(a *domain.Alert) AlertModel {
	return AlertModel{
		ID:            a.ID,
		RecordID:      a.RecordID,
		WatchlistID:   a.WatchlistID,
		WatchlistName: a.WatchlistName,
		Type:          a.Type,
		CreatedAt:     a.CreatedAt,
		Read:          a.Read,
	}
}

func toAlertDomain(m *AlertModel) domain.Alert {
	return domain.Alert{
		ID:            m.ID,
		RecordID:      m.RecordID,
		WatchlistID:   m.WatchlistID,
		WatchlistName: m.WatchlistName,
		Type:          m.Type,
		CreatedAt:     m.CreatedAt,
		Read:          m.Read,
	}
}
