package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type ingestEvent struct {
	DocumentID  string    `json:"document_id"`
	PublishedAt time.Time `json:"published_at"`
}

func encodeIngestEvent(documentID string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode ingest event", errors.New("document id is required"))
	}
	data, err := json.Marshal(ingestEvent{DocumentID: documentID, PublishedAt: at})
	if err != nil {
		return nil, fmt.Errorf("marshal ingest event: %w", err)
	}
	return data, nil
}

// decodeIngestEvent also accepts a bare document id.
func decodeIngestEvent(data []byte) (ingestEvent, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return ingestEvent{}, errors.New("empty ingest event")
	}
	if !strings.HasPrefix(raw, "{") {
		return ingestEvent{DocumentID: raw}, nil
	}

	var event ingestEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return ingestEvent{}, fmt.Errorf("unmarshal ingest event: %w", err)
	}
	if strings.TrimSpace(event.DocumentID) == "" {
		return ingestEvent{}, errors.New("ingest event has no document_id")
	}
	return event, nil
}
