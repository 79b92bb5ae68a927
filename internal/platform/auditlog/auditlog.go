// Package auditlog appends deploy history events. Every row carries a
// SHA-256 over its canonical content so later edits can be detected.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Outcomes recorded for an event.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

type Event struct {
	OccurredAt  time.Time
	DeployID    string
	Environment string
	Stage       string
	Region      string
	// Kind is the entity kind, e.g. "api" or "function".
	Kind      string
	EntityID  string
	Operation string
	Outcome   string
	ErrorCode string
	Payload   any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.DeployID) == "" {
		return errors.New("DeployID is required")
	}
	if strings.TrimSpace(e.Environment) == "" {
		return errors.New("Environment is required")
	}
	if strings.TrimSpace(e.Region) == "" {
		return errors.New("Region is required")
	}
	if strings.TrimSpace(e.Kind) == "" {
		return errors.New("Kind is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		return errors.New("EntityID is required")
	}
	switch e.Outcome {
	case OutcomeSucceeded, OutcomeFailed:
	default:
		return fmt.Errorf("Outcome must be %s or %s", OutcomeSucceeded, OutcomeFailed)
	}
	return nil
}

// Insert stores event and returns its id.
func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return 0, err
	}

	var errorCode sql.NullString
	if strings.TrimSpace(event.ErrorCode) != "" {
		errorCode = sql.NullString{String: strings.TrimSpace(event.ErrorCode), Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO deploy_events (
			occurred_at,
			deploy_id,
			environment,
			stage,
			region,
			kind,
			entity_id,
			operation,
			outcome,
			error_code,
			payload,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING event_id`,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.DeployID),
		strings.TrimSpace(event.Environment),
		strings.TrimSpace(event.Stage),
		strings.TrimSpace(event.Region),
		strings.TrimSpace(event.Kind),
		strings.TrimSpace(event.EntityID),
		strings.TrimSpace(event.Operation),
		event.Outcome,
		errorCode,
		payloadJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert deploy event: %w", err)
	}
	return id, nil
}

func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt  time.Time       `json:"occurred_at"`
		DeployID    string          `json:"deploy_id"`
		Environment string          `json:"environment"`
		Stage       string          `json:"stage,omitempty"`
		Region      string          `json:"region"`
		Kind        string          `json:"kind"`
		EntityID    string          `json:"entity_id"`
		Operation   string          `json:"operation,omitempty"`
		Outcome     string          `json:"outcome"`
		ErrorCode   string          `json:"error_code,omitempty"`
		Payload     json.RawMessage `json:"payload"`
	}

	in := integrityInput{
		OccurredAt:  event.OccurredAt.UTC(),
		DeployID:    strings.TrimSpace(event.DeployID),
		Environment: strings.TrimSpace(event.Environment),
		Stage:       strings.TrimSpace(event.Stage),
		Region:      strings.TrimSpace(event.Region),
		Kind:        strings.TrimSpace(event.Kind),
		EntityID:    strings.TrimSpace(event.EntityID),
		Operation:   strings.TrimSpace(event.Operation),
		Outcome:     event.Outcome,
		ErrorCode:   strings.TrimSpace(event.ErrorCode),
		Payload:     payloadJSON,
	}

	blob, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
