package auditlog

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		OccurredAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DeployID:    "d-1",
		Environment: "DEV",
		Stage:       "v0",
		Region:      "eu-west-1",
		Kind:        "api",
		EntityID:    "public",
		Operation:   "Creation",
		Outcome:     OutcomeSucceeded,
	}
}

func TestValidate(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	cases := map[string]func(*Event){
		"no deploy id": func(e *Event) { e.DeployID = " " },
		"no entity":    func(e *Event) { e.EntityID = "" },
		"no region":    func(e *Event) { e.Region = "" },
		"bad outcome":  func(e *Event) { e.Outcome = "partial" },
		"no time":      func(e *Event) { e.OccurredAt = time.Time{} },
	}
	for name, mutate := range cases {
		e := validEvent()
		mutate(&e)
		if err := e.Validate(); err == nil {
			t.Fatalf("%s: Validate() err=nil", name)
		}
	}
}

func TestComputeIntegritySHA256(t *testing.T) {
	payload := []byte(`{"name":"Public (DEV-public)"}`)
	a, err := ComputeIntegritySHA256(validEvent(), payload)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if len(a) != 64 {
		t.Fatalf("digest=%q, want 64 hex chars", a)
	}

	padded := validEvent()
	padded.EntityID = "  public "
	b, _ := ComputeIntegritySHA256(padded, payload)
	if a != b {
		t.Fatalf("digest depends on surrounding whitespace")
	}

	failed := validEvent()
	failed.Outcome = OutcomeFailed
	c, _ := ComputeIntegritySHA256(failed, payload)
	if a == c {
		t.Fatalf("digest ignores outcome")
	}
}

type panicQuery struct{}

func (panicQuery) QueryRowContext(context.Context, string, ...any) *sql.Row {
	panic("query must not run for an invalid event")
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	if _, err := Insert(context.Background(), nil, validEvent()); err == nil {
		t.Fatalf("Insert(nil) err=nil")
	}
	e := validEvent()
	e.Kind = ""
	if _, err := Insert(context.Background(), panicQuery{}, e); err == nil {
		t.Fatalf("Insert() err=nil for invalid event")
	}
}
