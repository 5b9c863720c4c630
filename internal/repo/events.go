package repo

import (
	"context"

	"labelline/internal/domain"
)

// LatestEvents returns the most recent events, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, n int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id, ts, type, COALESCE(project_id,''), entity_kind, COALESCE(entity_id,''), actor_id, payload_json FROM events`
	var clauses []string
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query += " " + joinClauses(clauses) + ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
