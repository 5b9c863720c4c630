package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends audit events inside the caller's transaction so that a state
// change and its event row commit or roll back together.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
