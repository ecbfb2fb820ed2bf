package repositories

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"collab-chat/internal/models"
)

// UpdateRepository persists the message log of relay rooms. Presence updates
// are soft state and are never stored.
type UpdateRepository interface {
	AppendUpdates(ctx context.Context, room string, updates []models.Update) error
	ListUpdates(ctx context.Context, room string) ([]models.Update, error)
}

// UpdateRepo is a sqlx-backed repository.
type UpdateRepo struct {
	db *sqlx.DB
}

// NewUpdateRepo constructs UpdateRepo.
func NewUpdateRepo(db *sqlx.DB) *UpdateRepo {
	return &UpdateRepo{db: db}
}

type updateRow struct {
	Room     string `db:"room"`
	ClientID string `db:"client_id"`
	Clock    int64  `db:"clock"`
	Payload  []byte `db:"payload"`
}

// AppendUpdates stores message updates. Re-delivered updates are ignored.
func (r *UpdateRepo) AppendUpdates(ctx context.Context, room string, updates []models.Update) error {
	rows := make([]updateRow, 0, len(updates))
	for _, u := range updates {
		if u.Kind != models.UpdateMessage || u.Message == nil {
			continue
		}
		payload, err := json.Marshal(u.Message)
		if err != nil {
			return errors.Wrap(err, "encode message")
		}
		rows = append(rows, updateRow{Room: room, ClientID: u.ClientID, Clock: int64(u.Clock), Payload: payload})
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO room_updates (room, client_id, clock, payload)
            VALUES (:room, :client_id, :clock, :payload)
            ON CONFLICT (room, client_id, clock) DO NOTHING`, row); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "insert room update")
		}
	}
	return errors.Wrap(tx.Commit(), "commit room updates")
}

// ListUpdates returns the stored message updates of room in version order.
func (r *UpdateRepo) ListUpdates(ctx context.Context, room string) ([]models.Update, error) {
	var rows []updateRow
	err := r.db.SelectContext(ctx, &rows, `SELECT room, client_id, clock, payload
        FROM room_updates
        WHERE room=$1
        ORDER BY clock ASC, client_id ASC`, room)
	if err != nil {
		return nil, errors.Wrap(err, "select room updates")
	}

	updates := make([]models.Update, 0, len(rows))
	for _, row := range rows {
		var msg models.Message
		if err := json.Unmarshal(row.Payload, &msg); err != nil {
			return nil, errors.Wrapf(err, "decode update %s:%d", row.ClientID, row.Clock)
		}
		updates = append(updates, models.Update{
			Kind:     models.UpdateMessage,
			Clock:    uint64(row.Clock),
			ClientID: row.ClientID,
			Message:  &msg,
		})
	}
	return updates, nil
}
