package message

import (
	"context"
	"database/sql"
	"errors"

	"chatcore/module/chat/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	pkgerrors "github.com/pkg/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_room (
		id              TEXT PRIMARY KEY,
		participant_a   TEXT NOT NULL,
		participant_b   TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		last_message_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS chat_room_participant_a ON chat_room (participant_a)`,
	`CREATE INDEX IF NOT EXISTS chat_room_participant_b ON chat_room (participant_b)`,
	`CREATE TABLE IF NOT EXISTS chat_message (
		id          TEXT PRIMARY KEY,
		room_id     TEXT NOT NULL REFERENCES chat_room (id) ON DELETE CASCADE,
		sender_id   TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		content     TEXT NOT NULL,
		kind        TEXT NOT NULL,
		is_read     BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_message_room_created ON chat_message (room_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS chat_message_unread ON chat_message (receiver_id, room_id) WHERE NOT is_read`,
}

const (
	roomColumns    = `id, participant_a, participant_b, created_at, last_message_at`
	messageColumns = `id, room_id, sender_id, receiver_id, content, kind, is_read, created_at`
)

// SQLStore implements Store on PostgreSQL through database/sql.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Store = (*SQLStore)(nil)

// OpenPostgres opens a pool on the pgx driver and checks it answers.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify(err, "ping postgres")
	}
	return db, nil
}

// Migrate creates the tables and indexes when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify(err, "migrate")
		}
	}
	return nil
}

func (s *SQLStore) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM chat_room WHERE id = $1`, id)
	r, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("room", id)
		}
		return nil, classify(err, "get room")
	}
	return r, nil
}

func (s *SQLStore) CreateRoom(ctx context.Context, r *model.Room) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_room (id, participant_a, participant_b, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.ParticipantA, r.ParticipantB, r.CreatedAt)
	if err != nil {
		return classify(err, "create room")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "create room")
	}
	if n == 0 {
		return ErrRoomExists
	}
	return nil
}

func (s *SQLStore) ListRooms(ctx context.Context, userID string) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM chat_room
		WHERE participant_a = $1 OR participant_b = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC, id`, userID)
	if err != nil {
		return nil, classify(err, "list rooms")
	}
	defer rows.Close()

	out := make([]*model.Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, classify(err, "list rooms")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list rooms")
	}
	return out, nil
}

// DeleteRoom relies on ON DELETE CASCADE for the messages.
func (s *SQLStore) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_room WHERE id = $1`, id)
	if err != nil {
		return classify(err, "delete room")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "delete room")
	}
	if n == 0 {
		return notFound("room", id)
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, m *model.Message) (_ *model.Message, err error) {
	if m, err = prepare(m); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "append")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// GREATEST ignores NULL, so the first message sets the column.
	res, err := tx.ExecContext(ctx,
		`UPDATE chat_room SET last_message_at = GREATEST(last_message_at, $2) WHERE id = $1`,
		m.RoomID, m.CreatedAt)
	if err != nil {
		return nil, classify(err, "append")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, classify(err, "append")
	}
	if n == 0 {
		err = notFound("room", m.RoomID)
		return nil, err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chat_message (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.RoomID, m.SenderID, m.ReceiverID, m.Content, string(m.Kind), m.IsRead, m.CreatedAt); err != nil {
		return nil, classify(err, "append")
	}
	if err = tx.Commit(); err != nil {
		return nil, classify(err, "append")
	}
	return m, nil
}

func (s *SQLStore) MarkAllRead(ctx context.Context, roomID, readerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_message SET is_read = TRUE WHERE room_id = $1 AND receiver_id = $2 AND NOT is_read`,
		roomID, readerID)
	if err != nil {
		return 0, classify(err, "mark read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, "mark read")
	}
	return n, nil
}

func (s *SQLStore) CountUnread(ctx context.Context, roomID, readerID string) (int64, error) {
	return s.count(ctx, "count unread",
		`SELECT COUNT(*) FROM chat_message WHERE room_id = $1 AND receiver_id = $2 AND NOT is_read`,
		roomID, readerID)
}

func (s *SQLStore) CountUnreadTotal(ctx context.Context, userID string) (int64, error) {
	return s.count(ctx, "count unread total",
		`SELECT COUNT(*) FROM chat_message WHERE receiver_id = $1 AND NOT is_read`, userID)
}

func (s *SQLStore) count(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(err, op)
	}
	return n, nil
}

func (s *SQLStore) Page(ctx context.Context, roomID string, offset, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		return []*model.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	return s.messages(ctx, "page",
		`SELECT `+messageColumns+` FROM chat_message WHERE room_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, roomID, limit, offset)
}

func (s *SQLStore) AllOrdered(ctx context.Context, roomID string) ([]*model.Message, error) {
	return s.messages(ctx, "history",
		`SELECT `+messageColumns+` FROM chat_message WHERE room_id = $1
		ORDER BY created_at, id`, roomID)
}

func (s *SQLStore) messages(ctx context.Context, op, query string, args ...any) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	out := make([]*model.Message, 0)
	for rows.Next() {
		var (
			m    model.Message
			kind string
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.ReceiverID, &m.Content, &kind, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, classify(err, op)
		}
		m.Kind = model.MessageKind(kind)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, op)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*model.Room, error) {
	var (
		r    model.Room
		last sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.ParticipantA, &r.ParticipantB, &r.CreatedAt, &last); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	if last.Valid {
		at := last.Time.UTC()
		r.LastMessageAt = &at
	}
	return &r, nil
}
