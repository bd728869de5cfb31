package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool, verifies connectivity, and creates
// the tables when they do not exist yet.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Postgres{db: db}
	if err := s.createTables(ctx); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Postgres) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT UNIQUE NOT NULL,
			body_color    TEXT NOT NULL DEFAULT '#3B82F6',
			last_seen_at  TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id          TEXT PRIMARY KEY,
			slug        TEXT UNIQUE NOT NULL,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id    TEXT REFERENCES users(id) ON DELETE SET NULL,
			is_public   BOOLEAN NOT NULL DEFAULT TRUE,
			width       INTEGER NOT NULL,
			height      INTEGER NOT NULL,
			tiles       JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id           TEXT PRIMARY KEY,
			room_id      TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			author_id    TEXT REFERENCES users(id) ON DELETE SET NULL,
			author_name  TEXT NOT NULL,
			author_color TEXT NOT NULL,
			content      TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS messages_room_created_idx
			ON messages (room_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const roomColumns = `id, slug, name, description, owner_id, is_public, width, height, tiles, created_at`

func (s *Postgres) scanRoom(row interface{ Scan(dest ...any) error }) (*Room, error) {
	var (
		r        Room
		rawTiles []byte
	)
	err := row.Scan(&r.ID, &r.Slug, &r.Name, &r.Description, &r.OwnerID, &r.IsPublic, &r.Width, &r.Height, &rawTiles, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(rawTiles, &r.Tiles); err != nil {
		return nil, fmt.Errorf("failed to decode tiles for room %s: %w", r.ID, err)
	}
	return &r, nil
}

func (s *Postgres) FindRoomBySlug(ctx context.Context, slug string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE slug = $1`
	room, err := s.scanRoom(s.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find room by slug: %w", err)
	}
	return room, nil
}

func (s *Postgres) FindRoomByID(ctx context.Context, id string) (*Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	room, err := s.scanRoom(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find room by id: %w", err)
	}
	return room, nil
}

func (s *Postgres) ListPublicRooms(ctx context.Context) ([]Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE is_public ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list public rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := s.scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func (s *Postgres) RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	query := `
		SELECT id, room_id, author_id, author_name, author_color, content, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.AuthorID, &m.AuthorName, &m.AuthorColor, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Postgres) InsertMessage(ctx context.Context, roomID string, authorID *string, nameSnapshot, colorSnapshot, content string) (*Message, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	query := `
		INSERT INTO messages (id, room_id, author_id, author_name, author_color, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, room_id, author_id, author_name, author_color, content, created_at
	`
	m := &Message{}
	err := s.db.QueryRowContext(ctx, query, id, roomID, authorID, nameSnapshot, colorSnapshot, content, now).Scan(
		&m.ID, &m.RoomID, &m.AuthorID, &m.AuthorName, &m.AuthorColor, &m.Content, &m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

func (s *Postgres) TouchLastSeen(ctx context.Context, agentID string) error {
	query := `UPDATE users SET last_seen_at = now() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, agentID); err != nil {
		return fmt.Errorf("failed to touch last seen: %w", err)
	}
	return nil
}

func (s *Postgres) FindUserByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, username FROM users WHERE id = $1`
	u := &User{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

func (s *Postgres) CreateRoom(ctx context.Context, room *Room) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	rawTiles, err := json.Marshal(room.Tiles)
	if err != nil {
		return fmt.Errorf("failed to encode tiles: %w", err)
	}

	query := `
		INSERT INTO rooms (id, slug, name, description, owner_id, is_public, width, height, tiles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		room.ID, room.Slug, room.Name, room.Description, room.OwnerID,
		room.IsPublic, room.Width, room.Height, rawTiles, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error {
	return s.db.Close()
}
