package database

import (
	"database/sql"
	"fmt"
	"time"
)

const getMessageQuery = `
	SELECT m.id, m.room_id, m.account_id, a.username, m.content, m.created_at,
			p.id, p.content, pa.username
	FROM messages m
	JOIN accounts a ON m.account_id = a.id
	LEFT JOIN messages p ON m.parent_id = p.id
	LEFT JOIN accounts pa ON p.account_id = pa.id
`

func (db *PgChambersRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, username, email",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
	)

	return a, err
}

func (db *PgChambersRepository) GetAccountById(id int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgChambersRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
	)

	return a, err
}

func (db *PgChambersRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (name, slug, description, owner_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, name, slug, description, owner_id, created_at",
		params.Name,
		params.Slug,
		params.Description,
		params.OwnerId,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.Name,
		&room.Slug,
		&room.Description,
		&room.OwnerId,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgChambersRepository) GetRoomBySlug(slug string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, slug, description, owner_id, created_at FROM rooms "+
			"WHERE slug = $1 LIMIT 1",
		slug,
	)

	var room Room
	var ownerId sql.NullInt64
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Slug,
		&room.Description,
		&ownerId,
		&room.CreatedAt,
	)
	room.OwnerId = int(ownerId.Int64)

	return room, err
}

func (db *PgChambersRepository) ListRooms() ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, slug, description, owner_id, created_at FROM rooms ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		var ownerId sql.NullInt64
		if err = rows.Scan(&room.Id, &room.Name, &room.Slug, &room.Description, &ownerId, &room.CreatedAt); err != nil {
			break
		}

		room.OwnerId = int(ownerId.Int64)
		rooms = append(rooms, room)
	}

	return rooms, err
}

// DeleteRoom removes a room along with its messages and reactions, which
// cascade at the schema level.
func (db *PgChambersRepository) DeleteRoom(id int) error {
	_, err := db.conn.Exec("DELETE FROM rooms WHERE id = $1", id)
	return err
}

func (db *PgChambersRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	var parentId sql.NullInt64
	if params.ParentId > 0 {
		parentId = sql.NullInt64{Int64: params.ParentId, Valid: true}
	}

	res := db.conn.QueryRow(
		"INSERT INTO messages (room_id, account_id, content, parent_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, room_id, account_id, content, created_at",
		params.RoomId,
		params.AccountId,
		params.Content,
		parentId,
		params.CreatedAt,
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.AccountId,
		&msg.Content,
		&msg.CreatedAt,
	)
	msg.ParentId = params.ParentId

	return msg, err
}

// GetMessageInRoom fetches a message by id scoped to a room. A message
// from another room is treated as not found.
func (db *PgChambersRepository) GetMessageInRoom(messageId int64, roomId int) (Message, error) {
	row := db.conn.QueryRow(
		getMessageQuery+" WHERE m.id = $1 AND m.room_id = $2 LIMIT 1",
		messageId,
		roomId,
	)

	return scanMessage(row)
}

func (db *PgChambersRepository) GetMessages(roomId, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		getMessageQuery+" WHERE m.room_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2",
		roomId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg            Message
		parentId       sql.NullInt64
		parentContent  sql.NullString
		parentUsername sql.NullString
	)

	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.AccountId,
		&msg.Username,
		&msg.Content,
		&msg.CreatedAt,
		&parentId,
		&parentContent,
		&parentUsername,
	)
	if err != nil {
		return Message{}, err
	}

	if parentId.Valid {
		msg.ParentId = parentId.Int64
		msg.ParentContent = parentContent.String
		msg.ParentUsername = parentUsername.String
	}

	return msg, nil
}

func (db *PgChambersRepository) GetReactionCounts(messageId int64) ([]ReactionCount, error) {
	rows, err := db.conn.Query(
		"SELECT emoji, COUNT(*) FROM reactions WHERE message_id = $1 GROUP BY emoji ORDER BY emoji",
		messageId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []ReactionCount
	for rows.Next() {
		var rc ReactionCount
		if err := rows.Scan(&rc.Emoji, &rc.Count); err != nil {
			return nil, err
		}

		counts = append(counts, rc)
	}

	return counts, rows.Err()
}

// ToggleReaction removes the (message, account, emoji) reaction if it
// exists, otherwise creates it. It returns true when the reaction was
// added. The unique constraint on the triple keeps concurrent toggles
// from double-inserting.
func (db *PgChambersRepository) ToggleReaction(messageId int64, accountId int, emoji string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.Exec(
		"DELETE FROM reactions WHERE message_id = $1 AND account_id = $2 AND emoji = $3",
		messageId,
		accountId,
		emoji,
	)
	if err != nil {
		return false, err
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	added := deleted == 0
	if added {
		_, err = tx.Exec(
			"INSERT INTO reactions (message_id, account_id, emoji, created_at) VALUES ($1, $2, $3, $4)",
			messageId,
			accountId,
			emoji,
			time.Now().UTC(),
		)
		if err != nil {
			return false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return false, err
	}

	return added, nil
}

func (db *PgChambersRepository) CountReactions(messageId int64, emoji string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM reactions WHERE message_id = $1 AND emoji = $2",
		messageId,
		emoji,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}
