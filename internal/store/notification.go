package store

// Append persists a notification. Idempotent: re-appending an existing
// (identity, id) pair is a no-op. Returns whether a new row was inserted,
// which is how the ingestor detects duplicate deliveries.
func (db *DB) Append(n *Notification) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO notifications (identity, id, type, title, message, related_request_id, raw_payload, received_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity, id) DO NOTHING`,
		n.Identity, n.ID, string(n.Type), n.Title, n.Message, n.RelatedRequestID, n.RawPayload, n.ReceivedAt, n.Read)
	if err != nil {
		return false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return inserted > 0, nil
}

// List returns an identity's notifications newest-first, optionally filtered
// by type and read state.
func (db *DB) List(identity string, filter *ListFilter) ([]Notification, error) {
	query := `
		SELECT id, identity, type, title, message, related_request_id, raw_payload, received_at, is_read
		FROM notifications
		WHERE identity = ?`
	args := []any{identity}

	if filter != nil {
		if filter.Type != nil {
			query += " AND type = ?"
			args = append(args, string(*filter.Type))
		}
		if filter.Read != nil {
			query += " AND is_read = ?"
			args = append(args, *filter.Read)
		}
	}
	query += " ORDER BY received_at DESC, rowid DESC"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Notification
	for rows.Next() {
		var n Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.Identity, &typ, &n.Title, &n.Message, &n.RelatedRequestID, &n.RawPayload, &n.ReceivedAt, &n.Read); err != nil {
			return nil, err
		}
		n.Type = Type(typ)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one notification as read. The raw payload is never touched.
func (db *DB) MarkRead(identity, id string) error {
	_, err := db.Exec(`UPDATE notifications SET is_read = 1 WHERE identity = ? AND id = ?`, identity, id)
	return err
}

// MarkAllRead flags every notification for the identity as read.
func (db *DB) MarkAllRead(identity string) error {
	_, err := db.Exec(`UPDATE notifications SET is_read = 1 WHERE identity = ?`, identity)
	return err
}

// UnreadCount returns the badge count for an identity.
func (db *DB) UnreadCount(identity string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE identity = ? AND is_read = 0`, identity).Scan(&count)
	return count, err
}

// ClearAll irreversibly deletes every notification for the identity.
// Used only on explicit user action.
func (db *DB) ClearAll(identity string) error {
	_, err := db.Exec(`DELETE FROM notifications WHERE identity = ?`, identity)
	return err
}
