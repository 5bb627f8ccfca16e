package database

// Contact is another user the account has added
type Contact struct {
	UserID   int64
	Username string
}

// AddContact links two users both ways. Adding an existing contact is a no-op.
func (db *DB) AddContact(userID, contactID int64) error {
	now := nowMillis()
	tx, err := db.writeConn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, pair := range [][2]int64{{userID, contactID}, {contactID, userID}} {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO contacts (user_id, contact_id, created_at) VALUES (?, ?, ?)",
			pair[0], pair[1], now,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Contacts lists the user's contacts ordered by username
func (db *DB) Contacts(userID int64) ([]*Contact, error) {
	rows, err := db.conn.Query(`
		SELECT u.id, u.username
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = ?
		ORDER BY u.username`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.UserID, &c.Username); err != nil {
			return nil, err
		}
		contacts = append(contacts, &c)
	}
	return contacts, rows.Err()
}
