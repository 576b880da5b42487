package models

import "github.com/google/uuid"

// ensureID assigns a client-side UUID when the row has none. Postgres also
// defaults ids via gen_random_uuid(), but SQLite does not.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
