package models

import "github.com/google/uuid"

// ensureID assigns a client-side UUID so rows can be referenced before the
// insert returns and so non-Postgres test databases behave the same way.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
