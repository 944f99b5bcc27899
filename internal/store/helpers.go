package store

import (
	"database/sql"
	"encoding/json"

	"go.mau.fi/whatsmeow/types"
)

// Helper functions for null-safe SQL operations

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJID(jid types.JID) sql.NullString {
	if jid.IsEmpty() {
		return sql.NullString{}
	}
	return sql.NullString{String: jid.String(), Valid: true}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func parseJID(s string) types.JID {
	jid, _ := types.ParseJID(s)
	return jid
}

func parseNullJID(ns sql.NullString) types.JID {
	if !ns.Valid || ns.String == "" {
		return types.JID{}
	}
	return parseJID(ns.String)
}

func stringOrEmpty(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func jsonMarshal(v interface{}) []byte {
	if v == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}
