package models

// All returns every model the service migrates.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Post{},
		&Comment{},
		&Group{},
		&Event{},
		&ModerationCase{},
		&AuditLogEntry{},
		&Notification{},
	}
}
