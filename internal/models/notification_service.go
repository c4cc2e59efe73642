package models

// NotificationService reports the life cycle of a user action.
// Each id moves through Loading and ends with Success or Error.
type NotificationService interface {
	Loading(id, message string)
	Success(id, message string)
	Error(id, message string)
}
