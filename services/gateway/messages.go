package gateway

import "errors"

const defaultUserMessage = "An unknown error occurred, please try again later"

var userMessages = map[string]string{
	"OPERATION_FAILED": "Operation failed",
	"INVALID_PARAMS":   "Invalid request parameters",
	"INTERNAL_SERVER":  "Internal server error",
	"NOT_FOUND":        "Resource not found",
	"FORBIDDEN":        "Access forbidden",

	"UNAUTHORIZED":   "Unauthorized request",
	"LOGIN_FAILED":   "Login failed",
	"LOGIN_EXPIRED":  "Login has expired",
	"NO_PERMISSION":  "You do not have permission to do that",
	"INVALID_TOKEN":  "Invalid token",
	"INVALID_ORIGIN": "Invalid origin",

	"USER_NOT_FOUND":  "User does not exist",
	"USERNAME_EXISTS": "Username already exists",
	"EMAIL_EXISTS":    "Email already exists",

	"FRIEND_EXISTS":            "Already friends",
	"FRIEND_REQUEST_EXISTS":    "Friend request already sent",
	"FRIEND_REQUEST_NOT_FOUND": "Friend request does not exist",
	"NOT_FRIENDS":              "Not friends",

	"SERVER_NOT_FOUND":     "Server does not exist",
	"NO_SERVER_PERMISSION": "You cannot manage this server",
	"CREATE_SERVER_FAILED": "Failed to create server",

	"CHANNEL_NOT_FOUND":     "Channel does not exist",
	"CREATE_CHANNEL_FAILED": "Failed to create channel",

	"SEND_MESSAGE_FAILED": "Failed to send message",
	"GET_MESSAGES_FAILED": "Failed to load messages",

	"ROOM_NOT_FOUND": "Chat room does not exist",
}

// UserMessage turns any gateway error into text fit for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	switch {
	case errors.Is(err, ErrConnectivity):
		return "Network error, please check your connection"
	case errors.Is(err, ErrRefreshFailed):
		return userMessages["LOGIN_EXPIRED"]
	case errors.As(err, &apiErr):
		if msg, ok := userMessages[apiErr.Code]; ok {
			return msg
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return defaultUserMessage
}
