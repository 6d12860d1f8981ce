package redis

import "strconv"

const keyPrefix = "taskbot:"

// ActiveSessionKey returns the key holding the active session pointer for a user.
func ActiveSessionKey(userKey string) string {
	return keyPrefix + "session:active:" + userKey
}

// SessionCounterKey returns the per-user monotonically increasing session counter key.
func SessionCounterKey(userKey string) string {
	return keyPrefix + "session:counter:" + userKey
}

// HistoryKey returns the key of a session's ordered message list.
func HistoryKey(sessionID string) string {
	return keyPrefix + "history:" + sessionID
}

// PendingKey returns the key of a session's pending action record.
func PendingKey(sessionID string) string {
	return keyPrefix + "pending:" + sessionID
}

// ParamsKey returns the key of a session's partially collected parameters.
func ParamsKey(sessionID string) string {
	return keyPrefix + "params:" + sessionID
}

// DedupKey returns the idempotency marker key for an inbound message.
func DedupKey(messageID string) string {
	return keyPrefix + "dedup:" + messageID
}

// NotificationChannel is the pub/sub channel carrying outbound notifications.
func NotificationChannel() string {
	return keyPrefix + "notifications"
}

// SessionID formats the id of the n-th session minted for userKey.
func SessionID(n int64, userKey string) string {
	return "sess" + strconv.FormatInt(n, 10) + "_" + userKey
}
