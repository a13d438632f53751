package utils

/**
 * This file contains utility functions to format the keys for Redis
 * (key, value) pairs. It avoids having to call "fmt.Sprintf(...)"
 * with the same format spec every time, potentially confusing the key format.
 */

import "fmt"

func FormatSessionKey(sessionId string) string {
	return fmt.Sprintf("session:%s", sessionId)
}

func FormatAnnouncementKey(messageId string) string {
	return fmt.Sprintf("announcement:%s", messageId)
}

func FormatApprovalKey(messageId string) string {
	return fmt.Sprintf("approval:%s", messageId)
}
