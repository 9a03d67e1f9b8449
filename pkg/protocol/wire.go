package protocol

import "strings"

// Builders for server-to-client lines. Reply prefixes are fixed; anything
// else a client receives is display text.

// GroupCreated acknowledges a successful CREATE_GROUP.
func GroupCreated(name string) string {
	return "GROUP_CREATED:" + name
}

// JoinedGroup acknowledges a successful JOIN_GROUP.
func JoinedGroup(name string) string {
	return "JOINED_GROUP:" + name
}

// UserList formats the USERLIST reply from a username snapshot.
func UserList(usernames []string) string {
	return "USERLIST:" + strings.Join(usernames, ",")
}

// UpdateGroups formats the unsolicited group-set push.
func UpdateGroups(groups []string) string {
	return "UPDATE_GROUPS:" + strings.Join(groups, ":")
}

// GlobalMessage formats a broadcast delivery.
func GlobalMessage(sender, body string) string {
	return sender + ": " + body
}

// DirectMessage formats a DM delivery.
func DirectMessage(sender, body string) string {
	return "[DM] " + sender + ": " + body
}

// GroupMessage formats a group delivery.
func GroupMessage(sender, group, body string) string {
	return sender + " (" + group + "): " + body
}

// JoinNotice formats the session-start announcement.
func JoinNotice(username string) string {
	return "Server: " + username + " has joined the chat"
}

// LeaveNotice formats the session-end announcement.
func LeaveNotice(username string) string {
	return "Server: " + username + " has left the chat"
}

// ShutdownNotice is sent to every live session during graceful shutdown.
const ShutdownNotice = "Server: shutting down"
