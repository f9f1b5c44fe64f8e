// Copyright (c) 2025 BVK Chaitanya

package gobs

type TelegramState struct {
	// UserChatIDMap holds chat ids for the authorized users, which are learned
	// when users message the bot.
	UserChatIDMap map[string]int64
}
