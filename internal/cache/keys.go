package cache

func KeyToken(token string) string {
	return Key("tokens", token)
}

func KeyBotSelf(botID string) string {
	return Key("bot", "self", botID)
}
