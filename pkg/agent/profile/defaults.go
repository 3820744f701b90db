package profile

const (
	defaultProfileName = "default"
	defaultBotName     = "botkit"
)
