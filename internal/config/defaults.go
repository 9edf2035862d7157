package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		AI: AIConfig{
			Endpoint:       "http://localhost:5001/process",
			TimeoutSeconds: 30,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
			Discord: DiscordConfig{
				Enabled: false,
			},
			WhatsApp: WhatsAppConfig{
				Enabled:     false,
				Port:        3000,
				WebhookPath: "/whatsapp",
			},
		},
		Callback: CallbackConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}
