package filebot

import "github.com/flemzord/filebot/internal/telegram"

func dialBotAPI(cfg telegram.Config) (telegram.API, string, error) {
	api, err := telegram.Dial(cfg)
	if err != nil {
		return nil, "", err
	}
	return api, api.Self.UserName, nil
}
