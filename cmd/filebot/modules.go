package main

// Compiled modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/filebot/internal/gateway"
	_ "github.com/flemzord/filebot/modules/bot/filebot"
	_ "github.com/flemzord/filebot/modules/bot/linkmap"
	_ "github.com/flemzord/filebot/modules/cache/redis"
	_ "github.com/flemzord/filebot/modules/store/sqlite"
)
