// Package filebot registers the bot.filebot module: the file request bot
// wired to the store, cache, gateway, telemetry and cron infrastructure.
//
// Configuration example:
//
//	modules:
//	  bot.filebot:
//	    token: ${BOT_TOKEN}
//	    admin_id: ${ADMIN_ID}
//	    admin_password_hash: ${ADMIN_PASSWORD_HASH:-}
//	    mode: polling
//	    db_channels: [-1001234567890]
//	    sub_channels: [-1009876543210]
//	    shortener:
//	      api_key: ${GPLINK_API_KEY:-}
//
// Without store.sqlite or cache.redis modules the bot falls back to
// in-memory storage.
package filebot
