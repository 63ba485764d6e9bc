// Package tgui provides small Telegram UI helpers: inline keyboards,
// "prefix:action:payload" callback data, HTML escaping and a message builder
// that defaults to ParseMode=HTML with previews disabled.
package tgui
