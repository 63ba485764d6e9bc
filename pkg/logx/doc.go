// Package logx is the structured logging layer of giveawaybot.
//
// Logger is a small value type over zerolog. Service owns the sinks (console,
// JSON file and an optional chat sink for warnings) and can be re-applied on
// config reload without invalidating loggers handed out earlier.
package logx
