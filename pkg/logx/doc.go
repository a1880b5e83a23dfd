// Package logx configures deadlinebot's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON
//   - an optional chat sink forwards warnings to a Telegram chat (min-level + rate limit)
package logx
