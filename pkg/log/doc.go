// Package log provides structured logging for the server via zerolog.
//
// A single global Logger is configured once at startup through Init, then
// components attach their own fields with the With* helpers rather than
// creating independent zerolog instances.
package log
