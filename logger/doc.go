// Package logger provides structured logging for cryptokit built on zerolog.
//
// The provider store, module loader and configuration layer all log through
// named component loggers obtained via Get. Applications embedding cryptokit
// can replace the global logger so registry logs flow into their own output.
package logger
