package logging

import (
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar selects the log level when Initialize is given none.
// Unset means no output at all.
const LogLevelEnvVar = "FAH_LOG_LEVEL"

// maxPayloadLog caps how much of a stanza ends up in a single log line.
const maxPayloadLog = 512

// maxDumpBytes caps the hex and printable dumps of undecodable input.
const maxDumpBytes = 256

var logger *zap.Logger

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// Initialize installs the process logger. An empty level falls back to
// FAH_LOG_LEVEL; unknown names log at info.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	lvl, ok := levels[level]
	if !ok {
		lvl = zapcore.InfoLevel
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built
	return nil
}

// SetLogger replaces the process logger. Tests pass an observer core here.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// GetLogger returns the process logger, a no-op one until Initialize runs.
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Sync flushes buffered entries. Call it before the process exits.
func Sync() {
	_ = GetLogger().Sync()
}

func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// LogConnection records a lifecycle step of a SysAP or simulator session.
func LogConnection(peer string, event string) {
	Info("Session "+strings.ReplaceAll(event, "_", " "),
		zap.String("peer", peer),
		zap.String("event", event),
	)
}

// LogTLSHandshake records the negotiated parameters of a wss:// upgrade.
func LogTLSHandshake(peer string, state tls.ConnectionState) {
	Info("TLS established",
		zap.String("peer", peer),
		zap.String("version", tls.VersionName(state.Version)),
		zap.String("cipher_suite", tls.CipherSuiteName(state.CipherSuite)),
		zap.String("server_name", state.ServerName),
		zap.Bool("resumed", state.DidResume),
	)
}

// LogStanza traces one XMPP stanza in the given direction ("SEND" or "RECV").
func LogStanza(peer string, direction string, data []byte) {
	l := GetLogger()
	if ce := l.Check(zapcore.DebugLevel, "XMPP "+direction); ce != nil {
		body := data
		suffix := ""
		if len(body) > maxPayloadLog {
			body, suffix = body[:maxPayloadLog], "..."
		}
		ce.Write(
			zap.String("peer", peer),
			zap.Int("bytes", len(data)),
			zap.String("stanza", string(body)+suffix),
		)
	}
}

// LogRawBytes dumps input that could not be decoded as XML.
func LogRawBytes(label string, data []byte) {
	if len(data) > maxDumpBytes {
		data = data[:maxDumpBytes]
	}
	Debug(label,
		zap.Int("bytes", len(data)),
		zap.String("hex", hex.EncodeToString(data)),
		zap.String("printable", printable(data)),
	)
}

func printable(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '.'
		}
		return r
	}, string(data))
}
