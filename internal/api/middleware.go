package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"
)

// recoveryLogger adapts zap to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Recovered from HTTP handler panic", zap.String("panic", fmt.Sprint(v...)))
}

func withRecovery(h http.Handler, logger *zap.Logger) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
}

// withCORS lets browser clients on other origins reach the API.
func withCORS(h http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", HeaderUsername, HeaderRequestID}),
		handlers.ExposedHeaders([]string{HeaderRequestID}),
	)(h)
}
