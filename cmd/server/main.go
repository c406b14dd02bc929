package main

import (
	"context"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"seshat-index/configs"
	"seshat-index/directory/encrypted"
	"seshat-index/historystore"
	"seshat-index/server"
)

var (
	logger = logrus.New()
)

// openHistoryStore opens the encrypted message-history store at
// configs.HistoryStoreDir, deriving its keys from the passphrase in
// configs.HistoryPassphraseEnv. If the environment variable is unset,
// history recording is disabled rather than falling back to an
// unprotected store.
func openHistoryStore() *historystore.Store {
	passphrase := os.Getenv(configs.HistoryPassphraseEnv)
	if passphrase == "" {
		logger.Warnf("%s not set, running without message history", configs.HistoryPassphraseEnv)
		return nil
	}

	if err := os.MkdirAll(configs.HistoryStoreDir, 0o700); err != nil {
		logger.Fatalf("Error creating history store directory: %v", err)
	}

	dir, err := encrypted.Open(configs.HistoryStoreDir, passphrase, encrypted.WithLogger(logger))
	if err != nil {
		logger.Fatalf("Error opening encrypted history store: %v", err)
	}

	history, err := historystore.Open(dir, historystore.WithLogger(logger))
	if err != nil {
		logger.Fatalf("Error opening history store: %v", err)
	}
	return history
}

// Main function to start the server
func main() {
	history := openHistoryStore()

	s := server.NewServer(
		context.Background(),
		redis.NewClient(&redis.Options{Addr: configs.RedisAddress}),
		logger,
		history,
	)
	defer s.Close()

	r := mux.NewRouter()
	r.HandleFunc(configs.WebSocketPath, s.HandleConnections)
	r.HandleFunc("/history", s.HandleGetHistory).Methods(http.MethodGet)

	logger.Infof("WebSocket server running on %s", configs.ServerAddress)
	if err := http.ListenAndServe(configs.ServerAddress, r); err != nil {
		logger.Fatalf("Error starting server: %v", err)
	}

	logger.Info("Closing server...")
}
