package configs

var (
	ServerAddress = "localhost:8080"
	RedisAddress  = "localhost:6379"
	WebSocketPath = "/ws"

	// Encrypted history store

	// HistoryStoreDir is the directory the server opens as its encrypted
	// message-history store at startup.
	HistoryStoreDir = "./data/history"

	// HistoryPassphraseEnv names the environment variable the server reads
	// the store passphrase from; it is never given a default so a deployment
	// can't boot with the passphrase baked into source control.
	HistoryPassphraseEnv = "SESHAT_INDEX_PASSPHRASE"
)
