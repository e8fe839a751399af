package database

// The two schemas describe the same tables. Uniqueness that the engine relies on
// lives here: one conversation per (client_id, assistant_id) and set semantics
// for assistant_clients.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS assistants (
    id CHAR(36) PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    first_name VARCHAR(50),
    last_name VARCHAR(50),
    created_at DATETIME(6) NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS clients (
    id CHAR(36) PRIMARY KEY,
    email VARCHAR(255) NOT NULL UNIQUE,
    first_name VARCHAR(50),
    last_name VARCHAR(50),
    plan_name VARCHAR(32),
    plan_expires_at DATETIME(6),
    assistant_id CHAR(36),
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    FOREIGN KEY (assistant_id) REFERENCES assistants(id)
)`,
	`CREATE TABLE IF NOT EXISTS assistant_clients (
    assistant_id CHAR(36) NOT NULL,
    client_id CHAR(36) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    PRIMARY KEY (assistant_id, client_id),
    FOREIGN KEY (assistant_id) REFERENCES assistants(id),
    FOREIGN KEY (client_id) REFERENCES clients(id)
)`,
	`CREATE TABLE IF NOT EXISTS payments (
    id CHAR(36) PRIMARY KEY,
    client_id CHAR(36) NOT NULL,
    plan_name VARCHAR(32) NOT NULL,
    amount BIGINT NOT NULL,
    currency VARCHAR(8) NOT NULL,
    provider VARCHAR(64) NOT NULL,
    status VARCHAR(16) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    completed_at DATETIME(6),
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_payments_client (client_id, status, created_at)
)`,
	`CREATE TABLE IF NOT EXISTS conversations (
    id CHAR(36) PRIMARY KEY,
    client_id CHAR(36) NOT NULL,
    assistant_id CHAR(36) NOT NULL,
    title VARCHAR(255) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    last_activity_at DATETIME(6) NOT NULL,
    UNIQUE KEY uniq_conversation_pair (client_id, assistant_id),
    FOREIGN KEY (client_id) REFERENCES clients(id),
    FOREIGN KEY (assistant_id) REFERENCES assistants(id)
)`,
	`CREATE TABLE IF NOT EXISTS client_conversations (
    client_id CHAR(36) NOT NULL,
    conversation_id CHAR(36) NOT NULL,
    PRIMARY KEY (client_id, conversation_id),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
)`,
	`CREATE TABLE IF NOT EXISTS assistant_conversations (
    assistant_id CHAR(36) NOT NULL,
    conversation_id CHAR(36) NOT NULL,
    PRIMARY KEY (assistant_id, conversation_id),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
)`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    conversation_id CHAR(36) NOT NULL,
    role VARCHAR(16) NOT NULL,
    body TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_messages_conversation (conversation_id, id),
    FOREIGN KEY (conversation_id) REFERENCES conversations(id)
)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS assistants (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT,
    last_name TEXT,
    created_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS clients (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    first_name TEXT,
    last_name TEXT,
    plan_name TEXT,
    plan_expires_at DATETIME,
    assistant_id TEXT REFERENCES assistants(id),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS assistant_clients (
    assistant_id TEXT NOT NULL REFERENCES assistants(id),
    client_id TEXT NOT NULL REFERENCES clients(id),
    created_at DATETIME NOT NULL,
    PRIMARY KEY (assistant_id, client_id)
)`,
	`CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL,
    plan_name TEXT NOT NULL,
    amount INTEGER NOT NULL,
    currency TEXT NOT NULL,
    provider TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    completed_at DATETIME,
    updated_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_client ON payments(client_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL REFERENCES clients(id),
    assistant_id TEXT NOT NULL REFERENCES assistants(id),
    title TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    last_activity_at DATETIME NOT NULL,
    UNIQUE (client_id, assistant_id)
)`,
	`CREATE TABLE IF NOT EXISTS client_conversations (
    client_id TEXT NOT NULL,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    PRIMARY KEY (client_id, conversation_id)
)`,
	`CREATE TABLE IF NOT EXISTS assistant_conversations (
    assistant_id TEXT NOT NULL,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    PRIMARY KEY (assistant_id, conversation_id)
)`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    role TEXT NOT NULL,
    body TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(conversation_id, id)`,
}
