package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"trust-service/internal/config"
	"trust-service/internal/util"
)

const userColumns = `user_bucket, user_id, phone_token, status, trusted_numbers, spam_numbers,
        session_key, shared_secret, session_key_established_at, nonce_expected,
        expected_code, retry_count, recent_message_count, version, created_at, updated_at`

// Statements holds the CQL the directory runs. gocql prepares each one on
// first use and caches it per connection.
type Statements struct {
	InsertUser     string
	DeleteUser     string
	ClaimToken     string
	GetUserByID    string
	GetUserByToken string
	UpdateUser     string
	CreateUsers    string
	CreateTokens   string
}

func newStatements() Statements {
	return Statements{
		InsertUser: `
    INSERT INTO users (` + userColumns + `)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		DeleteUser: `
        DELETE FROM users WHERE user_bucket = ? AND user_id = ?`,

		ClaimToken: `
        INSERT INTO token_to_user (phone_token, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`,

		GetUserByID: `
        SELECT ` + userColumns + `
        FROM users WHERE user_bucket = ? AND user_id = ?`,

		GetUserByToken: `
        SELECT user_id FROM token_to_user WHERE phone_token = ?`,

		UpdateUser: `
        UPDATE users SET status = ?, trusted_numbers = ?, spam_numbers = ?,
            session_key = ?, shared_secret = ?, session_key_established_at = ?,
            nonce_expected = ?, expected_code = ?, retry_count = ?,
            recent_message_count = ?, version = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ? IF version = ?`,

		CreateUsers: `
    CREATE TABLE IF NOT EXISTS users (
        user_bucket int,
        user_id text,
        phone_token text,
        status text,
        trusted_numbers list<text>,
        spam_numbers list<text>,
        session_key text,
        shared_secret text,
        session_key_established_at timestamp,
        nonce_expected text,
        expected_code text,
        retry_count int,
        recent_message_count int,
        version bigint,
        created_at timestamp,
        updated_at timestamp,
        PRIMARY KEY ((user_bucket), user_id)
    )`,

		CreateTokens: `
    CREATE TABLE IF NOT EXISTS token_to_user (
        phone_token text PRIMARY KEY,
        user_bucket int,
        user_id text,
        created_at timestamp
    )`,
	}
}

type ScyllaClient struct {
	Session    *gocql.Session
	Statements Statements
	keyspace   string
}

func NewScyllaClient(cfg config.ScyllaConfig) (*ScyllaClient, error) {
	cluster := gocql.NewCluster(cfg.Nodes...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if cfg.UseTLS {
		cluster.SslOpts = &gocql.SslOptions{
			EnableHostVerification: true,
		}
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", cfg.Nodes),
		zap.String("keyspace", cfg.Keyspace))

	return &ScyllaClient{
		Session:    session,
		Statements: newStatements(),
		keyspace:   cfg.Keyspace,
	}, nil
}

// EnsureSchema creates the directory tables when they are missing.
func (s *ScyllaClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{s.Statements.CreateUsers, s.Statements.CreateTokens} {
		if err := s.Session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to create scylla schema: %w", err)
		}
	}
	util.Info("ScyllaDB schema ready", zap.String("keyspace", s.keyspace))
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...any) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}
