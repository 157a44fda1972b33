package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"trust-service/internal/config"
	"trust-service/internal/util"
)

var ErrMissingGraphURI = errors.New("neo4j uri is required")

// Neo4jClient writes Cypher over Bolt. Each call opens a short-lived session.
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jClient(ctx context.Context, cfg config.Neo4jConfig) (*Neo4jClient, error) {
	if cfg.URI == "" {
		return nil, ErrMissingGraphURI
	}

	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnections > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnections
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	util.Info("Neo4j client initialized", zap.String("uri", cfg.URI))
	return &Neo4jClient{driver: driver, database: cfg.Database}, nil
}

// ExecuteWrite runs cypher in a write session and discards the result.
func (c *Neo4jClient) ExecuteWrite(ctx context.Context, cypher string, params map[string]any) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func (c *Neo4jClient) HealthCheck(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Neo4jClient) Close(ctx context.Context) error {
	util.Info("Neo4j client shutdown")
	return c.driver.Close(ctx)
}
