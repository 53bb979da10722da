package graph

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphpipe/pkg/errors"
	"graphpipe/pkg/logger"
)

// tokenRefreshBuffer is how close to credential expiry the connection is
// proactively torn down and rebuilt with a fresh credential
const tokenRefreshBuffer = 5 * time.Minute

// Credential is an authentication secret with an optional expiry. A zero
// ExpiresAt means the credential never expires.
type Credential struct {
	Username  string
	Secret    string
	ExpiresAt time.Time
}

// CredentialProvider supplies credentials for the graph store. Implementations
// backed by a token service return short-lived credentials with ExpiresAt set.
type CredentialProvider interface {
	Credential(ctx context.Context) (Credential, error)
}

// StaticCredentials is a CredentialProvider for non-expiring username/password
// authentication.
type StaticCredentials struct {
	Username string
	Password string
}

// Credential implements CredentialProvider
func (s StaticCredentials) Credential(_ context.Context) (Credential, error) {
	return Credential{Username: s.Username, Secret: s.Password}, nil
}

// Connection is an owned, lockable handle on the graph store driver. The
// driver is created lazily on first use and rebuilt with a fresh credential
// after Invalidate or when the current credential approaches expiry.
type Connection struct {
	mu       sync.Mutex
	uri      string
	database string
	provider CredentialProvider
	driver   neo4j.DriverWithContext
	cred     Credential
	now      func() time.Time
	logger   *zap.Logger
}

// NewConnection creates an unconnected handle; no network traffic happens
// until the first Run.
func NewConnection(uri, database string, provider CredentialProvider) *Connection {
	return &Connection{
		uri:      uri,
		database: database,
		provider: provider,
		now:      time.Now,
		logger:   logger.Get(),
	}
}

// Run executes one parameterized statement, connecting first if needed
func (c *Connection) Run(ctx context.Context, query string, params map[string]interface{}) error {
	driver, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}

	_, err = neo4j.ExecuteQuery(ctx, driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
	)
	return err
}

// ensureConnected returns a live driver, building one with a fresh credential
// when there is none or the current credential is expiring soon
func (c *Connection) ensureConnected(ctx context.Context) (neo4j.DriverWithContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver != nil && c.credentialExpiringLocked() {
		c.logger.Info("Credential expiring soon, rebuilding graph connection")
		c.teardownLocked(ctx)
	}

	if c.driver == nil {
		cred, err := c.provider.Credential(ctx)
		if err != nil {
			return nil, errors.NewGraphConnectionFailed(c.uri, err)
		}

		driver, err := neo4j.NewDriverWithContext(c.uri, neo4j.BasicAuth(cred.Username, cred.Secret, ""))
		if err != nil {
			return nil, errors.NewGraphConnectionFailed(c.uri, err)
		}

		c.driver = driver
		c.cred = cred
		c.logger.Debug("Graph connection established", zap.String("uri", c.uri))
	}

	return c.driver, nil
}

// Invalidate discards the current driver so the next Run rebuilds it with a
// fresh credential. Called after authorization failures.
func (c *Connection) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(ctx)
}

// Close releases the underlying driver
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	return err
}

func (c *Connection) credentialExpiringLocked() bool {
	if c.cred.ExpiresAt.IsZero() {
		return false
	}
	return c.cred.ExpiresAt.Sub(c.now()) < tokenRefreshBuffer
}

func (c *Connection) teardownLocked(ctx context.Context) {
	if c.driver == nil {
		return
	}
	if err := c.driver.Close(ctx); err != nil {
		c.logger.Warn("Error closing graph driver", zap.Error(err))
	}
	c.driver = nil
}
