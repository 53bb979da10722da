package graph

import (
	goerrors "errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// isRateLimited reports whether an error is a throttling response that should
// be retried with backoff
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var neo4jErr *neo4j.Neo4jError
	if goerrors.As(err, &neo4jErr) {
		if strings.Contains(neo4jErr.Code, "TransientError") {
			return true
		}
	}

	// Cosmos-style gateways surface throttling as 429 text
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RequestRateTooLarge")
}

// isAuthError reports whether an error indicates an expired or rejected
// credential, warranting a connection rebuild and immediate retry
func isAuthError(err error) bool {
	if err == nil {
		return false
	}

	var neo4jErr *neo4j.Neo4jError
	if goerrors.As(err, &neo4jErr) {
		if strings.Contains(neo4jErr.Code, "Security.Unauthorized") ||
			strings.Contains(neo4jErr.Code, "Security.TokenExpired") ||
			strings.Contains(neo4jErr.Code, "Security.AuthorizationExpired") {
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "Unauthorized")
}
