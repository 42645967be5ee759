package api

import (
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithJWTSecret enables HS256 bearer token verification. Without a secret
// the gateway identity headers are trusted.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		s.jwtSecret = []byte(secret)
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithLocation sets the zone used to read ?at= instants without an offset.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.loc = loc
		}
	}
}
