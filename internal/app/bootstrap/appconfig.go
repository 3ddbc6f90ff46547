// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like HTTP/HTTPS
// ports, TLS, logging level, CORS, and request body size limits.
// AppConfig is where everything specific to TaskVine lives.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connections in the driver pool
	MongoMinPoolSize uint64 // Min connections kept warm in the pool

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: taskvine-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionTTL    time.Duration // How long a signed-in session stays valid

	// Rate limiting for social mutations (follow, unfollow, accept, reject)
	FollowRateLimit  int           // Mutations allowed per actor per window
	FollowRateWindow time.Duration // Window the follow limit applies over

	// Notification retention
	NotificationRetention       time.Duration // How long read notifications are kept
	NotificationCleanupInterval time.Duration // How often the cleanup worker runs
}
