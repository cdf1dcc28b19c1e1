package config

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver      string
	URL         string
	AutoMigrate bool
	// Products seeds the memory catalog, e.g. "<product_id>:<seller_id>,..."
	Products string
}

// GetConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return c.URL
}

// UsesPostgres returns true when auctions are stored in PostgreSQL
func (c *DatabaseConfig) UsesPostgres() bool {
	return c.Driver == StoreDriverPostgres
}
