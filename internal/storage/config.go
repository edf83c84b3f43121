package storage

// Backend names accepted by the factory.
const (
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendDolt   = "dolt"
)

// Config selects and configures a backend. Only the fields for the chosen
// backend are consulted.
type Config struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	// Path locates the database for the sqlite and dolt backends: a file
	// path for sqlite (":memory:" for an in-process database) or a data
	// directory for dolt.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// MySQL connection settings.
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// Dolt commit identity recorded on versioned writes.
	CommitName  string `json:"commit_name,omitempty" yaml:"commit_name,omitempty"`
	CommitEmail string `json:"commit_email,omitempty" yaml:"commit_email,omitempty"`
}
