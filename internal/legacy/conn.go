package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

// Connector opens a dedicated session to the legacy store. Each logical
// operation owns its session and closes it on every exit path.
type Connector interface {
	Connect(ctx context.Context) (*Session, error)
}

// Session is one physical connection to the legacy store.
type Session struct {
	db   *sql.DB
	conn *sql.Conn
	log  logger.Logger
}

func (s *Session) Conn() *sql.Conn { return s.conn }

// Close releases the connection and its handle.
func (s *Session) Close() error {
	var errs []string
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close legacy session: %s", strings.Join(errs, "; "))
	}
	s.log.Debug("legacy connection closed", nil)
	return nil
}

// SQLConnector opens sessions through a database/sql driver, normally the
// ODBC bridge.
type SQLConnector struct {
	driver     string
	connString string
	log        logger.Logger
}

func NewSQLConnector(driver, connString string, log logger.Logger) *SQLConnector {
	if log == nil {
		log = logger.NewNop()
	}
	return &SQLConnector{driver: driver, connString: connString, log: log}
}

// Connect opens a single-connection handle and checks the link is live.
func (c *SQLConnector) Connect(ctx context.Context) (*Session, error) {
	db, err := sql.Open(c.driver, c.connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLegacyConnect, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrLegacyConnect, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrLegacyConnect, err)
	}
	c.log.Debug("legacy connection opened", map[string]interface{}{"driver": c.driver})
	return &Session{db: db, conn: conn, log: c.log}, nil
}
