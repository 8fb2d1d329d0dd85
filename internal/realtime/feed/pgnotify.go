package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/yungbote/classsync/internal/platform/logger"
)

// PGNotify listens on a Postgres NOTIFY channel fed by the row-change
// triggers.
type PGNotify struct {
	dsn     string
	channel string
	log     *logger.Logger
}

func NewPGNotify(dsn, channel string, log *logger.Logger) (*PGNotify, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("pg notify: missing dsn")
	}
	if channel == "" {
		channel = "row_changes"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PGNotify{dsn: dsn, channel: channel, log: log.With("component", "PGNotifyFeed")}, nil
}

func (p *PGNotify) Name() string { return "rows" }

func (p *PGNotify) Run(ctx context.Context, sink Sink) error {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("pg notify connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		return fmt.Errorf("pg listen %s: %w", p.channel, err)
	}
	p.log.Info("Listening for row changes", "channel", p.channel)
	sink.Connected(p.Name())

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pg wait: %w", err)
		}
		change, err := DecodeRowChange([]byte(n.Payload))
		if err != nil {
			p.log.Warn("Bad row change payload", "channel", n.Channel, "error", err)
			continue
		}
		sink.RowChanged(change)
	}
}

// DecodeRowChange parses a trigger payload. JSON nulls become absent records.
func DecodeRowChange(raw []byte) (RowChange, error) {
	var c RowChange
	if err := json.Unmarshal(raw, &c); err != nil {
		return RowChange{}, err
	}
	if c.Table == "" {
		return RowChange{}, errors.New("missing table")
	}
	c.Type = ChangeType(strings.ToUpper(string(c.Type)))
	if isNull(c.Record) {
		c.Record = nil
	}
	if isNull(c.OldRecord) {
		c.OldRecord = nil
	}
	return c, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
