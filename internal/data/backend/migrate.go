package backend

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

var channelName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// changeFeedFunction publishes one NOTIFY per row mutation as
// {"table","type","record","old_record"}. Only DELETE carries old_record, and
// only its id. Payloads over the NOTIFY limit carry only the row id and
// "truncated": true; listeners read those rows back.
const changeFeedFunction = `
CREATE OR REPLACE FUNCTION classsync_notify_row_change() RETURNS trigger AS $$
DECLARE
  payload text;
  rec jsonb;
  old_rec jsonb;
BEGIN
  IF TG_OP = 'DELETE' THEN
    old_rec := jsonb_build_object('id', OLD.id);
  ELSE
    rec := to_jsonb(NEW);
  END IF;
  payload := json_build_object(
    'table', TG_TABLE_NAME,
    'type', TG_OP,
    'record', rec,
    'old_record', old_rec
  )::text;
  IF octet_length(payload) > 7900 THEN
    payload := json_build_object(
      'table', TG_TABLE_NAME,
      'type', TG_OP,
      'record', CASE WHEN rec IS NULL THEN NULL ELSE jsonb_build_object('id', rec->'id') END,
      'old_record', old_rec,
      'truncated', true
    )::text;
  END IF;
  PERFORM pg_notify(TG_ARGV[0], payload);
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;
`

// InstallChangeFeed attaches the NOTIFY trigger to every mirrored table.
// It is a no-op on dialects other than Postgres.
func InstallChangeFeed(db *gorm.DB, channel string) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if !channelName.MatchString(channel) {
		return fmt.Errorf("invalid notify channel %q", channel)
	}
	if err := db.Exec(changeFeedFunction).Error; err != nil {
		return fmt.Errorf("create change feed function: %w", err)
	}
	for _, m := range AllModels() {
		table := tableName(db, m)
		trigger := fmt.Sprintf("classsync_%s_changes", table)
		stmts := []string{
			fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trigger, table),
			fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s
FOR EACH ROW EXECUTE FUNCTION classsync_notify_row_change('%s')`, trigger, table, channel),
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("install trigger on %s: %w", table, err)
			}
		}
	}
	return nil
}

func tableName(db *gorm.DB, model any) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return ""
	}
	return stmt.Schema.Table
}
