package postgres

// Schema bootstraps the tables for local development. Production manages
// these externally.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    event_id          TEXT PRIMARY KEY,
    status            TEXT NOT NULL,
    status_sms        TEXT NOT NULL DEFAULT 'START',
    status_email      TEXT NOT NULL DEFAULT 'START',
    status_push       TEXT NOT NULL DEFAULT 'START',
    user_id           TEXT NOT NULL,
    event_type        TEXT NOT NULL,
    retry_count_sms   INT  NOT NULL DEFAULT 0,
    retry_count_email INT  NOT NULL DEFAULT 0,
    retry_count_push  INT  NOT NULL DEFAULT 0,
    parent_id         TEXT NOT NULL DEFAULT '',
    parent_type       TEXT NOT NULL DEFAULT '',
    event_timestamp   TEXT NOT NULL DEFAULT '',
    priority          TEXT NOT NULL DEFAULT 'normal',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_events_user_id ON events (user_id);
CREATE INDEX IF NOT EXISTS idx_events_status  ON events (status);

CREATE TABLE IF NOT EXISTS user_preferences (
    user_id                  TEXT PRIMARY KEY,
    notification_preferences JSONB NOT NULL,
    user_type                TEXT NOT NULL DEFAULT '',
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
