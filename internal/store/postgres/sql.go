package postgres

const insertEventSQL = `
INSERT INTO events (
    event_id, status, status_sms, status_email, status_push,
    user_id, event_type,
    retry_count_sms, retry_count_email, retry_count_push,
    parent_id, parent_type, event_timestamp, priority,
    created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (event_id) DO NOTHING
`

const getEventSQL = `
SELECT event_id, status, status_sms, status_email, status_push,
       user_id, event_type,
       retry_count_sms, retry_count_email, retry_count_push,
       parent_id, parent_type, event_timestamp, priority,
       created_at, updated_at
FROM events
WHERE event_id = $1
`

const updateStatusSQL = `
UPDATE events SET status = $2, updated_at = NOW() WHERE event_id = $1
`

const getProfileSQL = `
SELECT notification_preferences, user_type
FROM user_preferences
WHERE user_id = $1
`

const upsertProfileSQL = `
INSERT INTO user_preferences (user_id, notification_preferences, user_type, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id) DO UPDATE
SET notification_preferences = EXCLUDED.notification_preferences,
    user_type = EXCLUDED.user_type,
    updated_at = NOW()
`
