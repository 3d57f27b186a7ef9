package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      config)
VALUES (CURRENT_TIMESTAMP, ?)`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    config
FROM sessions
ORDER BY id`

	insertTickSQL = `
INSERT INTO ticks (session_id,
                   recorded_at,
                   time_sec,
                   altitude,
                   drop_km,
                   gyro_x,
                   gyro_y,
                   gyro_z,
                   mag_x,
                   mag_y,
                   mag_z,
                   status,
                   fault_flags)
VALUES (?, CURRENT_TIMESTAMP, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectTicksSQL = `
SELECT
    time_sec,
    altitude,
    drop_km,
    gyro_x,
    gyro_y,
    gyro_z,
    mag_x,
    mag_y,
    mag_z,
    status,
    fault_flags
FROM ticks
WHERE
    session_id = ?
ORDER BY time_sec`
)

//go:embed schema.sql
var initSchemaSQL string
