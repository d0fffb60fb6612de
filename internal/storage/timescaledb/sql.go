package timescaledb

const createRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id text PRIMARY KEY,
    source text NOT NULL,
    format text NULL,
    started_at timestamp WITH TIME ZONE NOT NULL,
    duration_ms bigint NULL,
    records integer NULL,
    samples integer NULL,
    error text NULL,
    report jsonb NULL
);`

const createSamplesTableSQL = `
CREATE TABLE IF NOT EXISTS samples (
    time timestamp WITH TIME ZONE NOT NULL,
    has_timestamp boolean NOT NULL DEFAULT false,
    run_id text NOT NULL,
    sample_index integer NOT NULL,
    station_id text NULL,
    cast_id text NULL,
    latitude float8 NULL,
    longitude float8 NULL,
    pressure_dbar float8 NULL,
    depth_m float8 NULL,
    temperature_c float8 NULL,
    salinity_psu float8 NULL,
    oxygen_umol_kg float8 NULL,
    nutrients jsonb NULL,
    quality_flag text NOT NULL,
    water_mass text NULL,
    pressure_derived boolean NOT NULL DEFAULT false,
    depth_derived boolean NOT NULL DEFAULT false
);`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('samples', 'time', if_not_exists => true);`

const createCastIndexSQL = `CREATE INDEX IF NOT EXISTS samples_cast_idx ON samples (station_id, cast_id, time DESC);`

// classCountsSQL summarizes the samples stored for one run by water mass
const classCountsSQL = `
SELECT COALESCE(water_mass, ?) AS water_mass, COUNT(*) AS samples
FROM samples
WHERE run_id = ?
GROUP BY 1
ORDER BY 1;`
