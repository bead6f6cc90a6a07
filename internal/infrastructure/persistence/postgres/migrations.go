package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ROSTER
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Halaqat: study circles led by a teacher. active_days is a weekday bitmask
-- (bit 0 = Sunday); 0 means the circle meets every day.
CREATE TABLE IF NOT EXISTS halaqat (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    teacher_id TEXT NOT NULL DEFAULT '',
    active_days SMALLINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_active_days CHECK (active_days >= 0 AND active_days < 128)
);

CREATE INDEX IF NOT EXISTS idx_halaqat_teacher_id ON halaqat(teacher_id);

CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Membership; position 0 is the primary halaqa.
CREATE TABLE IF NOT EXISTS student_halaqat (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    halaqa_id TEXT NOT NULL REFERENCES halaqat(id) ON DELETE CASCADE,
    position SMALLINT NOT NULL DEFAULT 0,

    PRIMARY KEY (student_id, halaqa_id)
);

CREATE INDEX IF NOT EXISTS idx_student_halaqat_halaqa_id ON student_halaqat(halaqa_id);
`

const migration001Down = `
DROP TABLE IF EXISTS student_halaqat;
DROP TABLE IF EXISTS students;
DROP TABLE IF EXISTS halaqat;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS progress_entries (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    halaqa_id TEXT NOT NULL DEFAULT '',
    entry_date DATE NOT NULL,
    category VARCHAR(20) NOT NULL,
    chapter SMALLINT NOT NULL,
    verse_from SMALLINT NOT NULL,
    verse_to SMALLINT NOT NULL,
    lines NUMERIC(10,2) NOT NULL,
    quality VARCHAR(20) NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    recorded_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_category CHECK (category IN ('memorization', 'revision', 'consolidation')),
    CONSTRAINT valid_chapter CHECK (chapter BETWEEN 1 AND 114),
    CONSTRAINT valid_verses CHECK (verse_from >= 1 AND verse_to >= verse_from),
    CONSTRAINT valid_lines CHECK (lines >= 0)
);

CREATE INDEX IF NOT EXISTS idx_progress_entries_student_date ON progress_entries(student_id, entry_date);
CREATE INDEX IF NOT EXISTS idx_progress_entries_date ON progress_entries(entry_date);

-- One position per student in the traversal of the curriculum.
CREATE TABLE IF NOT EXISTS positions (
    student_id TEXT PRIMARY KEY REFERENCES students(id) ON DELETE CASCADE,
    direction VARCHAR(10) NOT NULL,
    chapter SMALLINT NOT NULL,
    verse SMALLINT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_direction CHECK (direction IN ('forward', 'backward')),
    CONSTRAINT valid_position CHECK (chapter BETWEEN 1 AND 114 AND verse >= 0)
);
`

const migration002Down = `
DROP TABLE IF EXISTS positions;
DROP TABLE IF EXISTS progress_entries;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: DAILY TARGETS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- One target per student. NULL goal columns mean no goal for the category.
-- The streak columns are written only by streak updates and rebuilds.
CREATE TABLE IF NOT EXISTS daily_targets (
    student_id TEXT PRIMARY KEY REFERENCES students(id) ON DELETE CASCADE,
    memorization_lines INTEGER,
    revision_pages INTEGER,
    consolidation_pages INTEGER,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_streak_date DATE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_goals CHECK (
        COALESCE(memorization_lines, 0) >= 0 AND
        COALESCE(revision_pages, 0) >= 0 AND
        COALESCE(consolidation_pages, 0) >= 0
    ),
    CONSTRAINT valid_streak CHECK (current_streak >= 0 AND longest_streak >= current_streak)
);

CREATE INDEX IF NOT EXISTS idx_daily_targets_streak ON daily_targets(current_streak DESC) WHERE current_streak > 0;
`

const migration003Down = `
DROP TABLE IF EXISTS daily_targets;
`
