package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE LESSONS AND OBSERVATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create lessons and observations tables
-- Version: 001

-- One lesson per tutoring session. analyzed_at is set exactly once by fact
-- extraction and doubles as the idempotency marker.
CREATE TABLE IF NOT EXISTS lessons (
    session_id VARCHAR(128) PRIMARY KEY,
    user_id UUID,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    performance_summary TEXT NOT NULL DEFAULT '',
    analyzed_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_lessons_user_id ON lessons(user_id) WHERE user_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_lessons_analyzed_at ON lessons(analyzed_at) WHERE analyzed_at IS NOT NULL;

-- Raw decoded protocol fragments. Immutable after insert; the id sequence
-- preserves creation order within a session.
CREATE TABLE IF NOT EXISTS observations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    seq BIGSERIAL,
    session_id VARCHAR(128) NOT NULL,
    user_id UUID,
    kind VARCHAR(30) NOT NULL,
    word_id INTEGER,
    feature VARCHAR(100) NOT NULL DEFAULT '',
    student_answer TEXT NOT NULL DEFAULT '',
    correct_answer TEXT NOT NULL DEFAULT '',
    is_correct BOOLEAN NOT NULL DEFAULT FALSE,
    error_type VARCHAR(100) NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_kind CHECK (kind IN ('grammar_check', 'translation_check', 'freeform_error')),
    CONSTRAINT valid_word_id CHECK (word_id IS NULL OR word_id >= 0)
);

CREATE INDEX IF NOT EXISTS idx_observations_session_seq ON observations(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_observations_session_kind ON observations(session_id, kind);
`

const migration001Down = `
DROP TABLE IF EXISTS observations;
DROP TABLE IF EXISTS lessons;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE LEARNER FACTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create learner facts table
-- Version: 002

-- Durable facts about a learner, merged across lessons. Facts are retired
-- by flipping is_active, never deleted.
CREATE TABLE IF NOT EXISTS learner_facts (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL,
    fact_type VARCHAR(20) NOT NULL,
    fact_text TEXT NOT NULL,
    category VARCHAR(30) NOT NULL,
    feature_key VARCHAR(200) NOT NULL DEFAULT '',
    arabic_examples JSONB NOT NULL DEFAULT '[]'::jsonb,
    observation_count INTEGER NOT NULL DEFAULT 1,
    success_count INTEGER NOT NULL DEFAULT 0,
    first_observed TIMESTAMP WITH TIME ZONE NOT NULL,
    last_confirmed TIMESTAMP WITH TIME ZONE NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    deactivated_at TIMESTAMP WITH TIME ZONE,
    source_lesson_ids JSONB NOT NULL DEFAULT '[]'::jsonb,

    CONSTRAINT valid_fact_type CHECK (fact_type IN ('struggle', 'strength', 'interest', 'preference')),
    CONSTRAINT valid_counts CHECK (observation_count >= 1 AND success_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_facts_user_active ON learner_facts(user_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_facts_user_type_active ON learner_facts(user_id, fact_type) WHERE is_active;

-- One active fact per (user, type, category, feature key). The empty
-- feature key is excluded: text-matched facts may coexist.
CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_feature_unique
    ON learner_facts(user_id, fact_type, category, feature_key)
    WHERE is_active AND feature_key <> '';
`

const migration002Down = `
DROP TABLE IF EXISTS learner_facts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE QUOTA PROFILES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create quota profiles table
-- Version: 003

-- One rolling weekly usage window per user. Counters only move inside a
-- window; reset_at is the next Sunday 00:00 UTC boundary.
CREATE TABLE IF NOT EXISTS quota_profiles (
    user_id UUID PRIMARY KEY,
    tier VARCHAR(20) NOT NULL DEFAULT 'student',
    messages_used INTEGER NOT NULL DEFAULT 0,
    tokens_used BIGINT NOT NULL DEFAULT 0,
    reset_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_tier CHECK (tier IN ('student', 'scholar', 'dedicated')),
    CONSTRAINT valid_usage CHECK (messages_used >= 0 AND tokens_used >= 0)
);

CREATE INDEX IF NOT EXISTS idx_quota_profiles_reset_at ON quota_profiles(reset_at);
`

const migration003Down = `
DROP TABLE IF EXISTS quota_profiles;
`
