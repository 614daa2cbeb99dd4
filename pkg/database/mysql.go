package database

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/onurcolak/retention-outbox-service/environments"
	"github.com/onurcolak/retention-outbox-service/internal/domain"
	"github.com/onurcolak/retention-outbox-service/pkg/logger"
)

func NewMySQLDB(cfg environments.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Connected to MySQL database")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		automation_settings TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS members (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		name VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'lead',
		contact_state VARCHAR(20) NOT NULL DEFAULT 'open',
		last_contacted_at DATETIME(6) NULL,
		last_value_drop_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		INDEX idx_members_tenant_status (tenant_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS message_drafts (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		member_id VARCHAR(36) NOT NULL,
		action_type VARCHAR(50) NOT NULL,
		content TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		autosend_eligible BOOLEAN NOT NULL DEFAULT FALSE,
		blocked_reasons TEXT NOT NULL,
		send_recommendation VARCHAR(20) NOT NULL DEFAULT 'review',
		impact_score INT NOT NULL DEFAULT 0,
		generated_from_opportunity_id VARCHAR(36) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_drafts_opportunity (generated_from_opportunity_id),
		INDEX idx_drafts_tenant_status (tenant_id, status),
		INDEX idx_drafts_member (member_id, status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS outbound_messages (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		draft_id VARCHAR(36) NOT NULL,
		member_id VARCHAR(36) NOT NULL,
		content TEXT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'queued',
		scheduled_for DATETIME(6) NULL,
		sent_at DATETIME(6) NULL,
		external_id VARCHAR(100) NULL,
		error TEXT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_outbound_draft (draft_id),
		UNIQUE KEY uq_outbound_external (external_id),
		INDEX idx_outbound_tenant_status (tenant_id, status, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS slack_dm_threads (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		slack_channel_id VARCHAR(50) NOT NULL,
		member_id VARCHAR(36) NOT NULL,
		last_message_at VARCHAR(40) NULL,
		last_member_message_at DATETIME(6) NULL,
		last_cm_message_at DATETIME(6) NULL,
		member_replied_at DATETIME(6) NULL,
		conversation_closed_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_threads_channel (tenant_id, slack_channel_id),
		INDEX idx_threads_member (tenant_id, member_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS slack_identities (
		tenant_id VARCHAR(36) NOT NULL,
		slack_user_id VARCHAR(50) NOT NULL,
		member_id VARCHAR(36) NULL,
		is_operator BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE KEY uq_identities_user (tenant_id, slack_user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS slack_events (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		payload MEDIUMTEXT NOT NULL,
		received_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		processed_at DATETIME(6) NULL,
		processing_error TEXT NULL,
		INDEX idx_events_unprocessed (tenant_id, processed_at, received_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS audit_entries (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		type VARCHAR(50) NOT NULL,
		actor VARCHAR(100) NOT NULL,
		member_id VARCHAR(36) NULL,
		details TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_audit_tenant_created (tenant_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS interactions (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		member_id VARCHAR(36) NOT NULL,
		type VARCHAR(50) NOT NULL,
		outbound_message_id VARCHAR(36) NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		UNIQUE KEY uq_interactions_outbound (outbound_message_id),
		INDEX idx_interactions_member (tenant_id, member_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS opportunities (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		member_id VARCHAR(36) NOT NULL,
		urgency INT NOT NULL DEFAULT 0,
		confidence DOUBLE NOT NULL DEFAULT 0,
		recommended_actions TEXT NOT NULL,
		dismissed_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_opportunities_tenant (tenant_id, dismissed_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS intro_suggestions (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		member_id VARCHAR(36) NOT NULL,
		dismissed_at DATETIME(6) NULL,
		INDEX idx_intro_member (tenant_id, member_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS perk_recommendations (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		member_id VARCHAR(36) NOT NULL,
		delivered_at DATETIME(6) NULL,
		dismissed_at DATETIME(6) NULL,
		INDEX idx_perk_member (tenant_id, member_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS resources (
		id VARCHAR(36) PRIMARY KEY,
		tenant_id VARCHAR(36) NOT NULL,
		title VARCHAR(255) NOT NULL,
		INDEX idx_resources_tenant (tenant_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

func RunMigrations(db *sqlx.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	logger.Infof("Database migrations completed (%d statements)", len(migrations))

	return nil
}

// SeedTestData creates a demo tenant with one member whose thread is past
// the cooldown, so a local run can walk a draft all the way to sent.
func SeedTestData(db *sqlx.DB) error {
	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM tenants"); err != nil {
		return err
	}

	if count > 0 {
		logger.Infof("Database already has %d tenants, skipping seed", count)
		return nil
	}

	lastMessage := time.Now().UTC().Add(-48 * time.Hour)
	statements := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO tenants (id, name, automation_settings) VALUES (?, ?, ?)",
			[]any{"tenant-demo", "Demo Community", `{"enabled":true,"cadence":"weekly","maxPerRun":25}`}},
		{"INSERT INTO members (id, tenant_id, name, status, contact_state) VALUES (?, ?, ?, 'active', 'open')",
			[]any{"member-ada", "tenant-demo", "Ada"}},
		{"INSERT INTO members (id, tenant_id, name, status, contact_state) VALUES (?, ?, ?, 'active', 'muted')",
			[]any{"member-bo", "tenant-demo", "Bo"}},
		{"INSERT INTO slack_identities (tenant_id, slack_user_id, member_id, is_operator) VALUES (?, ?, ?, FALSE)",
			[]any{"tenant-demo", "U_ADA", "member-ada"}},
		{"INSERT INTO slack_identities (tenant_id, slack_user_id, member_id, is_operator) VALUES (?, ?, NULL, TRUE)",
			[]any{"tenant-demo", "U_CM"}},
		{`INSERT INTO slack_dm_threads (id, tenant_id, slack_channel_id, member_id, last_message_at, last_member_message_at, member_replied_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]any{"thread-ada", "tenant-demo", "D_ADA", "member-ada", domain.FormatTimestamp(lastMessage), lastMessage, lastMessage}},
		{"INSERT INTO opportunities (id, tenant_id, member_id, urgency, confidence, recommended_actions) VALUES (?, ?, ?, ?, ?, ?)",
			[]any{"opp-ada-perk", "tenant-demo", "member-ada", 3, 0.8, `["perk","check_in"]`}},
		{"INSERT INTO resources (id, tenant_id, title) VALUES (?, ?, ?)",
			[]any{"res-guide", "tenant-demo", "Getting started guide"}},
	}

	for _, st := range statements {
		if _, err := db.Exec(st.query, st.args...); err != nil {
			return fmt.Errorf("failed to seed test data: %w", err)
		}
	}

	logger.Infof("Seeded demo tenant with %d rows", len(statements))
	return nil
}
