package store

// schema contains all application table definitions. Statements are split on
// ';' and executed one by one, so each must be idempotent on its own.
//
// Tables:
//   - zelador_messages       - Durable record of exchanged messages
//   - zelador_chats          - Conversation containers (private and group)
//   - zelador_groups         - Group metadata with participant blob
//   - zelador_contacts       - Minimal contact records
//   - zelador_lid_map        - LID to JID identity mapping
//   - zelador_group_configs  - Per-group settings blob (plus __global__ row)
const schema = `
-- ============================================================
-- Messages
-- ============================================================
CREATE TABLE IF NOT EXISTS zelador_messages (
    chat_id     VARCHAR(128) NOT NULL,
    message_id  VARCHAR(128) NOT NULL,
    sender_id   VARCHAR(128) NOT NULL,
    content     TEXT,
    raw_message JSON,
    timestamp   DATETIME NOT NULL,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (chat_id, message_id),
    KEY idx_messages_chat_time (chat_id, timestamp),
    KEY idx_messages_sender (sender_id),
    KEY idx_messages_time (timestamp)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- ============================================================
-- Chats
-- ============================================================
CREATE TABLE IF NOT EXISTS zelador_chats (
    id         VARCHAR(128) NOT NULL,
    name       VARCHAR(255),
    raw_chat   JSON,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- ============================================================
-- Group metadata
-- ============================================================
CREATE TABLE IF NOT EXISTS zelador_groups (
    id                VARCHAR(128) NOT NULL,
    subject           VARCHAR(255),
    description       TEXT,
    owner             VARCHAR(128),
    creation          DATETIME,
    participants      JSON,
    participant_count INT NOT NULL DEFAULT 0,
    cached_at         DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL,
    PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- ============================================================
-- Contacts
-- ============================================================
CREATE TABLE IF NOT EXISTS zelador_contacts (
    id         VARCHAR(128) NOT NULL,
    name       VARCHAR(255),
    push_name  VARCHAR(255),
    lid        VARCHAR(128),
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (id),
    KEY idx_contacts_lid (lid)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- ============================================================
-- Identity mapping (LID -> JID)
-- ============================================================
CREATE TABLE IF NOT EXISTS zelador_lid_map (
    lid        VARCHAR(128) NOT NULL,
    jid        VARCHAR(128),
    first_seen DATETIME NOT NULL,
    last_seen  DATETIME NOT NULL,
    source     VARCHAR(32) NOT NULL,
    PRIMARY KEY (lid),
    KEY idx_lid_map_jid (jid)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- ============================================================
-- Group configs
-- ============================================================
CREATE TABLE IF NOT EXISTS zelador_group_configs (
    id     VARCHAR(128) NOT NULL,
    config JSON NOT NULL,
    PRIMARY KEY (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`
