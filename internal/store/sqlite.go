package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/proposalgate/internal/model"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS sections (
	id TEXT PRIMARY KEY,
	proposal_id TEXT NOT NULL,
	name TEXT NOT NULL,
	ord INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL DEFAULT '',
	generated_content TEXT NOT NULL DEFAULT '',
	citations_json TEXT NOT NULL DEFAULT '[]',
	updated_at TEXT NOT NULL,
	exported_at TEXT
);
CREATE TABLE IF NOT EXISTS placeholders (
	section_id TEXT NOT NULL,
	id TEXT NOT NULL,
	type TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (section_id, id)
);
CREATE TABLE IF NOT EXISTS claims (
	id TEXT PRIMARY KEY,
	section_id TEXT NOT NULL,
	type TEXT NOT NULL,
	value TEXT NOT NULL,
	context TEXT NOT NULL,
	byte_offset INTEGER NOT NULL,
	risk_level TEXT NOT NULL,
	status TEXT NOT NULL,
	evidence_json TEXT,
	checked_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS paragraph_attributions (
	section_id TEXT NOT NULL,
	paragraph_index INTEGER NOT NULL,
	status TEXT NOT NULL,
	best_similarity REAL NOT NULL DEFAULT 0,
	evidence_json TEXT NOT NULL DEFAULT '[]',
	error TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (section_id, paragraph_index)
);
CREATE TABLE IF NOT EXISTS checklist_items (
	id TEXT PRIMARY KEY,
	proposal_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_required INTEGER NOT NULL DEFAULT 0,
	word_limit INTEGER,
	char_limit INTEGER,
	page_limit INTEGER,
	point_value INTEGER,
	parser_confidence REAL NOT NULL DEFAULT 0,
	ord INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS section_mappings (
	checklist_item_id TEXT NOT NULL,
	section_id TEXT NOT NULL,
	mapping_type TEXT NOT NULL,
	confidence REAL NOT NULL CHECK(confidence BETWEEN 0.0 AND 1.0),
	created_at TEXT NOT NULL,
	PRIMARY KEY (checklist_item_id, section_id)
);
CREATE TABLE IF NOT EXISTS verification_attestations (
	id TEXT PRIMARY KEY,
	section_id TEXT NOT NULL,
	placeholder_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	statement TEXT NOT NULL,
	attested_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS export_audit_log (
	id TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	proposal_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	export_format TEXT NOT NULL,
	decision TEXT NOT NULL,
	state TEXT NOT NULL,
	primary_rule_id TEXT NOT NULL DEFAULT '',
	blocks_json TEXT NOT NULL,
	warnings_json TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	claim_keys_json TEXT NOT NULL DEFAULT '[]',
	attestation_text TEXT NOT NULL DEFAULT '',
	attested_at TEXT,
	finalized_at TEXT,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sections_proposal ON sections(proposal_id, ord);
CREATE INDEX IF NOT EXISTS idx_claims_section ON claims(section_id);
CREATE INDEX IF NOT EXISTS idx_items_proposal ON checklist_items(proposal_id, ord);
CREATE INDEX IF NOT EXISTS idx_verifications_section ON verification_attestations(section_id);
CREATE INDEX IF NOT EXISTS idx_audit_proposal ON export_audit_log(proposal_id, seq);
`

// SQLiteStore implements Store on modernc.org/sqlite (pure Go, no cgo)
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at dsn and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// one connection: in-memory databases are per-connection and writes serialize anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t := parseTime(v.String)
	return &t
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func toJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// inTx runs fn in a transaction, rolling back on error
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	var p model.Proposal
	err := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, title FROM proposals WHERE id = ?`, id).
		Scan(&p.ID, &p.OrganizationID, &p.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("proposal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", id, err)
	}
	return &p, nil
}

func (s *SQLiteStore) PutProposal(ctx context.Context, p model.Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, organization_id, title) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET organization_id = excluded.organization_id, title = excluded.title`,
		p.ID, p.OrganizationID, p.Title)
	if err != nil {
		return fmt.Errorf("put proposal %s: %w", p.ID, err)
	}
	return nil
}

const sectionColumns = `id, proposal_id, name, ord, content, generated_content, citations_json, updated_at, exported_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSection(row rowScanner) (model.Section, error) {
	var (
		sec        model.Section
		citations  string
		updatedAt  string
		exportedAt sql.NullString
	)
	if err := row.Scan(&sec.ID, &sec.ProposalID, &sec.Name, &sec.Order, &sec.Content,
		&sec.GeneratedContent, &citations, &updatedAt, &exportedAt); err != nil {
		return sec, err
	}
	if err := json.Unmarshal([]byte(citations), &sec.Citations); err != nil {
		return sec, fmt.Errorf("decode citations of %s: %w", sec.ID, err)
	}
	sec.UpdatedAt = parseTime(updatedAt)
	sec.ExportedAt = timePtr(exportedAt)
	return sec, nil
}

func (s *SQLiteStore) GetSection(ctx context.Context, id string) (*model.Section, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id = ?`, id)
	sec, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("section %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get section %s: %w", id, err)
	}
	return &sec, nil
}

func (s *SQLiteStore) ListSections(ctx context.Context, proposalID string) ([]model.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sectionColumns+` FROM sections WHERE proposal_id = ? ORDER BY ord, id`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Section
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutSection(ctx context.Context, sec model.Section) error {
	citations := sec.Citations
	if citations == nil {
		citations = []model.Citation{}
	}
	citationsJSON, err := toJSON(citations)
	if err != nil {
		return fmt.Errorf("encode citations: %w", err)
	}
	if sec.UpdatedAt.IsZero() {
		sec.UpdatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (`+sectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			proposal_id = excluded.proposal_id,
			name = excluded.name,
			ord = excluded.ord,
			content = excluded.content,
			generated_content = excluded.generated_content,
			citations_json = excluded.citations_json,
			updated_at = excluded.updated_at,
			exported_at = excluded.exported_at
		WHERE sections.exported_at IS NULL`,
		sec.ID, sec.ProposalID, sec.Name, sec.Order, sec.Content, sec.GeneratedContent,
		citationsJSON, formatTime(sec.UpdatedAt), nullTime(sec.ExportedAt))
	if err != nil {
		return fmt.Errorf("put section %s: %w", sec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("section %s: %w", sec.ID, ErrSectionLocked)
	}
	return nil
}

func (s *SQLiteStore) UpdateContent(ctx context.Context, sectionID, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sections SET content = ?, updated_at = ? WHERE id = ? AND exported_at IS NULL`,
		content, formatTime(time.Now()), sectionID)
	if err != nil {
		return fmt.Errorf("update section %s: %w", sectionID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.GetSection(ctx, sectionID); err != nil {
		return err
	}
	return fmt.Errorf("section %s: %w", sectionID, ErrSectionLocked)
}

func (s *SQLiteStore) MarkExported(ctx context.Context, sectionIDs []string, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range sectionIDs {
			res, err := tx.ExecContext(ctx,
				`UPDATE sections SET exported_at = COALESCE(exported_at, ?) WHERE id = ?`, formatTime(at), id)
			if err != nil {
				return fmt.Errorf("mark exported %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("section %s: %w", id, ErrNotFound)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListPlaceholders(ctx context.Context, sectionID string) ([]model.Placeholder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT section_id, id, type, description, status, updated_at FROM placeholders WHERE section_id = ? ORDER BY id`,
		sectionID)
	if err != nil {
		return nil, fmt.Errorf("list placeholders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Placeholder
	for rows.Next() {
		var (
			p         model.Placeholder
			updatedAt string
		)
		if err := rows.Scan(&p.SectionID, &p.ID, &p.Type, &p.Description, &p.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan placeholder: %w", err)
		}
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplacePlaceholders(ctx context.Context, sectionID string, placeholders []model.Placeholder) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM placeholders WHERE section_id = ?`, sectionID); err != nil {
			return fmt.Errorf("clear placeholders: %w", err)
		}
		for _, p := range placeholders {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO placeholders (section_id, id, type, description, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
				sectionID, p.ID, string(p.Type), p.Description, string(p.Status), formatTime(p.UpdatedAt)); err != nil {
				return fmt.Errorf("insert placeholder %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListClaims(ctx context.Context, sectionID string) ([]model.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, type, value, context, byte_offset, risk_level, status, evidence_json, checked_at
		FROM claims WHERE section_id = ? ORDER BY byte_offset, id`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Claim
	for rows.Next() {
		var (
			c         model.Claim
			evidence  sql.NullString
			checkedAt string
		)
		if err := rows.Scan(&c.ID, &c.SectionID, &c.Type, &c.Value, &c.Context, &c.Offset,
			&c.RiskLevel, &c.Status, &evidence, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		if evidence.Valid {
			var m model.EvidenceMatch
			if err := json.Unmarshal([]byte(evidence.String), &m); err != nil {
				return nil, fmt.Errorf("decode evidence of claim %s: %w", c.ID, err)
			}
			c.Evidence = &m
		}
		c.CheckedAt = parseTime(checkedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplaceClaims(ctx context.Context, sectionID string, claims []model.Claim) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM claims WHERE section_id = ?`, sectionID); err != nil {
			return fmt.Errorf("clear claims: %w", err)
		}
		for _, c := range claims {
			var evidence sql.NullString
			if c.Evidence != nil {
				data, err := toJSON(c.Evidence)
				if err != nil {
					return fmt.Errorf("encode evidence: %w", err)
				}
				evidence = sql.NullString{String: data, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO claims (id, section_id, type, value, context, byte_offset, risk_level, status, evidence_json, checked_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.ID, sectionID, string(c.Type), c.Value, c.Context, c.Offset,
				string(c.RiskLevel), string(c.Status), evidence, formatTime(c.CheckedAt)); err != nil {
				return fmt.Errorf("insert claim %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListAttributions(ctx context.Context, sectionID string) ([]model.ParagraphAttribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, paragraph_index, status, best_similarity, evidence_json, error
		FROM paragraph_attributions WHERE section_id = ? ORDER BY paragraph_index`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list attributions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ParagraphAttribution
	for rows.Next() {
		var (
			a        model.ParagraphAttribution
			evidence string
		)
		if err := rows.Scan(&a.SectionID, &a.ParagraphIndex, &a.Status, &a.BestSimilarity, &evidence, &a.Error); err != nil {
			return nil, fmt.Errorf("scan attribution: %w", err)
		}
		if err := json.Unmarshal([]byte(evidence), &a.Evidence); err != nil {
			return nil, fmt.Errorf("decode attribution evidence: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReplaceAttributions(ctx context.Context, sectionID string, attributions []model.ParagraphAttribution) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM paragraph_attributions WHERE section_id = ?`, sectionID); err != nil {
			return fmt.Errorf("clear attributions: %w", err)
		}
		for _, a := range attributions {
			evidence := a.Evidence
			if evidence == nil {
				evidence = []model.EvidenceChunk{}
			}
			data, err := toJSON(evidence)
			if err != nil {
				return fmt.Errorf("encode evidence: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO paragraph_attributions (section_id, paragraph_index, status, best_similarity, evidence_json, error)
				VALUES (?, ?, ?, ?, ?, ?)`,
				sectionID, a.ParagraphIndex, string(a.Status), a.BestSimilarity, data, a.Error); err != nil {
				return fmt.Errorf("insert attribution %d: %w", a.ParagraphIndex, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListChecklistItems(ctx context.Context, proposalID string) ([]model.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, name, description, is_required, word_limit, char_limit, page_limit,
			point_value, parser_confidence, ord
		FROM checklist_items WHERE proposal_id = ? ORDER BY ord, id`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ChecklistItem
	for rows.Next() {
		var (
			item                                   model.ChecklistItem
			required                               int
			wordLimit, charLimit, pageLimit, point sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.ProposalID, &item.Name, &item.Description, &required,
			&wordLimit, &charLimit, &pageLimit, &point, &item.ParserConfidence, &item.Order); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		item.IsRequired = required != 0
		item.WordLimit = intPtr(wordLimit)
		item.CharLimit = intPtr(charLimit)
		item.PageLimit = intPtr(pageLimit)
		item.PointValue = intPtr(point)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PutChecklistItem(ctx context.Context, item model.ChecklistItem) error {
	required := 0
	if item.IsRequired {
		required = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checklist_items (id, proposal_id, name, description, is_required, word_limit, char_limit,
			page_limit, point_value, parser_confidence, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			proposal_id = excluded.proposal_id,
			name = excluded.name,
			description = excluded.description,
			is_required = excluded.is_required,
			word_limit = excluded.word_limit,
			char_limit = excluded.char_limit,
			page_limit = excluded.page_limit,
			point_value = excluded.point_value,
			parser_confidence = excluded.parser_confidence,
			ord = excluded.ord`,
		item.ID, item.ProposalID, item.Name, item.Description, required,
		nullInt(item.WordLimit), nullInt(item.CharLimit), nullInt(item.PageLimit), nullInt(item.PointValue),
		item.ParserConfidence, item.Order)
	if err != nil {
		return fmt.Errorf("put checklist item %s: %w", item.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListMappings(ctx context.Context, proposalID string) ([]model.SectionMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.checklist_item_id, m.section_id, m.mapping_type, m.confidence, m.created_at
		FROM section_mappings m JOIN checklist_items i ON i.id = m.checklist_item_id
		WHERE i.proposal_id = ?
		ORDER BY m.checklist_item_id, m.section_id`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SectionMapping
	for rows.Next() {
		var (
			m         model.SectionMapping
			createdAt string
		)
		if err := rows.Scan(&m.ChecklistItemID, &m.SectionID, &m.MappingType, &m.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateMappingIfAbsent(ctx context.Context, m model.SectionMapping) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO section_mappings (checklist_item_id, section_id, mapping_type, confidence, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(checklist_item_id, section_id) DO NOTHING`,
		m.ChecklistItemID, m.SectionID, string(m.MappingType), m.Confidence, formatTime(m.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("create mapping %s/%s: %w", m.ChecklistItemID, m.SectionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create mapping: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) SetManualMapping(ctx context.Context, itemID, sectionID string, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM checklist_items WHERE id = ?`, itemID).Scan(&exists); err != nil {
			return fmt.Errorf("lookup checklist item: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("checklist item %s: %w", itemID, ErrNotFound)
		}
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections WHERE id = ?`, sectionID).Scan(&exists); err != nil {
			return fmt.Errorf("lookup section: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("section %s: %w", sectionID, ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM section_mappings WHERE checklist_item_id = ? AND mapping_type = ?`,
			itemID, string(model.MappingAuto)); err != nil {
			return fmt.Errorf("delete auto mappings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO section_mappings (checklist_item_id, section_id, mapping_type, confidence, created_at)
			VALUES (?, ?, ?, 1.0, ?)
			ON CONFLICT(checklist_item_id, section_id) DO UPDATE SET mapping_type = excluded.mapping_type, confidence = 1.0`,
			itemID, sectionID, string(model.MappingManual), formatTime(at)); err != nil {
			return fmt.Errorf("upsert manual mapping: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) DeleteMapping(ctx context.Context, itemID, sectionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM section_mappings WHERE checklist_item_id = ? AND section_id = ?`, itemID, sectionID)
	if err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mapping %s/%s: %w", itemID, sectionID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) PutVerificationAttestation(ctx context.Context, a model.VerificationAttestation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_attestations (id, section_id, placeholder_id, user_id, statement, attested_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.SectionID, a.PlaceholderID, a.UserID, a.Statement, formatTime(a.AttestedAt))
	if err != nil {
		return fmt.Errorf("put verification attestation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListVerificationAttestations(ctx context.Context, sectionID string) ([]model.VerificationAttestation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, placeholder_id, user_id, statement, attested_at
		FROM verification_attestations WHERE section_id = ? ORDER BY attested_at`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list verification attestations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.VerificationAttestation
	for rows.Next() {
		var (
			a          model.VerificationAttestation
			attestedAt string
		)
		if err := rows.Scan(&a.ID, &a.SectionID, &a.PlaceholderID, &a.UserID, &a.Statement, &attestedAt); err != nil {
			return nil, fmt.Errorf("scan verification attestation: %w", err)
		}
		a.AttestedAt = parseTime(attestedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

const auditColumns = `id, proposal_id, user_id, export_format, decision, state, primary_rule_id, blocks_json,
	warnings_json, fingerprint, claim_keys_json, attestation_text, attested_at, finalized_at, timestamp`

func scanAudit(row rowScanner) (model.AuditRecord, error) {
	var (
		rec                     model.AuditRecord
		claimKeys, timestamp    string
		attestedAt, finalizedAt sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.ProposalID, &rec.UserID, &rec.ExportFormat, &rec.Decision, &rec.State,
		&rec.PrimaryRuleID, &rec.BlocksJSON, &rec.WarningsJSON, &rec.Fingerprint, &claimKeys,
		&rec.AttestationText, &attestedAt, &finalizedAt, &timestamp); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(claimKeys), &rec.ClaimKeys); err != nil {
		return rec, fmt.Errorf("decode claim keys of %s: %w", rec.ID, err)
	}
	rec.AttestedAt = timePtr(attestedAt)
	rec.FinalizedAt = timePtr(finalizedAt)
	rec.Timestamp = parseTime(timestamp)
	return rec, nil
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, rec model.AuditRecord) error {
	keys := rec.ClaimKeys
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := toJSON(keys)
	if err != nil {
		return fmt.Errorf("encode claim keys: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO export_audit_log (seq, `+auditColumns+`)
		VALUES ((SELECT COALESCE(MAX(seq), 0) + 1 FROM export_audit_log), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProposalID, rec.UserID, rec.ExportFormat, string(rec.Decision), string(rec.State),
		string(rec.PrimaryRuleID), rec.BlocksJSON, rec.WarningsJSON, rec.Fingerprint, keysJSON,
		rec.AttestationText, nullTime(rec.AttestedAt), nullTime(rec.FinalizedAt), formatTime(rec.Timestamp))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("audit record %s: %w", rec.ID, ErrConflict)
		}
		return fmt.Errorf("append audit record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAudit(ctx context.Context, id string) (*model.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM export_audit_log WHERE id = ?`, id)
	rec, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get audit record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, proposalID string) ([]model.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM export_audit_log WHERE proposal_id = ? ORDER BY seq`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// conditionalAudit runs a guarded UPDATE and distinguishes missing rows from state conflicts
func (s *SQLiteStore) conditionalAudit(ctx context.Context, id, query string, args ...interface{}) (*model.AuditRecord, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update audit record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update audit record %s: %w", id, err)
	}
	rec, err := s.GetAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("audit record %s is %s: %w", id, rec.State, ErrConflict)
	}
	return rec, nil
}

func (s *SQLiteStore) Attest(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	return s.conditionalAudit(ctx, id,
		`UPDATE export_audit_log SET state = ?, attested_at = ? WHERE id = ? AND state = ?`,
		string(model.StateWarnAcknowledged), formatTime(at), id, string(model.StateWarnNeedsAttestation))
}

func (s *SQLiteStore) MarkFinalized(ctx context.Context, id string, at time.Time) (*model.AuditRecord, error) {
	return s.conditionalAudit(ctx, id,
		`UPDATE export_audit_log SET finalized_at = ?
		WHERE id = ? AND finalized_at IS NULL AND state IN (?, ?, ?)`,
		formatTime(at), id,
		string(exportableStates[0]), string(exportableStates[1]), string(exportableStates[2]))
}
